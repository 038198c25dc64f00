package core

import "math"

// -----------------------------------------------------------------------------

// Mean returns the arithmetic mean of values, or 0 when there are none.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}

	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// -----------------------------------------------------------------------------

// IsFinitePositive reports whether v is a usable price.
func IsFinitePositive(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0
}
