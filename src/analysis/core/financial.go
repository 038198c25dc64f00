package core

import (
	"fmt"

	"range-meter/src/models"
)

// -----------------------------------------------------------------------------

// ComputeADR averages the high-low spread of the newest lookback bars.
// Bars with non-positive or non-finite prices are skipped.
func ComputeADR(bars []models.MDailyBar, lookback int) (float64, int) {
	if lookback <= 0 || len(bars) == 0 {
		return 0, 0
	}

	start := len(bars) - lookback
	if start < 0 {
		start = 0
	}

	ranges := make([]float64, 0, len(bars)-start)
	for _, b := range bars[start:] {
		if !IsFinitePositive(b.High) || !IsFinitePositive(b.Low) || b.High < b.Low {
			continue
		}
		ranges = append(ranges, b.Range())
	}

	return Mean(ranges), len(ranges)
}

// -----------------------------------------------------------------------------

// BuildDailyRange turns a history response (completed bars followed by today's
// bar) into a seeded package. Today's bar supplies open/high/low so far.
func BuildDailyRange(symbolID string, bars []models.MDailyBar, lookback int) (models.MDailyRangePackage, error) {
	if len(bars) < 2 {
		return models.MDailyRangePackage{}, fmt.Errorf("need today's bar and at least one completed day, got %d bars", len(bars))
	}

	today := bars[len(bars)-1]
	if !IsFinitePositive(today.Open) || !IsFinitePositive(today.High) || !IsFinitePositive(today.Low) {
		return models.MDailyRangePackage{}, fmt.Errorf("today's bar for %s has no usable prices", symbolID)
	}

	adr, used := ComputeADR(bars[:len(bars)-1], lookback)
	if used == 0 || adr <= 0 {
		return models.MDailyRangePackage{}, fmt.Errorf("no usable completed bars for %s", symbolID)
	}

	high := today.High
	if today.Open > high {
		high = today.Open
	}
	low := today.Low
	if today.Open < low {
		low = today.Open
	}

	return models.MDailyRangePackage{
		SymbolID:     symbolID,
		Open:         today.Open,
		HighSoFar:    high,
		LowSoFar:     low,
		ADR:          adr,
		LookbackDays: used,
		TradingDay:   today.Day,
		Seeded:       true,
		FromHistory:  true,
	}, nil
}
