package rangescale

import (
	"math"

	"range-meter/src/analysis/core"
)

// Tier is the disclosed extent of one side, in percent of half the ADR.
type Tier int

const (
	Tier50 Tier = 50
	Tier75 Tier = 75

	promote50Max = 60.0 // moves up to this stay at Tier50
	promote75Max = 85.0 // moves up to this stay at Tier75
	tierStep     = 25.0

	// Move percentages are compared at this resolution so a move of exactly
	// 60% of half-ADR does not land past the boundary through float error.
	pctResolution = 1e6

	// Half-range used when the ADR is unknown (package built from ticks only).
	fallbackHalfRangeFraction = 0.005
)

// Expanded reports whether the tier is beyond Tier75.
func (t Tier) Expanded() bool {
	return t > Tier75
}

// TierFor maps a move, in percent of half-ADR, to the tier that discloses it.
func TierFor(movePct float64) Tier {
	movePct = roundPct(movePct)
	switch {
	case movePct <= promote50Max:
		return Tier50
	case movePct <= promote75Max:
		return Tier75
	default:
		return Tier(math.Ceil(movePct/tierStep) * tierStep)
	}
}

// -----------------------------------------------------------------------------

// Input is one observation of a symbol's daily range.
type Input struct {
	MidPrice     float64 // today's open
	HighSoFar    float64
	LowSoFar     float64
	CurrentPrice float64
	ADR          float64
}

// RangeState is the derived vertical scale of one meter.
type RangeState struct {
	SymbolID     string
	MidPrice     float64
	UpperTierPct int
	LowerTierPct int
	DomainMin    float64
	DomainMax    float64

	CurrentPrice float64
	HighSoFar    float64
	LowSoFar     float64
	ADR          float64
	HalfRange    float64 // unit of the tier percentages
	UpperMovePct float64
	LowerMovePct float64
	Digits       int
}

// -----------------------------------------------------------------------------
// Engine tracks the tiers of one symbol for one meter. Each side only widens
// until Reset.
// -----------------------------------------------------------------------------

type Engine struct {
	symbolID string
	digits   int
	upper    Tier
	lower    Tier
}

func NewEngine(symbolID string, digits int) *Engine {
	return &Engine{symbolID: symbolID, digits: digits, upper: Tier50, lower: Tier50}
}

// Reset returns both sides to Tier50. Call it only when the package resets.
func (e *Engine) Reset() {
	e.upper = Tier50
	e.lower = Tier50
}

// Tiers returns the current upper and lower tiers.
func (e *Engine) Tiers() (Tier, Tier) {
	return e.upper, e.lower
}

// -----------------------------------------------------------------------------

// Step folds one observation into the tiers and returns the resulting state.
// The domain always contains the current price and both extremes, even when
// they lie beyond the edge of the reported tier.
func (e *Engine) Step(in Input) RangeState {
	mid := in.MidPrice
	if !core.IsFinitePositive(mid) {
		mid = in.CurrentPrice
	}
	half := HalfRange(in.ADR, mid)

	up, down := 0.0, 0.0
	if half > 0 {
		up = math.Max(0, math.Max(positiveOr(in.HighSoFar, mid)-mid, positiveOr(in.CurrentPrice, mid)-mid)) / half * 100
		down = math.Max(0, math.Max(mid-positiveOr(in.LowSoFar, mid), mid-positiveOr(in.CurrentPrice, mid))) / half * 100
		up, down = roundPct(up), roundPct(down)
	}

	if t := TierFor(up); t > e.upper {
		e.upper = t
	}
	if t := TierFor(down); t > e.lower {
		e.lower = t
	}

	domainMax := mid + float64(e.upper)/100*half
	domainMin := mid - float64(e.lower)/100*half
	for _, p := range []float64{in.CurrentPrice, in.HighSoFar, in.LowSoFar} {
		if !core.IsFinitePositive(p) {
			continue
		}
		domainMax = math.Max(domainMax, p)
		domainMin = math.Min(domainMin, p)
	}

	return RangeState{
		SymbolID:     e.symbolID,
		MidPrice:     mid,
		UpperTierPct: int(e.upper),
		LowerTierPct: int(e.lower),
		DomainMin:    domainMin,
		DomainMax:    domainMax,
		CurrentPrice: in.CurrentPrice,
		HighSoFar:    in.HighSoFar,
		LowSoFar:     in.LowSoFar,
		ADR:          in.ADR,
		HalfRange:    half,
		UpperMovePct: up,
		LowerMovePct: down,
		Digits:       e.digits,
	}
}

// -----------------------------------------------------------------------------

// HalfRange is adr/2, or a fixed fraction of mid when the ADR is unknown.
func HalfRange(adr, mid float64) float64 {
	if core.IsFinitePositive(adr) {
		return adr / 2
	}
	if core.IsFinitePositive(mid) {
		return mid * fallbackHalfRangeFraction
	}
	return 0
}

func roundPct(pct float64) float64 {
	return math.Round(pct*pctResolution) / pctResolution
}

func positiveOr(v, fallback float64) float64 {
	if core.IsFinitePositive(v) {
		return v
	}
	return fallback
}
