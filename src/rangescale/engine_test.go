package rangescale

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	eurMid = 1.16005
	eurADR = 0.02
)

func TestTierFor(t *testing.T) {
	cases := []struct {
		move float64
		want Tier
	}{
		{0, Tier50},
		{10, Tier50},
		{60, Tier50},
		{60.01, Tier75},
		{85, Tier75},
		{85.5, 100},
		{91, 100},
		{100, 100},
		{100.1, 125},
		{249, 250},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, TierFor(tc.move), "move %.2f", tc.move)
	}
	assert.False(t, Tier75.Expanded())
	assert.True(t, Tier(100).Expanded())
}

func TestStep_ExactBoundaryMoves(t *testing.T) {
	cases := []struct {
		move float64
		want int
	}{
		{0.006, 50},   // 60%
		{0.0085, 75},  // 85%
		{0.01, 100},   // 100%
		{0.0125, 125}, // 125%
	}
	for _, tc := range cases {
		e := NewEngine("EURUSD", 5)
		high := eurMid + tc.move
		st := e.Step(Input{MidPrice: eurMid, HighSoFar: high, LowSoFar: eurMid - tc.move, CurrentPrice: high, ADR: eurADR})
		assert.Equal(t, tc.want, st.UpperTierPct, "up %.4f", tc.move)
		assert.Equal(t, tc.want, st.LowerTierPct, "down %.4f", tc.move)
	}

	assert.Equal(t, Tier50, TierFor(60.000000000000057))
	assert.Equal(t, Tier(100), TierFor(100.000000000000085))
}

func TestStep_SmallMoveStaysCompact(t *testing.T) {
	e := NewEngine("EURUSD", 5)
	st := e.Step(Input{MidPrice: eurMid, HighSoFar: 1.16105, LowSoFar: eurMid, CurrentPrice: 1.16105, ADR: eurADR})

	assert.Equal(t, 50, st.UpperTierPct)
	assert.Equal(t, 50, st.LowerTierPct)
	assert.InDelta(t, 10, st.UpperMovePct, 1e-6)
	assert.InDelta(t, 0.01, st.HalfRange, 1e-12)
	assert.InDelta(t, eurMid+0.005, st.DomainMax, 1e-9)
	assert.InDelta(t, eurMid-0.005, st.DomainMin, 1e-9)
	assert.Equal(t, 5, st.Digits)
}

func TestStep_LargeMoveRoundsUpToNextQuarter(t *testing.T) {
	e := NewEngine("EURUSD", 5)
	high := eurMid + 0.0091 // 91% of half-ADR
	st := e.Step(Input{MidPrice: eurMid, HighSoFar: high, LowSoFar: eurMid, CurrentPrice: high, ADR: eurADR})

	assert.Equal(t, 100, st.UpperTierPct)
	assert.Equal(t, 50, st.LowerTierPct)
	assert.InDelta(t, eurMid+0.01, st.DomainMax, 1e-9)
}

func TestStep_TiersNeverShrink(t *testing.T) {
	e := NewEngine("EURUSD", 5)
	e.Step(Input{MidPrice: eurMid, HighSoFar: eurMid + 0.007, LowSoFar: eurMid - 0.0065, CurrentPrice: eurMid, ADR: eurADR})

	up, down := e.Tiers()
	require.Equal(t, Tier75, up)
	require.Equal(t, Tier75, down)

	// Price returns to the open; the disclosed range stays wide.
	st := e.Step(Input{MidPrice: eurMid, HighSoFar: eurMid + 0.007, LowSoFar: eurMid - 0.0065, CurrentPrice: eurMid, ADR: eurADR})
	assert.Equal(t, 75, st.UpperTierPct)
	assert.Equal(t, 75, st.LowerTierPct)

	e.Reset()
	up, down = e.Tiers()
	assert.Equal(t, Tier50, up)
	assert.Equal(t, Tier50, down)
}

func TestStep_SidesAreIndependent(t *testing.T) {
	e := NewEngine("EURUSD", 5)
	st := e.Step(Input{MidPrice: eurMid, HighSoFar: eurMid, LowSoFar: eurMid - 0.012, CurrentPrice: eurMid - 0.012, ADR: eurADR})

	assert.Equal(t, 50, st.UpperTierPct)
	assert.Equal(t, 125, st.LowerTierPct)
	assert.InDelta(t, 120, st.LowerMovePct, 1e-6)
}

func TestStep_DomainContainsPrices(t *testing.T) {
	e := NewEngine("EURUSD", 5)
	inputs := []Input{
		{MidPrice: eurMid, HighSoFar: eurMid + 0.003, LowSoFar: eurMid - 0.001, CurrentPrice: eurMid + 0.002, ADR: eurADR},
		{MidPrice: eurMid, HighSoFar: eurMid + 0.0199, LowSoFar: eurMid - 0.001, CurrentPrice: eurMid + 0.0199, ADR: eurADR},
		{MidPrice: eurMid, HighSoFar: eurMid + 0.0199, LowSoFar: eurMid - 0.03, CurrentPrice: eurMid - 0.03, ADR: eurADR},
	}
	for _, in := range inputs {
		st := e.Step(in)
		for _, p := range []float64{in.CurrentPrice, in.HighSoFar, in.LowSoFar, in.MidPrice} {
			assert.LessOrEqual(t, st.DomainMin, p)
			assert.GreaterOrEqual(t, st.DomainMax, p)
		}
		assert.Equal(t, 0, st.UpperTierPct%25)
		assert.Equal(t, 0, st.LowerTierPct%25)
	}
}

func TestStep_UnknownADRUsesFallbackHalfRange(t *testing.T) {
	e := NewEngine("NEWCO", 2)
	st := e.Step(Input{MidPrice: 100, HighSoFar: 101, LowSoFar: 99.5, CurrentPrice: 100.2, ADR: 0})

	assert.InDelta(t, 0.5, st.HalfRange, 1e-12)
	assert.InDelta(t, 200, st.UpperMovePct, 1e-9)
	assert.Equal(t, 200, st.UpperTierPct)
	assert.Equal(t, 100, st.LowerTierPct)
	assert.False(t, math.IsNaN(st.DomainMin))
	assert.InDelta(t, 101, st.DomainMax, 1e-9)
	assert.InDelta(t, 99.5, st.DomainMin, 1e-9)
}

func TestStep_MissingOpenFallsBackToCurrent(t *testing.T) {
	e := NewEngine("NEWCO", 2)
	st := e.Step(Input{CurrentPrice: 50, ADR: 2})

	assert.Equal(t, 50.0, st.MidPrice)
	assert.Equal(t, 50, st.UpperTierPct)
	assert.InDelta(t, 50.5, st.DomainMax, 1e-9)
}

func TestHalfRange(t *testing.T) {
	assert.Equal(t, 0.01, HalfRange(0.02, 1.2))
	assert.InDelta(t, 0.006, HalfRange(0, 1.2), 1e-12)
	assert.InDelta(t, 0.006, HalfRange(math.NaN(), 1.2), 1e-12)
	assert.Equal(t, 0.0, HalfRange(0, 0))
}
