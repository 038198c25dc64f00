package core

import (
	"math"
	"testing"
	"time"

	"range-meter/src/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bar(day int, open, high, low float64) models.MDailyBar {
	return models.MDailyBar{
		SymbolID: "EURUSD",
		Day:      time.Date(2025, 3, day, 0, 0, 0, 0, time.UTC),
		Open:     open,
		High:     high,
		Low:      low,
		Close:    open,
	}
}

func TestComputeADR(t *testing.T) {
	bars := []models.MDailyBar{
		bar(1, 1.10, 1.13, 1.10), // 0.03, outside lookback 3
		bar(2, 1.10, 1.12, 1.10), // 0.02
		bar(3, 1.10, 1.11, 1.10), // 0.01
		bar(4, 1.10, 1.13, 1.10), // 0.03
	}

	adr, used := ComputeADR(bars, 3)
	assert.Equal(t, 3, used)
	assert.InDelta(t, 0.02, adr, 1e-12)

	adr, used = ComputeADR(bars, 10)
	assert.Equal(t, 4, used)
	assert.InDelta(t, 0.0225, adr, 1e-12)

	_, used = ComputeADR(nil, 3)
	assert.Equal(t, 0, used)
	_, used = ComputeADR(bars, 0)
	assert.Equal(t, 0, used)
}

func TestComputeADR_SkipsBadBars(t *testing.T) {
	bars := []models.MDailyBar{
		bar(1, 1.10, math.NaN(), 1.10),
		bar(2, 1.10, 1.12, 1.10),
		bar(3, 1.10, 1.09, 1.10), // high below low
		bar(4, 1.10, 1.11, 0),
	}
	adr, used := ComputeADR(bars, 4)
	assert.Equal(t, 1, used)
	assert.InDelta(t, 0.02, adr, 1e-12)
}

func TestBuildDailyRange(t *testing.T) {
	bars := []models.MDailyBar{
		bar(2, 1.10, 1.12, 1.10),
		bar(3, 1.10, 1.11, 1.09),
		bar(4, 1.16005, 1.1610, 1.1595),
	}

	pkg, err := BuildDailyRange("EURUSD", bars, 20)
	require.NoError(t, err)
	assert.Equal(t, "EURUSD", pkg.SymbolID)
	assert.Equal(t, 1.16005, pkg.Open)
	assert.Equal(t, 1.1610, pkg.HighSoFar)
	assert.Equal(t, 1.1595, pkg.LowSoFar)
	assert.InDelta(t, 0.02, pkg.ADR, 1e-12)
	assert.Equal(t, 2, pkg.LookbackDays)
	assert.True(t, pkg.Seeded)
	assert.True(t, pkg.FromHistory)
	assert.Equal(t, bars[2].Day, pkg.TradingDay)
}

func TestBuildDailyRange_OpenWidensExtremes(t *testing.T) {
	bars := []models.MDailyBar{
		bar(3, 1.10, 1.11, 1.09),
		bar(4, 1.17, 1.165, 1.16),
	}
	pkg, err := BuildDailyRange("EURUSD", bars, 20)
	require.NoError(t, err)
	assert.Equal(t, 1.17, pkg.HighSoFar)
	assert.LessOrEqual(t, pkg.LowSoFar, pkg.Open)
}

func TestBuildDailyRange_Errors(t *testing.T) {
	_, err := BuildDailyRange("EURUSD", []models.MDailyBar{bar(4, 1, 1, 1)}, 20)
	assert.Error(t, err)

	_, err = BuildDailyRange("EURUSD", []models.MDailyBar{bar(3, 1.1, 1.11, 1.09), bar(4, 0, 0, 0)}, 20)
	assert.Error(t, err)

	_, err = BuildDailyRange("EURUSD", []models.MDailyBar{bar(3, 1.1, 0, 0), bar(4, 1.1, 1.1, 1.1)}, 20)
	assert.Error(t, err)
}

func TestMean(t *testing.T) {
	assert.Equal(t, 5.0, Mean([]float64{2, 4, 4, 4, 5, 5, 7, 9}))
	assert.Equal(t, 0.0, Mean(nil))
}

func TestIsFinitePositive(t *testing.T) {
	assert.True(t, IsFinitePositive(1e-9))
	assert.False(t, IsFinitePositive(0))
	assert.False(t, IsFinitePositive(-1))
	assert.False(t, IsFinitePositive(math.NaN()))
	assert.False(t, IsFinitePositive(math.Inf(1)))
}
