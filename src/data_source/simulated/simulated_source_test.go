package simulated

import (
	"context"
	"errors"
	"testing"
	"time"

	"range-meter/src/helpers"
	"range-meter/src/logger"
	"range-meter/src/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSource(intervalMs int) *SimulatedSource {
	cfg := &models.MConfig{Upstream: models.MUpstreamConfig{
		Simulated: models.MSimulatedConfig{
			Symbols: []models.MSymbol{
				{ID: "EURUSD", DecimalDigits: 5, PipSize: 0.0001, PipPosition: 4, Class: "fx"},
				{ID: "NEWCO", DecimalDigits: 2, PipSize: 0.01, PipPosition: 2, Class: "equity"},
			},
			StartPrices:     map[string]float64{"EURUSD": 1.16005},
			NoHistory:       []string{"NEWCO"},
			TickIntervalMs:  intervalMs,
			VolatilityPct:   0.02,
			HistoryRangePct: 0.8,
			RandomSeed:      42,
		},
	}}
	return NewSimulatedSource(cfg, logger.NewNopLogger())
}

func TestFetchDailyBars(t *testing.T) {
	s := newSource(0)
	s.now = func() time.Time { return time.Date(2025, 3, 5, 12, 0, 0, 0, time.UTC) }

	bars, err := s.FetchDailyBars(context.Background(), "EURUSD", 20)
	require.NoError(t, err)
	require.Len(t, bars, 21)

	today := bars[len(bars)-1]
	assert.Equal(t, time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC), today.Day)
	assert.Equal(t, 1.16005, today.Open)

	for _, b := range bars[:20] {
		assert.True(t, b.Day.Before(today.Day))
		assert.GreaterOrEqual(t, b.High, b.Low)
		assert.GreaterOrEqual(t, b.High, b.Open)
		assert.LessOrEqual(t, b.Low, b.Close)
		assert.Greater(t, b.Range(), 0.0)
	}

	_, err = s.FetchDailyBars(context.Background(), "NEWCO", 20)
	assert.True(t, errors.Is(err, helpers.ErrHistoryUnavailable))

	_, err = s.FetchDailyBars(context.Background(), "FAKE123", 20)
	assert.True(t, errors.Is(err, helpers.ErrUnknownSymbol))
}

func TestFetchSymbols_ReturnsCopy(t *testing.T) {
	s := newSource(0)
	symbols, err := s.FetchSymbols(context.Background())
	require.NoError(t, err)
	require.Len(t, symbols, 2)

	symbols[0].RequireAskAboveBid = true
	assert.False(t, s.Config.Upstream.Simulated.Symbols[0].RequireAskAboveBid)
}

func TestInjectAndClose(t *testing.T) {
	s := newSource(0)
	ctx := context.Background()

	assert.ErrorIs(t, s.Inject(ctx, models.MRawTick{SymbolID: "NEWCO"}), helpers.ErrSessionClosed)

	ticks, err := s.Connect(ctx)
	require.NoError(t, err)

	_, err = s.Connect(ctx)
	assert.True(t, errors.Is(err, helpers.ErrUpstreamUnavailable))

	require.NoError(t, s.Inject(ctx, models.MRawTick{SymbolID: "NEWCO", Bid: 100, Ask: 100}))
	got := <-ticks
	assert.Equal(t, "NEWCO", got.SymbolID)

	require.NoError(t, s.Close())
	_, open := <-ticks
	assert.False(t, open)
	require.NoError(t, s.Close())

	// A closed source can connect again.
	_, err = s.Connect(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestWalk_OnlyWatchedSymbols(t *testing.T) {
	s := newSource(2)
	ticks, err := s.Connect(context.Background())
	require.NoError(t, err)
	defer s.Close()

	assert.Error(t, s.Watch("FAKE123"))
	require.NoError(t, s.Watch("EURUSD"))

	for i := 0; i < 5; i++ {
		select {
		case tick := <-ticks:
			assert.Equal(t, "EURUSD", tick.SymbolID)
			assert.InDelta(t, 0.0001, tick.Ask-tick.Bid, 1e-12)
		case <-time.After(time.Second):
			t.Fatal("no simulated tick")
		}
	}
	assert.Greater(t, s.Price("EURUSD"), 0.0)

	require.NoError(t, s.Unwatch("EURUSD"))
}

func TestConnect_CancelledContext(t *testing.T) {
	s := newSource(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Connect(ctx)
	assert.True(t, errors.Is(err, helpers.ErrUpstreamUnavailable))
}
