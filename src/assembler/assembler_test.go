package assembler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"range-meter/src/helpers"
	"range-meter/src/logger"
	"range-meter/src/metrics"
	"range-meter/src/models"
	"range-meter/src/session"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var today = time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC)

type fakeProvider struct {
	symbols map[string]models.MSymbol
	ranges  map[string]models.MDailyRangePackage
	fail    error
	calls   atomic.Int32
	gate    chan struct{}
}

func (f *fakeProvider) GetSymbol(id string) (models.MSymbol, error) {
	sym, ok := f.symbols[id]
	if !ok {
		return models.MSymbol{}, helpers.NewUnknownSymbol(id)
	}
	return sym, nil
}

func (f *fakeProvider) TradingDay(models.MSymbol) time.Time { return today }

func (f *fakeProvider) RequestDailyRange(ctx context.Context, id string, lookback int) (models.MDailyRangePackage, error) {
	f.calls.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	if f.fail != nil {
		return models.MDailyRangePackage{}, f.fail
	}
	pkg, ok := f.ranges[id]
	if !ok {
		return models.MDailyRangePackage{}, helpers.NewHistoryUnavailable(id, nil)
	}
	pkg.LookbackDays = lookback
	return pkg, nil
}

func newFixture() (*DataPackageAssembler, *fakeProvider, *metrics.Metrics) {
	p := &fakeProvider{
		symbols: map[string]models.MSymbol{
			"EURUSD": {ID: "EURUSD", DecimalDigits: 5, Class: "fx"},
			"NEWCO":  {ID: "NEWCO", DecimalDigits: 2, Class: "equity"},
		},
		ranges: map[string]models.MDailyRangePackage{
			"EURUSD": {SymbolID: "EURUSD", Open: 1.16005, HighSoFar: 1.1610, LowSoFar: 1.1595, ADR: 0.02, TradingDay: today, Seeded: true, FromHistory: true},
		},
	}
	m := metrics.NewUnregistered()
	return NewDataPackageAssembler(p, session.NewPackageBook(), 20, logger.NewNopLogger(), m), p, m
}

func tick(id string, bid, ask float64) models.MTick {
	return models.MTick{SymbolID: id, Bid: bid, Ask: ask, Timestamp: today.Add(time.Hour)}
}

// -----------------------------------------------------------------------------

func TestPackage_FromHistory(t *testing.T) {
	a, _, m := newFixture()

	pkg, err := a.Package(context.Background(), "EURUSD")
	require.NoError(t, err)
	assert.True(t, pkg.Seeded)
	assert.Equal(t, 1.16005, pkg.Open)
	assert.Equal(t, 20, pkg.LookbackDays)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PackageAssemblies.WithLabelValues("history")))

	stored, ok := a.Book.Get("EURUSD")
	require.True(t, ok)
	assert.Equal(t, pkg, stored)
}

func TestPackage_UnknownSymbol(t *testing.T) {
	a, p, _ := newFixture()

	_, err := a.Package(context.Background(), "FAKE123")
	assert.True(t, errors.Is(err, helpers.ErrUnknownSymbol))
	assert.Equal(t, int32(0), p.calls.Load())
	_, ok := a.Book.Get("FAKE123")
	assert.False(t, ok)
}

func TestPackage_OtherErrorsInstallNothing(t *testing.T) {
	a, p, _ := newFixture()
	p.fail = helpers.NewUpstreamUnavailable("down", nil)

	_, err := a.Package(context.Background(), "EURUSD")
	assert.True(t, errors.Is(err, helpers.ErrUpstreamUnavailable))
	_, ok := a.Book.Get("EURUSD")
	assert.False(t, ok)
}

func TestAccept_HistoryUnavailableSeedsFromTicks(t *testing.T) {
	a, _, m := newFixture()

	pkg, err := a.Package(context.Background(), "NEWCO")
	require.NoError(t, err)
	assert.False(t, pkg.Seeded)
	assert.Equal(t, today, pkg.TradingDay)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PackageAssemblies.WithLabelValues("ticks")))

	for _, price := range []float64{100.0, 101.0, 99.5} {
		_, _, ok := a.Accept(tick("NEWCO", price, price))
		require.True(t, ok)
	}

	pkg, ok := a.Book.Get("NEWCO")
	require.True(t, ok)
	assert.True(t, pkg.Seeded)
	assert.Equal(t, 100.0, pkg.Open)
	assert.Equal(t, 101.0, pkg.HighSoFar)
	assert.Equal(t, 99.5, pkg.LowSoFar)
	assert.Equal(t, 0.0, pkg.ADR)
	assert.False(t, pkg.FromHistory)
}

func TestAccept_ExtremesAreMonotonic(t *testing.T) {
	a, _, _ := newFixture()
	_, err := a.Package(context.Background(), "EURUSD")
	require.NoError(t, err)

	pkg, changed, ok := a.Accept(tick("EURUSD", 1.1600, 1.1601))
	require.True(t, ok)
	assert.False(t, changed)
	assert.Equal(t, 1.1610, pkg.HighSoFar)

	pkg, changed, _ = a.Accept(tick("EURUSD", 1.1611, 1.1612))
	assert.True(t, changed)
	assert.Equal(t, 1.1612, pkg.HighSoFar)

	pkg, _, _ = a.Accept(tick("EURUSD", 1.1590, 1.1591))
	assert.Equal(t, 1.1612, pkg.HighSoFar)
	assert.Equal(t, 1.1590, pkg.LowSoFar)

	pkg, changed, _ = a.Accept(tick("EURUSD", 1.1600, 1.1601))
	assert.False(t, changed)
	assert.Equal(t, 1.1612, pkg.HighSoFar)
	assert.Equal(t, 1.1590, pkg.LowSoFar)
	assert.Equal(t, 1.16005, pkg.Open)
}

func TestAccept_WithoutPackage(t *testing.T) {
	a, _, _ := newFixture()
	_, changed, ok := a.Accept(tick("EURUSD", 1.16, 1.17))
	assert.False(t, ok)
	assert.False(t, changed)
}

func TestAccept_TicksBeforeAssemblyAreKept(t *testing.T) {
	a, _, _ := newFixture()

	for _, price := range []float64{100.0, 101.0, 99.5} {
		_, _, ok := a.Accept(tick("NEWCO", price, price))
		assert.False(t, ok)
	}

	pkg, err := a.Package(context.Background(), "NEWCO")
	require.NoError(t, err)
	assert.True(t, pkg.Seeded)
	assert.Equal(t, 100.0, pkg.Open)
	assert.Equal(t, 101.0, pkg.HighSoFar)
	assert.Equal(t, 99.5, pkg.LowSoFar)

	// The held ticks are consumed once.
	pkg, changed, ok := a.Accept(tick("NEWCO", 100.5, 100.5))
	require.True(t, ok)
	assert.False(t, changed)
	assert.Equal(t, 100.0, pkg.Open)
}

func TestAccept_TicksBeforeAssemblyWidenHistory(t *testing.T) {
	a, _, _ := newFixture()

	a.Accept(tick("EURUSD", 1.1590, 1.1591))
	a.Accept(tick("EURUSD", 1.1605, 1.1606))

	pkg, err := a.Package(context.Background(), "EURUSD")
	require.NoError(t, err)
	assert.Equal(t, 1.16005, pkg.Open)
	assert.Equal(t, 1.1610, pkg.HighSoFar)
	assert.Equal(t, 1.1590, pkg.LowSoFar)
}

func TestReset_DiscardsHeldTicks(t *testing.T) {
	a, _, _ := newFixture()
	a.Accept(tick("EURUSD", 1.1500, 1.1700))

	pkg, err := a.Reset(context.Background(), "EURUSD")
	require.NoError(t, err)
	assert.Equal(t, 1.1610, pkg.HighSoFar)
	assert.Equal(t, 1.1595, pkg.LowSoFar)
}

func TestReset_ReplacesExtremes(t *testing.T) {
	a, p, _ := newFixture()
	ctx := context.Background()
	_, err := a.Package(ctx, "EURUSD")
	require.NoError(t, err)
	a.Accept(tick("EURUSD", 1.1500, 1.1700))

	pkg, err := a.Reset(ctx, "EURUSD")
	require.NoError(t, err)
	assert.Equal(t, 1.1610, pkg.HighSoFar)
	assert.Equal(t, 1.1595, pkg.LowSoFar)
	assert.Equal(t, int32(2), p.calls.Load())
}

func TestPackage_ConcurrentCallersShareOneAssembly(t *testing.T) {
	a, p, _ := newFixture()
	p.gate = make(chan struct{})

	var wg sync.WaitGroup
	results := make([]models.MDailyRangePackage, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			pkg, err := a.Package(context.Background(), "EURUSD")
			assert.NoError(t, err)
			results[i] = pkg
		}(i)
	}

	require.Eventually(t, func() bool { return p.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(p.gate)
	wg.Wait()

	assert.Equal(t, int32(1), p.calls.Load())
	for _, pkg := range results {
		assert.Equal(t, 1.16005, pkg.Open)
	}
}
