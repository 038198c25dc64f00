package assembler

import (
	"context"
	"errors"
	"sync"

	"range-meter/src/helpers"
	"range-meter/src/interfaces"
	"range-meter/src/logger"
	"range-meter/src/metrics"
	"range-meter/src/models"
	"range-meter/src/session"
)

// -----------------------------------------------------------------------------
// DataPackageAssembler builds each symbol's daily range package and keeps its
// extremes current as validated ticks arrive.
// -----------------------------------------------------------------------------

type DataPackageAssembler struct {
	Provider interfaces.IRangeProvider
	Book     *session.PackageBook
	Lookback int
	Logger   *logger.Logger
	Metrics  *metrics.Metrics

	mu       sync.Mutex
	inflight map[string]*assembly

	// Ticks accepted while a symbol has no package are folded here and
	// merged when the package is installed.
	backlogMu sync.Mutex
	backlog   map[string]models.MDailyRangePackage
}

type assembly struct {
	done chan struct{}
	pkg  models.MDailyRangePackage
	err  error
}

// -----------------------------------------------------------------------------

func NewDataPackageAssembler(
	provider interfaces.IRangeProvider,
	book *session.PackageBook,
	lookback int,
	log *logger.Logger,
	m *metrics.Metrics,
) *DataPackageAssembler {
	return &DataPackageAssembler{
		Provider: provider,
		Book:     book,
		Lookback: lookback,
		Logger:   log,
		Metrics:  m,
		inflight: make(map[string]*assembly),
		backlog:  make(map[string]models.MDailyRangePackage),
	}
}

// -----------------------------------------------------------------------------

// Package returns the installed package, assembling it first if needed.
// Concurrent callers for the same symbol share one assembly.
func (a *DataPackageAssembler) Package(ctx context.Context, symbolID string) (models.MDailyRangePackage, error) {
	if pkg, ok := a.Book.Get(symbolID); ok {
		return pkg, nil
	}

	a.mu.Lock()
	if call, ok := a.inflight[symbolID]; ok {
		a.mu.Unlock()
		select {
		case <-call.done:
			return call.pkg, call.err
		case <-ctx.Done():
			return models.MDailyRangePackage{}, ctx.Err()
		}
	}
	call := &assembly{done: make(chan struct{})}
	a.inflight[symbolID] = call
	a.mu.Unlock()

	call.pkg, call.err = a.Assemble(ctx, symbolID)

	a.mu.Lock()
	delete(a.inflight, symbolID)
	a.mu.Unlock()
	close(call.done)

	return call.pkg, call.err
}

// -----------------------------------------------------------------------------

// Assemble requests history and installs the resulting package. Missing
// history is not an error: an unseeded package is installed and the first
// accepted tick seeds it.
func (a *DataPackageAssembler) Assemble(ctx context.Context, symbolID string) (models.MDailyRangePackage, error) {
	sym, err := a.Provider.GetSymbol(symbolID)
	if err != nil {
		return models.MDailyRangePackage{}, err
	}

	pkg, err := a.Provider.RequestDailyRange(ctx, symbolID, a.Lookback)
	switch {
	case err == nil:
		a.Metrics.PackageAssemblies.WithLabelValues("history").Inc()
	case errors.Is(err, helpers.ErrHistoryUnavailable):
		a.Logger.Info("No history for %s, accumulating from live ticks: %v", symbolID, err)
		a.Metrics.PackageAssemblies.WithLabelValues("ticks").Inc()
		pkg = models.MDailyRangePackage{
			SymbolID:   symbolID,
			TradingDay: a.Provider.TradingDay(sym),
		}
	default:
		return models.MDailyRangePackage{}, err
	}

	a.backlogMu.Lock()
	if early, ok := a.backlog[symbolID]; ok {
		pkg.Merge(early)
		delete(a.backlog, symbolID)
	}
	a.Book.Put(pkg)
	a.backlogMu.Unlock()
	return pkg, nil
}

// -----------------------------------------------------------------------------

// Accept folds a validated tick into the symbol's package. It returns the
// updated package and whether it changed; ok is false when the symbol has no
// package yet, in which case the tick is held for the package being assembled.
func (a *DataPackageAssembler) Accept(tick models.MTick) (pkg models.MDailyRangePackage, changed bool, ok bool) {
	a.backlogMu.Lock()
	defer a.backlogMu.Unlock()

	pkg, changed, ok = a.Book.Update(tick.SymbolID, func(p *models.MDailyRangePackage) bool {
		wasSeeded := p.Seeded
		moved := p.Apply(tick)
		return moved || !wasSeeded
	})
	if !ok {
		early := a.backlog[tick.SymbolID]
		early.SymbolID = tick.SymbolID
		early.Apply(tick)
		a.backlog[tick.SymbolID] = early
	}
	return pkg, changed, ok
}

// -----------------------------------------------------------------------------

// Reset discards the symbol's extremes and assembles a fresh package. It is
// the only way extremes ever narrow.
func (a *DataPackageAssembler) Reset(ctx context.Context, symbolID string) (models.MDailyRangePackage, error) {
	a.backlogMu.Lock()
	delete(a.backlog, symbolID)
	a.Book.Delete(symbolID)
	a.backlogMu.Unlock()
	a.Logger.Info("Resetting daily range for %s", symbolID)
	return a.Package(ctx, symbolID)
}
