package simulated

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"range-meter/src/helpers"
	"range-meter/src/logger"
	"range-meter/src/models"
	"range-meter/src/utils"
)

const tickBuffer = 256

// SimulatedSource is an in-process upstream producing a random walk per
// watched symbol. Symbols listed under no_history have no daily bars.
type SimulatedSource struct {
	Config *models.MConfig
	Logger *logger.Logger

	prices    map[string]float64
	watched   map[string]struct{}
	noHistory map[string]struct{}
	symbols   map[string]models.MSymbol
	rng       *rand.Rand
	now       func() time.Time

	out    chan models.MRawTick
	done   <-chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
	mu     sync.Mutex
	sendMu sync.RWMutex
}

// -----------------------------------------------------------------------------

func NewSimulatedSource(cfg *models.MConfig, log *logger.Logger) *SimulatedSource {
	sim := cfg.Upstream.Simulated
	seed := uint64(sim.RandomSeed)
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	s := &SimulatedSource{
		Config:    cfg,
		Logger:    log,
		prices:    make(map[string]float64),
		watched:   make(map[string]struct{}),
		noHistory: make(map[string]struct{}),
		symbols:   make(map[string]models.MSymbol),
		rng:       rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		now:       time.Now,
	}
	for _, id := range sim.NoHistory {
		s.noHistory[id] = struct{}{}
	}
	for _, sym := range sim.Symbols {
		s.symbols[sym.ID] = sym
		price, ok := sim.StartPrices[sym.ID]
		if !ok || price <= 0 {
			price = 100
		}
		s.prices[sym.ID] = price
	}
	return s
}

// -----------------------------------------------------------------------------

func (s *SimulatedSource) Name() string {
	return "simulated"
}

// -----------------------------------------------------------------------------

func (s *SimulatedSource) Connect(ctx context.Context) (<-chan models.MRawTick, error) {
	if err := ctx.Err(); err != nil {
		return nil, helpers.NewUpstreamUnavailable("simulated connect cancelled", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	out := make(chan models.MRawTick, tickBuffer)

	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		cancel()
		return nil, helpers.NewUpstreamUnavailable("simulated source already connected", nil)
	}
	s.out = out
	s.done = runCtx.Done()
	s.cancel = cancel
	s.mu.Unlock()

	interval := time.Duration(s.Config.Upstream.Simulated.TickIntervalMs) * time.Millisecond
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if interval > 0 {
			s.walk(runCtx, interval, out)
		} else {
			<-runCtx.Done()
		}
	}()

	s.Logger.Info("Simulated upstream connected (%d symbols, interval %v)", len(s.symbols), interval)
	return out, nil
}

// -----------------------------------------------------------------------------

func (s *SimulatedSource) walk(ctx context.Context, interval time.Duration, out chan<- models.MRawTick) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, tick := range s.step() {
				select {
				case out <- tick:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

// -----------------------------------------------------------------------------

// step advances every watched symbol by one normally distributed move.
func (s *SimulatedSource) step() []models.MRawTick {
	s.mu.Lock()
	defer s.mu.Unlock()

	vol := s.Config.Upstream.Simulated.VolatilityPct / 100
	now := s.now().UTC()

	ticks := make([]models.MRawTick, 0, len(s.watched))
	for id := range s.watched {
		price := s.prices[id] * (1 + vol*s.rng.NormFloat64())
		if price <= 0 {
			continue
		}
		s.prices[id] = price

		spread := s.symbols[id].PipSize
		ticks = append(ticks, models.MRawTick{
			SymbolID:  id,
			Bid:       price - spread/2,
			Ask:       price + spread/2,
			Timestamp: now,
		})
	}
	return ticks
}

// -----------------------------------------------------------------------------

// Inject pushes a tick onto the live stream as if the upstream produced it.
func (s *SimulatedSource) Inject(ctx context.Context, tick models.MRawTick) error {
	s.sendMu.RLock()
	defer s.sendMu.RUnlock()

	s.mu.Lock()
	out, done := s.out, s.done
	s.mu.Unlock()
	if out == nil {
		return helpers.ErrSessionClosed
	}

	select {
	case out <- tick:
		return nil
	case <-done:
		return helpers.ErrSessionClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// -----------------------------------------------------------------------------

func (s *SimulatedSource) FetchSymbols(ctx context.Context) ([]models.MSymbol, error) {
	out := make([]models.MSymbol, len(s.Config.Upstream.Simulated.Symbols))
	copy(out, s.Config.Upstream.Simulated.Symbols)
	return out, nil
}

// -----------------------------------------------------------------------------

// FetchDailyBars synthesizes days completed bars around the start price and a
// partial bar for today opening at the start price.
func (s *SimulatedSource) FetchDailyBars(ctx context.Context, symbolID string, days int) ([]models.MDailyBar, error) {
	if _, ok := s.noHistory[symbolID]; ok {
		return nil, helpers.NewHistoryUnavailable(symbolID, nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	open, ok := s.Config.Upstream.Simulated.StartPrices[symbolID]
	sym, known := s.symbols[symbolID]
	if !known {
		return nil, helpers.NewUnknownSymbol(symbolID)
	}
	if !ok || open <= 0 {
		open = 100
	}

	// The partial bar carries the symbol's trading day, which for FX rolls
	// in the New York evening rather than at UTC midnight.
	today := utils.CalendarFor(sym).TradingDay(s.now())
	rangePct := s.Config.Upstream.Simulated.HistoryRangePct / 100

	bars := make([]models.MDailyBar, 0, days+1)
	for i := days; i >= 1; i-- {
		r := open * rangePct * (0.6 + 0.8*s.rng.Float64())
		lowOffset := r * s.rng.Float64()
		low := open - lowOffset
		high := low + r
		bars = append(bars, models.MDailyBar{
			SymbolID: symbolID,
			Day:      today.AddDate(0, 0, -i),
			Open:     low + r*s.rng.Float64(),
			High:     high,
			Low:      low,
			Close:    low + r*s.rng.Float64(),
		})
	}
	bars = append(bars, models.MDailyBar{
		SymbolID: symbolID,
		Day:      today,
		Open:     open,
		High:     open,
		Low:      open,
		Close:    open,
	})
	return bars, nil
}

// -----------------------------------------------------------------------------

func (s *SimulatedSource) Watch(symbolID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.symbols[symbolID]; !ok {
		return helpers.NewUnknownSymbol(symbolID)
	}
	s.watched[symbolID] = struct{}{}
	return nil
}

// -----------------------------------------------------------------------------

func (s *SimulatedSource) Unwatch(symbolID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.watched, symbolID)
	return nil
}

// -----------------------------------------------------------------------------

// Price returns the current random-walk level for a symbol.
func (s *SimulatedSource) Price(symbolID string) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.prices[symbolID]
}

// -----------------------------------------------------------------------------

func (s *SimulatedSource) Close() error {
	s.mu.Lock()
	cancel := s.cancel
	out := s.out
	s.cancel = nil
	s.out = nil
	s.done = nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	s.wg.Wait()

	s.sendMu.Lock()
	close(out)
	s.sendMu.Unlock()
	return nil
}
