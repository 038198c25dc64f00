package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"range-meter/src/analysis/core"
	"range-meter/src/helpers"
	"range-meter/src/interfaces"
	"range-meter/src/logger"
	"range-meter/src/metrics"
	"range-meter/src/models"
	"range-meter/src/utils"
)

const (
	streamBuffer      = 256
	statusEventBuffer = 16
)

// Status is the lifecycle state of the upstream session.
type Status string

const (
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
)

// -----------------------------------------------------------------------------
// SessionManager owns the single upstream connection, the symbol registry and
// the package book. Both survive Close/Reopen.
// -----------------------------------------------------------------------------

type SessionManager struct {
	Config   *models.MConfig
	Upstream interfaces.IUpstream
	DB       interfaces.IDatabase
	Logger   *logger.Logger
	Metrics  *metrics.Metrics

	// AskAboveBid reports whether an instrument class opted into the ask>bid check.
	AskAboveBid func(class string) bool

	registry  atomic.Pointer[SymbolRegistry]
	packages  *PackageBook
	calendars sync.Map // symbol id -> *utils.TradingCalendar
	now       func() time.Time

	mu           sync.Mutex
	status       Status
	streams      map[string][]chan models.MRawTick
	pumpDone     chan struct{}
	statusEvents chan Status
	lastErr      error
}

// -----------------------------------------------------------------------------

func NewSessionManager(
	cfg *models.MConfig,
	upstream interfaces.IUpstream,
	db interfaces.IDatabase,
	log *logger.Logger,
	m *metrics.Metrics,
) *SessionManager {
	return &SessionManager{
		Config:       cfg,
		Upstream:     upstream,
		DB:           db,
		Logger:       log,
		Metrics:      m,
		packages:     NewPackageBook(),
		now:          time.Now,
		status:       StatusDisconnected,
		streams:      make(map[string][]chan models.MRawTick),
		statusEvents: make(chan Status, statusEventBuffer),
	}
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Connect opens the upstream and loads the registry on first use. Failures are
// returned as UpstreamUnavailable and never retried here.
func (s *SessionManager) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.status != StatusDisconnected {
		s.mu.Unlock()
		return nil
	}
	s.setStatusLocked(StatusConnecting)
	s.mu.Unlock()

	ticks, err := s.Upstream.Connect(ctx)
	if err != nil {
		s.setStatus(StatusDisconnected)
		if !errors.Is(err, helpers.ErrUpstreamUnavailable) {
			err = helpers.NewUpstreamUnavailable("connect to "+s.Upstream.Name(), err)
		}
		return err
	}

	if s.registry.Load() == nil {
		reg, err := s.loadRegistry(ctx)
		if err != nil {
			s.Upstream.Close()
			s.setStatus(StatusDisconnected)
			return err
		}
		s.registry.Store(reg)
		s.Logger.Info("Symbol registry loaded with %d symbols", reg.Len())
	}

	done := make(chan struct{})
	s.mu.Lock()
	s.pumpDone = done
	s.lastErr = nil
	s.setStatusLocked(StatusConnected)
	s.mu.Unlock()

	go s.pump(ticks, done)
	return nil
}

// -----------------------------------------------------------------------------

// Close ends the upstream connection and every tick stream. The registry and
// package book are kept so a Reopen is cheap.
func (s *SessionManager) Close() error {
	s.mu.Lock()
	done := s.pumpDone
	s.pumpDone = nil
	wasOpen := s.status != StatusDisconnected
	s.lastErr = nil
	s.setStatusLocked(StatusDisconnected)
	s.mu.Unlock()

	if !wasOpen && done == nil {
		return nil
	}

	err := s.Upstream.Close()
	if done != nil {
		<-done
	}

	s.mu.Lock()
	s.closeStreamsLocked()
	s.mu.Unlock()

	s.Logger.Info("Session closed")
	return err
}

// -----------------------------------------------------------------------------

// Reopen closes whatever is left of the previous connection and connects again.
func (s *SessionManager) Reopen(ctx context.Context) error {
	if err := s.Close(); err != nil {
		s.Logger.Warning("Error closing previous session: %v", err)
	}
	return s.Connect(ctx)
}

// -----------------------------------------------------------------------------

func (s *SessionManager) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// LastError returns why the session last dropped on its own, or nil after a
// deliberate Close or a successful Connect.
func (s *SessionManager) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// StatusEvents publishes every status change. Events are dropped when nobody reads.
func (s *SessionManager) StatusEvents() <-chan Status {
	return s.statusEvents
}

func (s *SessionManager) setStatus(st Status) {
	s.mu.Lock()
	s.setStatusLocked(st)
	s.mu.Unlock()
}

func (s *SessionManager) setStatusLocked(st Status) {
	if s.status == st {
		return
	}
	s.status = st
	select {
	case s.statusEvents <- st:
	default:
	}
}

// -----------------------------------------------------------------------------

func (s *SessionManager) loadRegistry(ctx context.Context) (*SymbolRegistry, error) {
	symbols, err := s.Upstream.FetchSymbols(ctx)
	if err != nil || len(symbols) == 0 {
		if err != nil {
			s.Logger.Warning("Symbol list unavailable from %s: %v", s.Upstream.Name(), err)
		}
		cached, cerr := s.DB.LoadSymbols()
		if cerr != nil || len(cached) == 0 {
			if err == nil {
				err = cerr
			}
			return nil, helpers.NewUpstreamUnavailable("no symbol list from upstream or cache", err)
		}
		s.Logger.Info("Using %d cached symbols", len(cached))
		symbols = cached
	} else if err := s.DB.SaveSymbols(symbols); err != nil {
		s.Logger.Warning("Failed to cache symbols: %v", err)
	}

	for i := range symbols {
		symbols[i].RequireAskAboveBid = s.AskAboveBid != nil && s.AskAboveBid(symbols[i].Class)
	}
	return NewSymbolRegistry(symbols), nil
}

// -----------------------------------------------------------------------------
// Tick fan-out
// -----------------------------------------------------------------------------

func (s *SessionManager) pump(ticks <-chan models.MRawTick, done chan struct{}) {
	defer close(done)

	for raw := range ticks {
		s.mu.Lock()
		for _, ch := range s.streams[raw.SymbolID] {
			select {
			case ch <- raw:
			default:
				s.Metrics.DroppedTicks.WithLabelValues("session").Inc()
			}
		}
		s.mu.Unlock()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusDisconnected {
		s.Logger.Warning("Upstream %s ended the stream", s.Upstream.Name())
		s.lastErr = helpers.NewUpstreamUnavailable("upstream "+s.Upstream.Name()+" ended the stream", nil)
		s.setStatusLocked(StatusDisconnected)
	}
	s.closeStreamsLocked()
}

func (s *SessionManager) closeStreamsLocked() {
	for id, list := range s.streams {
		for _, ch := range list {
			close(ch)
		}
		delete(s.streams, id)
	}
}

// -----------------------------------------------------------------------------

// StreamTicks returns a new stream of raw ticks for one symbol. The stream is
// closed when the session closes and cannot be restarted.
func (s *SessionManager) StreamTicks(symbolID string) (<-chan models.MRawTick, error) {
	if _, err := s.GetSymbol(symbolID); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.status != StatusConnected {
		s.mu.Unlock()
		return nil, helpers.ErrSessionClosed
	}
	ch := make(chan models.MRawTick, streamBuffer)
	first := len(s.streams[symbolID]) == 0
	s.streams[symbolID] = append(s.streams[symbolID], ch)
	s.mu.Unlock()

	if first {
		if err := s.Upstream.Watch(symbolID); err != nil {
			s.Logger.Warning("Watch %s failed: %v", symbolID, err)
		}
	}
	return ch, nil
}

// -----------------------------------------------------------------------------
// Registry and packages
// -----------------------------------------------------------------------------

// Registry returns the loaded registry, or nil before the first Connect.
func (s *SessionManager) Registry() *SymbolRegistry {
	return s.registry.Load()
}

func (s *SessionManager) GetSymbol(id string) (models.MSymbol, error) {
	reg := s.registry.Load()
	if reg == nil {
		return models.MSymbol{}, helpers.NewUnknownSymbol(id)
	}
	return reg.Get(id)
}

func (s *SessionManager) Packages() *PackageBook {
	return s.packages
}

// -----------------------------------------------------------------------------

// TradingDay returns the trading session a symbol is currently in.
func (s *SessionManager) TradingDay(sym models.MSymbol) time.Time {
	cal, ok := s.calendars.Load(sym.ID)
	if !ok {
		cal, _ = s.calendars.LoadOrStore(sym.ID, utils.CalendarFor(sym))
	}
	return cal.(*utils.TradingCalendar).TradingDay(s.now())
}

// -----------------------------------------------------------------------------

// RequestDailyRange builds today's package from upstream history. Completed
// bars are written to the cache; when the upstream request fails for a reason
// other than missing history, cached bars still supply the ADR and the package
// is returned unseeded.
func (s *SessionManager) RequestDailyRange(ctx context.Context, symbolID string, lookbackDays int) (models.MDailyRangePackage, error) {
	sym, err := s.GetSymbol(symbolID)
	if err != nil {
		return models.MDailyRangePackage{}, err
	}
	if lookbackDays <= 0 {
		lookbackDays = s.Config.Upstream.LookbackDays
	}
	day := s.TradingDay(sym)

	bars, err := s.Upstream.FetchDailyBars(ctx, symbolID, lookbackDays)
	if err != nil {
		if errors.Is(err, helpers.ErrHistoryUnavailable) {
			return models.MDailyRangePackage{}, err
		}
		return s.cachedRange(symbolID, day, lookbackDays, err)
	}

	// Before the session's first trade the upstream has no bar for today, so
	// every bar it returned is a completed one.
	completed := bars
	hasToday := len(bars) > 0 && !dateOf(bars[len(bars)-1].Day).Before(day)
	if hasToday {
		completed = bars[:len(bars)-1]
	}
	if len(completed) > 0 {
		if err := s.DB.SaveDailyBars(completed); err != nil {
			s.Logger.Warning("Failed to cache bars for %s: %v", symbolID, err)
		}
	}

	if !hasToday {
		adr, used := core.ComputeADR(completed, lookbackDays)
		if used == 0 || adr <= 0 {
			return models.MDailyRangePackage{}, helpers.NewHistoryUnavailable(symbolID, nil)
		}
		return models.MDailyRangePackage{
			SymbolID:     symbolID,
			ADR:          adr,
			LookbackDays: used,
			TradingDay:   day,
			FromHistory:  true,
		}, nil
	}

	pkg, err := core.BuildDailyRange(symbolID, bars, lookbackDays)
	if err != nil {
		return models.MDailyRangePackage{}, helpers.NewHistoryUnavailable(symbolID, err)
	}
	pkg.TradingDay = day
	return pkg, nil
}

// -----------------------------------------------------------------------------

func (s *SessionManager) cachedRange(symbolID string, day time.Time, lookbackDays int, cause error) (models.MDailyRangePackage, error) {
	bars, err := s.DB.LoadDailyBars(symbolID, day, lookbackDays)
	if err != nil || len(bars) == 0 {
		return models.MDailyRangePackage{}, helpers.NewHistoryUnavailable(symbolID, cause)
	}

	adr, used := core.ComputeADR(bars, lookbackDays)
	if used == 0 || adr <= 0 {
		return models.MDailyRangePackage{}, helpers.NewHistoryUnavailable(symbolID, cause)
	}

	s.Logger.Warning("History request for %s failed (%v); using %d cached bars", symbolID, cause, used)
	return models.MDailyRangePackage{
		SymbolID:     symbolID,
		ADR:          adr,
		LookbackDays: used,
		TradingDay:   day,
		FromHistory:  true,
	}, nil
}

// -----------------------------------------------------------------------------

// Contains reports whether id is in the full loaded symbol set.
func (s *SessionManager) Contains(id string) bool {
	reg := s.registry.Load()
	return reg != nil && reg.Contains(id)
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
