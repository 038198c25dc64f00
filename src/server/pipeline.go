package server

import (
	"context"
	"sync"
	"time"

	"range-meter/src/models"
)

// -----------------------------------------------------------------------------
// Per-symbol feed pipelines
// -----------------------------------------------------------------------------

// startPipeline opens the symbol's tick stream on the shared session unless a
// pipeline is already running. Called from the hub only.
func (s *Server) startPipeline(symbolID string) {
	if _, running := s.pipelines[symbolID]; running {
		return
	}
	sym, err := s.Session.GetSymbol(symbolID)
	if err != nil {
		return
	}
	stream, err := s.Session.StreamTicks(symbolID)
	if err != nil {
		s.Logger.Debug("Not streaming %s yet: %v", symbolID, err)
		return
	}

	s.nextGen++
	gen := s.nextGen
	s.pipelines[symbolID] = gen
	if s.Roller != nil {
		s.Roller.Track(sym)
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.runPipeline(sym, stream)
		s.notify(pipelineEnded{symbol: symbolID, gen: gen})
	}()
}

// -----------------------------------------------------------------------------

// runPipeline validates raw ticks, folds them into the package and hands them
// to the hub. A tick the hub has not taken yet is replaced by the newer one.
func (s *Server) runPipeline(sym models.MSymbol, stream <-chan models.MRawTick) {
	for {
		select {
		case <-s.ctx.Done():
			return
		case raw, ok := <-stream:
			if !ok {
				return
			}
			tick, accepted := s.Validator.Validate(raw, sym)
			if !accepted {
				continue
			}

			pkg, _, has := s.Assembler.Accept(tick)
			s.mirrorTick(tick)

			if s.ticks.put(tickUpdate{tick: tick, pkg: pkg, hasPackage: has}) {
				s.Metrics.DroppedTicks.WithLabelValues("hub").Inc()
			}
		}
	}
}

// -----------------------------------------------------------------------------

// tickSlots holds the newest accepted tick per symbol until the hub takes it.
type tickSlots struct {
	mu      sync.Mutex
	pending map[string]tickUpdate
	order   []string
	wake    chan struct{}
}

func newTickSlots() *tickSlots {
	return &tickSlots{
		pending: make(map[string]tickUpdate),
		wake:    make(chan struct{}, 1),
	}
}

// put stores upd in its symbol's slot and reports whether it replaced a tick
// the hub had not taken yet.
func (q *tickSlots) put(upd tickUpdate) bool {
	symbolID := upd.tick.SymbolID

	q.mu.Lock()
	_, replaced := q.pending[symbolID]
	if !replaced {
		q.order = append(q.order, symbolID)
	}
	q.pending[symbolID] = upd
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return replaced
}

// take returns the held ticks in arrival order and clears the slots.
func (q *tickSlots) take() []tickUpdate {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]tickUpdate, 0, len(q.order))
	for _, symbolID := range q.order {
		out = append(out, q.pending[symbolID])
		delete(q.pending, symbolID)
	}
	q.order = q.order[:0]
	return out
}

// -----------------------------------------------------------------------------
// Session status and day roll
// -----------------------------------------------------------------------------

func (s *Server) watchSession() {
	events := s.Session.StatusEvents()
	for {
		select {
		case <-s.ctx.Done():
			return
		case st := <-events:
			s.Logger.Info("Session status: %s", st)
			s.notify(sessionStatus{status: st})
		}
	}
}

// -----------------------------------------------------------------------------

func (s *Server) watchDayRoll(interval time.Duration) {
	rolled := make(chan string)
	go s.Roller.Run(s.ctx, interval, rolled)

	for {
		select {
		case <-s.ctx.Done():
			return
		case symbolID := <-rolled:
			s.ResetSymbol(s.ctx, symbolID)
		}
	}
}

// -----------------------------------------------------------------------------

// ResetSymbol replaces the symbol's package with a freshly assembled one and
// re-sends it to every subscriber.
func (s *Server) ResetSymbol(ctx context.Context, symbolID string) (models.MDailyRangePackage, error) {
	pkg, err := s.Assembler.Reset(ctx, symbolID)
	s.notify(symbolReset{symbol: symbolID, pkg: pkg, err: err})
	if err == nil {
		s.mirrorPackage(pkg)
	}
	return pkg, err
}

// -----------------------------------------------------------------------------
// Introspection
// -----------------------------------------------------------------------------

// SymbolSubscribers returns the number of subscribers per subscribed symbol.
func (s *Server) SymbolSubscribers(ctx context.Context) (map[string]int, error) {
	out := make(map[string]int)
	err := s.inHub(ctx, func() {
		for _, symbolID := range s.router.Symbols() {
			out[symbolID] = len(s.router.Subscribers(symbolID))
		}
	})
	return out, err
}

func (s *Server) ClientCount() int {
	return int(s.clientCount.Load())
}

func (s *Server) SubscriptionCount() int {
	return int(s.subCount.Load())
}

// -----------------------------------------------------------------------------
// Mirror
// -----------------------------------------------------------------------------

func (s *Server) mirrorTick(tick models.MTick) {
	if s.Mirror == nil {
		return
	}
	if err := s.Mirror.PublishTick(s.ctx, tick); err != nil {
		s.Logger.Debug("Mirror tick %s failed: %v", tick.SymbolID, err)
	}
}

func (s *Server) mirrorPackage(pkg models.MDailyRangePackage) {
	if s.Mirror == nil {
		return
	}
	if err := s.Mirror.PublishPackage(s.ctx, pkg); err != nil {
		s.Logger.Debug("Mirror package %s failed: %v", pkg.SymbolID, err)
	}
}
