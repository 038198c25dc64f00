package meter

import (
	"context"
	"math"
	"sync"
	"time"

	"range-meter/src/protocol"
	"range-meter/src/rangescale"
	"range-meter/src/render"
)

// Meter is one range widget. Messages land in a single-slot mailbox per kind;
// Frame consumes the latest of each, recomputes the scale and draws, all in
// one call.
type Meter struct {
	SymbolID string
	Width    float64
	Height   float64

	// OnError fires for error messages only. Status never reaches it.
	OnError func(protocol.ErrorMessage)
	// OnStatus fires for status messages.
	OnStatus func(protocol.StatusMessage)

	engine   *rangescale.Engine
	renderer *render.RangeRenderer
	canvas   render.Canvas

	mu      sync.Mutex
	nextPkg *protocol.PackageMessage
	nextTk  *protocol.TickMessage

	frameMu sync.Mutex
	pkg     *protocol.PackageMessage
	high    float64
	low     float64
	current float64
	state   rangescale.RangeState
	drawn   bool
}

// -----------------------------------------------------------------------------

func NewMeter(symbolID string, renderer *render.RangeRenderer, canvas render.Canvas, width, height float64) *Meter {
	return &Meter{
		SymbolID: symbolID,
		Width:    width,
		Height:   height,
		engine:   rangescale.NewEngine(symbolID, 0),
		renderer: renderer,
		canvas:   canvas,
	}
}

// -----------------------------------------------------------------------------

// Post hands a server message to the meter without blocking. A newer package
// or tick replaces an unconsumed older one.
func (m *Meter) Post(msg protocol.ServerMessage) {
	switch v := msg.(type) {
	case protocol.PackageMessage:
		m.mu.Lock()
		m.nextPkg = &v
		m.mu.Unlock()
	case protocol.TickMessage:
		m.mu.Lock()
		m.nextTk = &v
		m.mu.Unlock()
	case protocol.ErrorMessage:
		if m.OnError != nil {
			m.OnError(v)
		}
	case protocol.StatusMessage:
		if m.OnStatus != nil {
			m.OnStatus(v)
		}
	}
}

// -----------------------------------------------------------------------------

// Frame applies the pending package and tick and redraws. It returns false
// when there was nothing to draw.
func (m *Meter) Frame() (rangescale.RangeState, bool) {
	m.frameMu.Lock()
	defer m.frameMu.Unlock()

	m.mu.Lock()
	pkg := m.nextPkg
	m.nextPkg = nil
	// A tick that arrives before any package waits in its slot.
	var tick *protocol.TickMessage
	if pkg != nil || m.pkg != nil {
		tick = m.nextTk
		m.nextTk = nil
	}
	m.mu.Unlock()

	if pkg != nil {
		m.applyPackage(*pkg)
	}
	if m.pkg == nil {
		return m.state, false
	}
	if tick == nil && pkg == nil && m.drawn {
		return m.state, false
	}

	if tick != nil {
		m.current = (tick.Bid + tick.Ask) / 2
		m.high = math.Max(m.high, tick.Ask)
		m.low = math.Min(m.low, tick.Bid)
	}

	m.state = m.engine.Step(rangescale.Input{
		MidPrice:     m.pkg.TodaysOpen,
		HighSoFar:    m.high,
		LowSoFar:     m.low,
		CurrentPrice: m.current,
		ADR:          m.pkg.ADR,
	})
	m.renderer.Render(m.canvas, m.Width, m.Height, m.state)
	m.drawn = true
	return m.state, true
}

// applyPackage installs a package. A package whose open differs, or whose
// extremes are narrower than the previous one, starts a new trading day.
func (m *Meter) applyPackage(p protocol.PackageMessage) {
	prev := m.pkg
	newDay := prev != nil && (p.TodaysOpen != prev.TodaysOpen || p.TodaysHigh < prev.TodaysHigh || p.TodaysLow > prev.TodaysLow)

	if prev == nil || newDay || p.Digits != prev.Digits {
		m.engine = rangescale.NewEngine(m.SymbolID, p.Digits)
		m.high, m.low, m.current = p.TodaysHigh, p.TodaysLow, p.TodaysOpen
	} else {
		m.high = math.Max(m.high, p.TodaysHigh)
		m.low = math.Min(m.low, p.TodaysLow)
	}
	m.pkg = &p
}

// -----------------------------------------------------------------------------

// State returns the last computed range state.
func (m *Meter) State() rangescale.RangeState {
	m.frameMu.Lock()
	defer m.frameMu.Unlock()
	return m.state
}

// Run calls Frame every interval until ctx is done.
func (m *Meter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Frame()
		}
	}
}
