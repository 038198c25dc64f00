package utils

import (
	"context"
	"range-meter/src/logger"
	"range-meter/src/models"
	"sync"
	"time"
)

// DayRoller watches per-symbol trading days and reports the symbols whose
// session has changed since the last check.
type DayRoller struct {
	Calendars map[string]*TradingCalendar
	Logger    *logger.Logger
	current   map[string]time.Time
	now       func() time.Time
	mu        sync.Mutex
}

// -----------------------------------------------------------------------------

func NewDayRoller(l *logger.Logger) *DayRoller {
	return &DayRoller{
		Calendars: make(map[string]*TradingCalendar),
		Logger:    l,
		current:   make(map[string]time.Time),
		now:       time.Now,
	}
}

// -----------------------------------------------------------------------------

// Track starts watching a symbol and returns its current trading day.
func (dr *DayRoller) Track(sym models.MSymbol) time.Time {
	dr.mu.Lock()
	defer dr.mu.Unlock()

	cal, ok := dr.Calendars[sym.ID]
	if !ok {
		cal = CalendarFor(sym)
		dr.Calendars[sym.ID] = cal
	}
	day, ok := dr.current[sym.ID]
	if !ok {
		day = cal.TradingDay(dr.now())
		dr.current[sym.ID] = day
	}
	return day
}

// -----------------------------------------------------------------------------

// TradingDay returns the current trading day of a tracked symbol.
func (dr *DayRoller) TradingDay(symbolID string) (time.Time, bool) {
	dr.mu.Lock()
	defer dr.mu.Unlock()
	day, ok := dr.current[symbolID]
	return day, ok
}

// -----------------------------------------------------------------------------

// Check returns the tracked symbols whose trading day changed.
func (dr *DayRoller) Check() []string {
	now := dr.now()

	dr.mu.Lock()
	defer dr.mu.Unlock()

	var rolled []string
	for id, cal := range dr.Calendars {
		day := cal.TradingDay(now)
		if !day.Equal(dr.current[id]) {
			dr.current[id] = day
			rolled = append(rolled, id)
		}
	}

	if len(rolled) > 0 {
		dr.Logger.Info("DayRoller: new trading day for %d symbols", len(rolled))
	}
	return rolled
}

// -----------------------------------------------------------------------------

// Run calls Check every interval and emits rolled symbols until ctx is done.
func (dr *DayRoller) Run(ctx context.Context, interval time.Duration, out chan<- string) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, id := range dr.Check() {
				select {
				case out <- id:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}
