package models

import "time"

// -----------------------------------------------------------------------------
// MDailyRangePackage is the per-symbol summary of today's trading.
// HighSoFar only increases and LowSoFar only decreases until the package is
// replaced on a new trading day.
// -----------------------------------------------------------------------------

type MDailyRangePackage struct {
	SymbolID     string    `json:"symbol"`
	Open         float64   `json:"open"`
	HighSoFar    float64   `json:"high_so_far"`
	LowSoFar     float64   `json:"low_so_far"`
	ADR          float64   `json:"adr"`
	LookbackDays int       `json:"lookback_days"`
	TradingDay   time.Time `json:"trading_day"`

	// Seeded is false until the package carries real prices: a package built
	// without history waits for its first tick.
	Seeded      bool `json:"seeded"`
	FromHistory bool `json:"from_history"`
}

// -----------------------------------------------------------------------------

// Seed initialises an empty package from the first tick.
func (p *MDailyRangePackage) Seed(tick MTick) {
	mid := tick.Mid()
	p.Open = mid
	p.HighSoFar = mid
	p.LowSoFar = mid
	p.Seeded = true
}

// -----------------------------------------------------------------------------

// Apply widens the extremes with a tick. It returns true when either extreme moved.
func (p *MDailyRangePackage) Apply(tick MTick) bool {
	if !p.Seeded {
		p.Seed(tick)
	}

	changed := false
	if tick.Ask > p.HighSoFar {
		p.HighSoFar = tick.Ask
		changed = true
	}
	if tick.Bid < p.LowSoFar {
		p.LowSoFar = tick.Bid
		changed = true
	}
	return changed
}

// -----------------------------------------------------------------------------

// Merge folds extremes gathered before the package was installed. An unseeded
// package adopts them outright, including the open.
func (p *MDailyRangePackage) Merge(early MDailyRangePackage) {
	if !early.Seeded {
		return
	}
	if !p.Seeded {
		p.Open = early.Open
		p.HighSoFar = early.HighSoFar
		p.LowSoFar = early.LowSoFar
		p.Seeded = true
		return
	}
	p.HighSoFar = max(p.HighSoFar, early.HighSoFar)
	p.LowSoFar = min(p.LowSoFar, early.LowSoFar)
}
