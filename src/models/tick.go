package models

import "time"

// MRawTick is an unvalidated price sample as received from the upstream.
type MRawTick struct {
	SymbolID  string
	Bid       float64
	Ask       float64
	Timestamp time.Time
}

// MTick is a validated bid/ask sample.
type MTick struct {
	SymbolID  string    `json:"symbol"`
	Bid       float64   `json:"bid"`
	Ask       float64   `json:"ask"`
	Timestamp time.Time `json:"timestamp"`
}

// Mid returns the midpoint of bid and ask.
func (t MTick) Mid() float64 {
	return (t.Bid + t.Ask) / 2
}

// MDailyBar is one completed (or in-progress) trading day of an instrument.
type MDailyBar struct {
	SymbolID string    `json:"symbol"`
	Day      time.Time `json:"day"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
}

// Range returns the high-low spread of the bar.
func (b MDailyBar) Range() float64 {
	return b.High - b.Low
}
