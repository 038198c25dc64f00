package models

// MSymbol is the immutable numeric metadata of a tradable instrument.
type MSymbol struct {
	ID            string  `json:"id" yaml:"id"`
	DecimalDigits int     `json:"digits" yaml:"digits"`
	PipSize       float64 `json:"pip_size" yaml:"pip_size"`
	PipPosition   int     `json:"pip_position" yaml:"pip_position"`
	Class         string  `json:"class" yaml:"class"` // e.g. "fx", "equity", "crypto"

	// Opt-in per instrument class; never applied globally.
	RequireAskAboveBid bool `json:"-" yaml:"-"`
}
