package validation

import (
	"errors"
	"math"

	"range-meter/src/helpers"
	"range-meter/src/metrics"
	"range-meter/src/models"
)

// Rejection reasons, used as metric labels.
const (
	ReasonNonFinite   = "non_finite"
	ReasonNonPositive = "non_positive"
	ReasonCrossed     = "ask_not_above_bid"
	ReasonNoSymbol    = "no_symbol"
)

// Validate accepts a tick whose bid and ask are finite and strictly positive.
// The ask>bid rule is applied only when sym opted into it.
func Validate(raw models.MRawTick, sym models.MSymbol) (models.MTick, error) {
	switch {
	case raw.SymbolID == "":
		return models.MTick{}, helpers.NewRejectedTick(ReasonNoSymbol)
	case math.IsNaN(raw.Bid) || math.IsInf(raw.Bid, 0) || math.IsNaN(raw.Ask) || math.IsInf(raw.Ask, 0):
		return models.MTick{}, helpers.NewRejectedTick(ReasonNonFinite)
	case raw.Bid <= 0 || raw.Ask <= 0:
		return models.MTick{}, helpers.NewRejectedTick(ReasonNonPositive)
	case sym.RequireAskAboveBid && raw.Ask <= raw.Bid:
		return models.MTick{}, helpers.NewRejectedTick(ReasonCrossed)
	}

	return models.MTick{
		SymbolID:  raw.SymbolID,
		Bid:       raw.Bid,
		Ask:       raw.Ask,
		Timestamp: raw.Timestamp,
	}, nil
}

// -----------------------------------------------------------------------------

// TickValidator counts rejections. Rejected ticks are never surfaced to clients.
type TickValidator struct {
	Metrics *metrics.Metrics
}

func NewTickValidator(m *metrics.Metrics) *TickValidator {
	return &TickValidator{Metrics: m}
}

// Validate returns the accepted tick and true, or a zero tick and false.
func (v *TickValidator) Validate(raw models.MRawTick, sym models.MSymbol) (models.MTick, bool) {
	tick, err := Validate(raw, sym)
	if err != nil {
		var rej *helpers.RejectedTickError
		if errors.As(err, &rej) && v.Metrics != nil {
			v.Metrics.RejectedTicks.WithLabelValues(rej.Reason).Inc()
		}
		return models.MTick{}, false
	}
	return tick, true
}
