package interfaces

import (
	"context"
	"time"

	"range-meter/src/models"
)

// -----------------------------------------------------------------------------
// IRangeProvider is the part of the session the package assembler depends on.
// -----------------------------------------------------------------------------

type IRangeProvider interface {

	// GetSymbol returns the registered symbol or an UnknownSymbol error
	GetSymbol(id string) (models.MSymbol, error)

	// TradingDay returns the trading session the symbol is currently in
	TradingDay(sym models.MSymbol) time.Time

	// -----------------------------------------------------------------------------

	// RequestDailyRange returns today's package or a HistoryUnavailable error
	RequestDailyRange(ctx context.Context, symbolID string, lookbackDays int) (models.MDailyRangePackage, error)
}
