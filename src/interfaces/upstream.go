package interfaces

import (
	"context"

	"range-meter/src/models"
)

// -----------------------------------------------------------------------------
// IUpstream is one physical market-data connection. Every symbol is multiplexed
// over it; the session never opens a second one.
// -----------------------------------------------------------------------------

type IUpstream interface {

	// Name returns the unique identifier of the upstream
	Name() string

	// -----------------------------------------------------------------------------

	// Connect authenticates and opens the stream. The returned channel carries
	// every raw tick for every watched symbol and is closed when the connection ends.
	Connect(ctx context.Context) (<-chan models.MRawTick, error)

	// -----------------------------------------------------------------------------

	// FetchSymbols returns the full tradable symbol set
	FetchSymbols(ctx context.Context) ([]models.MSymbol, error)

	// -----------------------------------------------------------------------------

	// FetchDailyBars returns up to days completed daily bars plus today's bar
	// (last element, possibly partial). Returns helpers.ErrHistoryUnavailable
	// when the instrument class has no history.
	FetchDailyBars(ctx context.Context, symbolID string, days int) ([]models.MDailyBar, error)

	// -----------------------------------------------------------------------------

	// Watch and Unwatch toggle per-symbol streaming on the shared connection
	Watch(symbolID string) error
	Unwatch(symbolID string) error

	// -----------------------------------------------------------------------------

	// Close terminates the connection; the tick channel is closed afterwards
	Close() error
}
