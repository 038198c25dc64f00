package interfaces

import (
	"time"

	"range-meter/src/models"
)

// -----------------------------------------------------------------------------
// IDatabase defines the contract for the persistent cache.
// -----------------------------------------------------------------------------

type IDatabase interface {

	// -----------------------------------------------------------------------------

	// Initialize sets up the database schema and tables.
	Initialize() error

	// -----------------------------------------------------------------------------

	// SaveSymbols upserts the symbol registry.
	SaveSymbols(symbols []models.MSymbol) error

	// LoadSymbols returns every cached symbol.
	LoadSymbols() ([]models.MSymbol, error)

	// -----------------------------------------------------------------------------

	// SaveDailyBars upserts completed daily bars.
	SaveDailyBars(bars []models.MDailyBar) error

	// LoadDailyBars returns the newest bars strictly before the given day, oldest first.
	LoadDailyBars(symbolID string, before time.Time, limit int) ([]models.MDailyBar, error)

	// -----------------------------------------------------------------------------

	// CleanupOldData removes bars older than the retention policy.
	CleanupOldData() error

	// -----------------------------------------------------------------------------

	// Close the database connection
	Close() error
}
