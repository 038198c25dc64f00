package interfaces

import (
	"context"

	"range-meter/src/models"
)

// -----------------------------------------------------------------------------
// IMirror republishes accepted market data to an external bus.
// -----------------------------------------------------------------------------

type IMirror interface {
	PublishTick(ctx context.Context, tick models.MTick) error
	PublishPackage(ctx context.Context, pkg models.MDailyRangePackage) error
	Close() error
}
