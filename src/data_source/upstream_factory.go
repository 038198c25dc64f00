package datasource

import (
	"fmt"

	"range-meter/src/data_source/feed"
	"range-meter/src/data_source/simulated"
	"range-meter/src/interfaces"
	"range-meter/src/logger"
	"range-meter/src/metrics"
	"range-meter/src/models"
)

// NewUpstream builds the single upstream configured under upstream.type.
func NewUpstream(cfg *models.MConfig, netMgr interfaces.INetworkManager, log *logger.Logger, m *metrics.Metrics) (interfaces.IUpstream, error) {
	switch cfg.Upstream.Type {
	case "feed":
		return feed.NewFeedSource(cfg, netMgr, log.Named("FeedSource"), m), nil
	case "simulated":
		return simulated.NewSimulatedSource(cfg, log.Named("SimulatedSource")), nil
	default:
		return nil, fmt.Errorf("unsupported upstream type: %q", cfg.Upstream.Type)
	}
}
