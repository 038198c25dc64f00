package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"range-meter/src/logger"
	"range-meter/src/models"
	"range-meter/src/protocol"

	"github.com/redis/go-redis/v9"
)

const publishTimeout = 500 * time.Millisecond

// RedisMirror publishes accepted ticks and assembled packages to Redis
// pub/sub, using the same JSON shapes as the WebSocket protocol.
type RedisMirror struct {
	client  *redis.Client
	channel string
	Logger  *logger.Logger
}

// -----------------------------------------------------------------------------

func NewRedisMirror(ctx context.Context, cfg models.MMirrorConfig, log *logger.Logger) (*RedisMirror, error) {
	client := redis.NewClient(&redis.Options{
		Addr: cfg.Addr,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis mirror at %s: %w", cfg.Addr, err)
	}

	log.Info("Mirroring market data to redis %s (channel %s)", cfg.Addr, cfg.Channel)
	return &RedisMirror{client: client, channel: cfg.Channel, Logger: log}, nil
}

// -----------------------------------------------------------------------------

// TickChannel and PackageChannel name the pub/sub channels.
func (m *RedisMirror) TickChannel() string {
	return m.channel
}

func (m *RedisMirror) PackageChannel() string {
	return m.channel + ".packages"
}

// -----------------------------------------------------------------------------

func (m *RedisMirror) PublishTick(ctx context.Context, tick models.MTick) error {
	return m.publish(ctx, m.TickChannel(), protocol.NewTickMessage(tick))
}

func (m *RedisMirror) PublishPackage(ctx context.Context, pkg models.MDailyRangePackage) error {
	return m.publish(ctx, m.PackageChannel(), packagePayload(pkg))
}

func (m *RedisMirror) publish(ctx context.Context, channel string, msg interface{}) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	return m.client.Publish(ctx, channel, data).Err()
}

// -----------------------------------------------------------------------------

// Subscribe delivers mirrored payloads from channel to handler until ctx is done.
func (m *RedisMirror) Subscribe(ctx context.Context, channel string, handler func([]byte)) error {
	sub := m.client.Subscribe(ctx, channel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return err
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				handler([]byte(msg.Payload))
			}
		}
	}()
	return nil
}

// -----------------------------------------------------------------------------

func (m *RedisMirror) Close() error {
	return m.client.Close()
}

// -----------------------------------------------------------------------------

// packagePayload is the mirrored form of a package. It carries the trading day
// so consumers can tell a reset from a resend.
func packagePayload(pkg models.MDailyRangePackage) map[string]interface{} {
	return map[string]interface{}{
		"type":         protocol.TypeSymbolDataPackage,
		"symbol":       pkg.SymbolID,
		"todaysOpen":   pkg.Open,
		"todaysHigh":   pkg.HighSoFar,
		"todaysLow":    pkg.LowSoFar,
		"adr":          pkg.ADR,
		"lookbackDays": pkg.LookbackDays,
		"tradingDay":   pkg.TradingDay.Format("2006-01-02"),
		"seeded":       pkg.Seeded,
	}
}
