package mirror

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"range-meter/src/logger"
	"range-meter/src/models"
	"range-meter/src/protocol"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackagePayload(t *testing.T) {
	pkg := models.MDailyRangePackage{
		SymbolID:     "EURUSD",
		Open:         1.16005,
		HighSoFar:    1.161,
		LowSoFar:     1.1595,
		ADR:          0.02,
		LookbackDays: 20,
		TradingDay:   time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC),
		Seeded:       true,
	}

	data, err := json.Marshal(packagePayload(pkg))
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"type":"symbolDataPackage","symbol":"EURUSD",
		"todaysOpen":1.16005,"todaysHigh":1.161,"todaysLow":1.1595,
		"adr":0.02,"lookbackDays":20,"tradingDay":"2025-03-05","seeded":true
	}`, string(data))

	// Mirrored packages decode as protocol messages.
	msg, err := protocol.DecodeServer(data)
	require.NoError(t, err)
	assert.Equal(t, "EURUSD", msg.(protocol.PackageMessage).Symbol)
}

func TestChannels(t *testing.T) {
	m := &RedisMirror{channel: "range-meter.ticks"}
	assert.Equal(t, "range-meter.ticks", m.TickChannel())
	assert.Equal(t, "range-meter.ticks.packages", m.PackageChannel())
}

func TestNewRedisMirror_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	_, err := NewRedisMirror(ctx, models.MMirrorConfig{Enabled: true, Addr: "127.0.0.1:1", Channel: "x"}, logger.NewNopLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "127.0.0.1:1")
}
