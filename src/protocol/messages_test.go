package protocol

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"range-meter/src/helpers"
	"range-meter/src/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerMessages_WireShape(t *testing.T) {
	cases := []struct {
		msg  ServerMessage
		want string
	}{
		{
			ErrorMessage{Message: "Invalid symbol: FAKE123", Symbol: "FAKE123"},
			`{"type":"error","message":"Invalid symbol: FAKE123","symbol":"FAKE123"}`,
		},
		{
			ErrorMessage{Message: "boom"},
			`{"type":"error","message":"boom"}`,
		},
		{
			StatusMessage{Value: StatusDisconnected},
			`{"type":"status","value":"disconnected"}`,
		},
		{
			StatusMessage{Value: StatusWaitingForData, Symbol: "NEWCO"},
			`{"type":"status","value":"waitingForData","symbol":"NEWCO"}`,
		},
		{
			TickMessage{Symbol: "EURUSD", Bid: 1.16, Ask: 1.1601, Timestamp: 1700000000123},
			`{"type":"tick","symbol":"EURUSD","bid":1.16,"ask":1.1601,"timestamp":1700000000123}`,
		},
	}

	for _, tc := range cases {
		data, err := json.Marshal(tc.msg)
		require.NoError(t, err)
		assert.JSONEq(t, tc.want, string(data))
	}
}

func TestPackageMessage_FromDomain(t *testing.T) {
	sym := models.MSymbol{ID: "EURUSD", DecimalDigits: 5, PipSize: 0.0001, PipPosition: 4}
	pkg := models.MDailyRangePackage{SymbolID: "EURUSD", Open: 1.16005, HighSoFar: 1.161, LowSoFar: 1.159, ADR: 0.02, LookbackDays: 20}

	data, err := json.Marshal(NewPackageMessage(pkg, sym))
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"type":"symbolDataPackage","symbol":"EURUSD",
		"todaysOpen":1.16005,"todaysHigh":1.161,"todaysLow":1.159,"adr":0.02,
		"pipPosition":4,"digits":5,"pipSize":0.0001,"lookbackDays":20
	}`, string(data))

	msg, err := DecodeServer(data)
	require.NoError(t, err)
	assert.Equal(t, NewPackageMessage(pkg, sym), msg)
}

func TestDecodeServer_StatusIsNeverAnError(t *testing.T) {
	for _, v := range []StatusValue{StatusConnecting, StatusDisconnected, StatusWaitingForData} {
		data, err := json.Marshal(StatusMessage{Value: v})
		require.NoError(t, err)

		msg, err := DecodeServer(data)
		require.NoError(t, err)
		_, isErr := msg.(ErrorMessage)
		assert.False(t, isErr)
		assert.Equal(t, TypeStatus, msg.Type())
	}
}

func TestDecodeServer_Malformed(t *testing.T) {
	inputs := []string{
		`not json`,
		`{"type":"quote"}`,
		`{"type":"tick","bid":1}`,
		`{"type":"symbolDataPackage"}`,
		`{"type":"status","value":"exploded"}`,
		`{"type":"tick","symbol":"X","bid":"high"}`,
	}
	for _, in := range inputs {
		_, err := DecodeServer([]byte(in))
		require.Error(t, err, in)
		assert.True(t, errors.Is(err, helpers.ErrMalformedMessage), in)
	}
}

func TestTickMessage_Tick(t *testing.T) {
	ts := time.Date(2025, 3, 4, 10, 0, 0, 123e6, time.UTC)
	tick := models.MTick{SymbolID: "EURUSD", Bid: 1.1, Ask: 1.2, Timestamp: ts}
	assert.Equal(t, tick, NewTickMessage(tick).Tick())
}

func TestDecodeClient(t *testing.T) {
	msg, err := DecodeClient([]byte(`{"action":"subscribe","symbol":"EURUSD"}`))
	require.NoError(t, err)
	assert.Equal(t, Subscribe{Symbol: "EURUSD"}, msg)

	msg, err = DecodeClient([]byte(`{"action":"unsubscribe","symbol":"EURUSD"}`))
	require.NoError(t, err)
	assert.Equal(t, Unsubscribe{Symbol: "EURUSD"}, msg)

	for _, in := range []string{`{"action":"subscribe"}`, `{"action":"buy","symbol":"X"}`, `[]`, `{`} {
		_, err := DecodeClient([]byte(in))
		assert.True(t, errors.Is(err, helpers.ErrMalformedMessage), in)
	}

	data, err := json.Marshal(Unsubscribe{Symbol: "AAPL"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"action":"unsubscribe","symbol":"AAPL"}`, string(data))
}
