package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"range-meter/src/helpers"
	"range-meter/src/models"
)

// Server -> client message tags.
const (
	TypeSymbolDataPackage = "symbolDataPackage"
	TypeTick              = "tick"
	TypeError             = "error"
	TypeStatus            = "status"
)

// Client -> server actions.
const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
)

// StatusValue is transport or session state. It is informational and never an error.
type StatusValue string

const (
	StatusConnecting     StatusValue = "connecting"
	StatusDisconnected   StatusValue = "disconnected"
	StatusWaitingForData StatusValue = "waitingForData"
)

// -----------------------------------------------------------------------------
// Server messages
// -----------------------------------------------------------------------------

// ServerMessage is the closed set of messages the server sends. Only the types
// in this file implement it.
type ServerMessage interface {
	Type() string
	serverMessage()
}

type PackageMessage struct {
	Symbol       string  `json:"symbol"`
	TodaysOpen   float64 `json:"todaysOpen"`
	TodaysHigh   float64 `json:"todaysHigh"`
	TodaysLow    float64 `json:"todaysLow"`
	ADR          float64 `json:"adr"`
	PipPosition  int     `json:"pipPosition"`
	Digits       int     `json:"digits"`
	PipSize      float64 `json:"pipSize"`
	LookbackDays int     `json:"lookbackDays"`
}

type TickMessage struct {
	Symbol    string  `json:"symbol"`
	Bid       float64 `json:"bid"`
	Ask       float64 `json:"ask"`
	Timestamp int64   `json:"timestamp"` // unix milliseconds
}

type ErrorMessage struct {
	Message string `json:"message"`
	Symbol  string `json:"symbol,omitempty"`
}

type StatusMessage struct {
	Value  StatusValue `json:"value"`
	Symbol string      `json:"symbol,omitempty"`
}

func (PackageMessage) Type() string { return TypeSymbolDataPackage }
func (TickMessage) Type() string    { return TypeTick }
func (ErrorMessage) Type() string   { return TypeError }
func (StatusMessage) Type() string  { return TypeStatus }

func (PackageMessage) serverMessage() {}
func (TickMessage) serverMessage()    {}
func (ErrorMessage) serverMessage()   {}
func (StatusMessage) serverMessage()  {}

// -----------------------------------------------------------------------------

func (m PackageMessage) MarshalJSON() ([]byte, error) {
	type alias PackageMessage
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{TypeSymbolDataPackage, alias(m)})
}

func (m TickMessage) MarshalJSON() ([]byte, error) {
	type alias TickMessage
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{TypeTick, alias(m)})
}

func (m ErrorMessage) MarshalJSON() ([]byte, error) {
	type alias ErrorMessage
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{TypeError, alias(m)})
}

func (m StatusMessage) MarshalJSON() ([]byte, error) {
	type alias StatusMessage
	return json.Marshal(struct {
		Type string `json:"type"`
		alias
	}{TypeStatus, alias(m)})
}

// -----------------------------------------------------------------------------
// Constructors from domain types
// -----------------------------------------------------------------------------

func NewPackageMessage(pkg models.MDailyRangePackage, sym models.MSymbol) PackageMessage {
	return PackageMessage{
		Symbol:       pkg.SymbolID,
		TodaysOpen:   pkg.Open,
		TodaysHigh:   pkg.HighSoFar,
		TodaysLow:    pkg.LowSoFar,
		ADR:          pkg.ADR,
		PipPosition:  sym.PipPosition,
		Digits:       sym.DecimalDigits,
		PipSize:      sym.PipSize,
		LookbackDays: pkg.LookbackDays,
	}
}

func NewTickMessage(t models.MTick) TickMessage {
	return TickMessage{
		Symbol:    t.SymbolID,
		Bid:       t.Bid,
		Ask:       t.Ask,
		Timestamp: t.Timestamp.UnixMilli(),
	}
}

// Tick converts the wire form back into a domain tick.
func (m TickMessage) Tick() models.MTick {
	return models.MTick{
		SymbolID:  m.Symbol,
		Bid:       m.Bid,
		Ask:       m.Ask,
		Timestamp: time.UnixMilli(m.Timestamp).UTC(),
	}
}

// -----------------------------------------------------------------------------

// DecodeServer parses one server message. Unknown or incomplete messages
// return a MalformedMessage error.
func DecodeServer(data []byte) (ServerMessage, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, helpers.NewMalformedMessage("server message is not JSON", err)
	}

	switch head.Type {
	case TypeSymbolDataPackage:
		var m PackageMessage
		if err := json.Unmarshal(data, &m); err != nil || m.Symbol == "" {
			return nil, helpers.NewMalformedMessage("bad symbolDataPackage", err)
		}
		return m, nil
	case TypeTick:
		var m TickMessage
		if err := json.Unmarshal(data, &m); err != nil || m.Symbol == "" {
			return nil, helpers.NewMalformedMessage("bad tick", err)
		}
		return m, nil
	case TypeError:
		var m ErrorMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, helpers.NewMalformedMessage("bad error", err)
		}
		return m, nil
	case TypeStatus:
		var m StatusMessage
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, helpers.NewMalformedMessage("bad status", err)
		}
		switch m.Value {
		case StatusConnecting, StatusDisconnected, StatusWaitingForData:
			return m, nil
		}
		return nil, helpers.NewMalformedMessage(fmt.Sprintf("unknown status %q", m.Value), nil)
	default:
		return nil, helpers.NewMalformedMessage(fmt.Sprintf("unknown message type %q", head.Type), nil)
	}
}

// -----------------------------------------------------------------------------
// Client messages
// -----------------------------------------------------------------------------

// ClientMessage is the closed set of requests a client sends.
type ClientMessage interface {
	Action() string
	SymbolID() string
	clientMessage()
}

type Subscribe struct {
	Symbol string `json:"symbol"`
}

type Unsubscribe struct {
	Symbol string `json:"symbol"`
}

func (Subscribe) Action() string   { return ActionSubscribe }
func (Unsubscribe) Action() string { return ActionUnsubscribe }

func (m Subscribe) SymbolID() string   { return m.Symbol }
func (m Unsubscribe) SymbolID() string { return m.Symbol }

func (Subscribe) clientMessage()   {}
func (Unsubscribe) clientMessage() {}

func (m Subscribe) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{"action": ActionSubscribe, "symbol": m.Symbol})
}

func (m Unsubscribe) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{"action": ActionUnsubscribe, "symbol": m.Symbol})
}

// -----------------------------------------------------------------------------

// DecodeClient parses one client request.
func DecodeClient(data []byte) (ClientMessage, error) {
	var req struct {
		Action string `json:"action"`
		Symbol string `json:"symbol"`
	}
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, helpers.NewMalformedMessage("client message is not JSON", err)
	}
	if req.Symbol == "" {
		return nil, helpers.NewMalformedMessage("client message has no symbol", nil)
	}

	switch req.Action {
	case ActionSubscribe:
		return Subscribe{Symbol: req.Symbol}, nil
	case ActionUnsubscribe:
		return Unsubscribe{Symbol: req.Symbol}, nil
	default:
		return nil, helpers.NewMalformedMessage(fmt.Sprintf("unknown action %q", req.Action), nil)
	}
}
