package helpers

import (
	"errors"
	"fmt"
	"range-meter/src/logger"
	"sync"
)

// -----------------------------------------------------------------------------
// Sentinels
// -----------------------------------------------------------------------------

var (
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrUnknownSymbol       = errors.New("unknown symbol")
	ErrHistoryUnavailable  = errors.New("history unavailable")
	ErrMalformedMessage    = errors.New("malformed message")
	ErrRejectedTick        = errors.New("rejected tick")
	ErrSessionClosed       = errors.New("session closed")
)

// -----------------------------------------------------------------------------
// Custom Error Types
// -----------------------------------------------------------------------------

type MarketObserverError struct {
	Message string
	Cause   error
	kind    error
}

func (e *MarketObserverError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *MarketObserverError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.kind}
	}
	return []error{e.kind, e.Cause}
}

// UpstreamUnavailableError is fatal to session start. It is reported, never retried here.
type UpstreamUnavailableError struct{ MarketObserverError }

// UnknownSymbolError carries the offending id.
type UnknownSymbolError struct {
	MarketObserverError
	SymbolID string
}

// HistoryUnavailableError is recoverable and triggers the tick-accumulation fallback.
type HistoryUnavailableError struct {
	MarketObserverError
	SymbolID string
}

// MalformedMessageError is dropped and counted; it never closes a connection.
type MalformedMessageError struct{ MarketObserverError }

// RejectedTickError names the validation rule that failed.
type RejectedTickError struct {
	MarketObserverError
	Reason string
}

// -----------------------------------------------------------------------------

func NewUpstreamUnavailable(message string, cause error) error {
	return &UpstreamUnavailableError{MarketObserverError{Message: message, Cause: cause, kind: ErrUpstreamUnavailable}}
}

func NewUnknownSymbol(symbolID string) error {
	return &UnknownSymbolError{
		MarketObserverError: MarketObserverError{Message: "Invalid symbol: " + symbolID, kind: ErrUnknownSymbol},
		SymbolID:            symbolID,
	}
}

func NewHistoryUnavailable(symbolID string, cause error) error {
	return &HistoryUnavailableError{
		MarketObserverError: MarketObserverError{Message: "history unavailable for " + symbolID, Cause: cause, kind: ErrHistoryUnavailable},
		SymbolID:            symbolID,
	}
}

func NewMalformedMessage(message string, cause error) error {
	return &MalformedMessageError{MarketObserverError{Message: message, Cause: cause, kind: ErrMalformedMessage}}
}

func NewRejectedTick(reason string) error {
	return &RejectedTickError{
		MarketObserverError: MarketObserverError{Message: "tick rejected: " + reason, kind: ErrRejectedTick},
		Reason:              reason,
	}
}

// -----------------------------------------------------------------------------
// Error Handler
// -----------------------------------------------------------------------------

type ErrorHandler struct {
	Logger     *logger.Logger
	ErrorCount int
	mu         sync.Mutex
}

func NewErrorHandler(log *logger.Logger) *ErrorHandler {
	return &ErrorHandler{
		Logger: log,
	}
}

// -----------------------------------------------------------------------------

func (e *ErrorHandler) ResetErrorCount() {
	e.mu.Lock()
	e.ErrorCount = 0
	e.mu.Unlock()
}

// Count returns the number of errors handled since the last reset.
func (e *ErrorHandler) Count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ErrorCount
}

// -----------------------------------------------------------------------------

// Handle logs err with a severity derived from its kind. Recoverable kinds are
// logged as warnings and not counted.
func (e *ErrorHandler) Handle(err error, context string) {
	if err == nil {
		return
	}

	switch {
	case errors.Is(err, ErrHistoryUnavailable), errors.Is(err, ErrUnknownSymbol):
		e.Logger.Warning("%s: %v", context, err)
	case errors.Is(err, ErrMalformedMessage), errors.Is(err, ErrRejectedTick):
		e.Logger.Debug("%s: %v", context, err)
	default:
		e.mu.Lock()
		e.ErrorCount++
		e.mu.Unlock()
		e.Logger.Error("Error in %s: %v", context, err)
	}
}
