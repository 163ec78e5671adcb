package resolver

import (
	"context"
	"errors"
	"fmt"

	"TrendSentinel/internal/model"
)

var (
	// ErrUnresolved marks a replayed order that reached the end of data without hitting stop or target.
	ErrUnresolved = errors.New("order unresolved")
	// ErrCapacityExceeded is returned when the account already holds the maximum number of open positions.
	ErrCapacityExceeded = errors.New("open position ceiling reached")
	// ErrRetriesExhausted is returned when every placement attempt failed with a transient fault.
	ErrRetriesExhausted = errors.New("order retries exhausted")
	// ErrFatalConnection means the broker cannot be reached or authenticated; the attempt loop stops.
	ErrFatalConnection = errors.New("broker connection failed")
	// ErrPriceMoved means the live quote crossed the requested stop or target.
	ErrPriceMoved = errors.New("price moved through order levels")
)

// Broker return codes, as reported by MetaTrader-style venues.
const (
	CodeDone            = 10009
	CodeRequote         = 10004
	CodeRejected        = 10006
	CodeInvalidStops    = 10016
	CodeMarketClosed    = 10018
	CodeNoMoney         = 10019
	CodePriceChanged    = 10020
	CodePriceOff        = 10021
	CodeTooManyRequests = 10024
)

var codeMessages = map[int]string{
	10004: "Requote",
	10006: "Request rejected",
	10007: "Request canceled by trader",
	10008: "Order placed",
	10009: "Request completed",
	10010: "Only part of the request was completed",
	10011: "Request processing error",
	10012: "Request canceled by timeout",
	10013: "Invalid request",
	10014: "Invalid volume in the request",
	10015: "Invalid price in the request",
	10016: "Invalid stops in the request",
	10017: "Trade is disabled",
	10018: "Market is closed",
	10019: "There is not enough money to complete the request",
	10020: "Prices changed",
	10021: "There are no quotes to process the request",
	10022: "Invalid order expiration date in the request",
	10023: "Order state changed",
	10024: "Too frequent requests",
	10025: "No changes in request",
	10026: "Autotrading disabled by server",
	10027: "Autotrading disabled by client terminal",
	10028: "Request locked for processing",
	10029: "Order or position frozen",
}

// CodeMessage returns a readable description of a broker return code.
func CodeMessage(code int) string {
	if msg, ok := codeMessages[code]; ok {
		return msg
	}
	return fmt.Sprintf("unknown code %d", code)
}

// BrokerError is a rejected placement. It is always retried.
type BrokerError struct {
	Code    int
	Message string
}

func (e *BrokerError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = CodeMessage(e.Code)
	}
	return fmt.Sprintf("broker code %d: %s", e.Code, msg)
}

// NewBrokerError builds a BrokerError carrying the catalogue message for code.
func NewBrokerError(code int) *BrokerError {
	return &BrokerError{Code: code, Message: CodeMessage(code)}
}

// IsTransient reports whether err should be retried by the executor.
// Connection failures, capacity limits, invalid signals and context cancellation are not.
func IsTransient(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrFatalConnection),
		errors.Is(err, ErrCapacityExceeded),
		errors.Is(err, model.ErrInvalidSignal),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return false
	}
	return true
}

// LastCode extracts the broker code from err, or 0.
func LastCode(err error) int {
	var be *BrokerError
	if errors.As(err, &be) {
		return be.Code
	}
	return 0
}
