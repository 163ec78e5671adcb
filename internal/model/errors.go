package model

import "errors"

var (
	// ErrInsufficientData is returned when a series is too short to evaluate.
	// Callers treat it as "no decision", never as a failure.
	ErrInsufficientData = errors.New("insufficient bars")
	// ErrInvalidSignal marks a signal or order with a non-positive stop distance or size.
	ErrInvalidSignal = errors.New("invalid signal")
)
