package usecase

import "errors"

var (
	// ErrRetriesExhausted wraps the last ErrConcurrencyConflict once the retry bound is hit.
	ErrRetriesExhausted = errors.New("retries exhausted")
	ErrInvalidRequest   = errors.New("invalid request")
)
