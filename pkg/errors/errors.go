package apperrors

import "errors"

// Engine errors
var (
	ErrEmptyBook        = errors.New("order book side is empty")
	ErrStaleBalance     = errors.New("stale or inconsistent balance data")
	ErrSubmission       = errors.New("order submission failed")
	ErrInsufficientSize = errors.New("sized quantity below venue minimum")
	ErrStreamClosed     = errors.New("book stream closed")
	ErrRequoteExhausted = errors.New("requote attempts exhausted")
)

// Standardized venue errors
var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrOrderRejected     = errors.New("order rejected")
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	ErrNetwork           = errors.New("network error")
	ErrInsufficientFunds = errors.New("insufficient funds")
)
