package models

import "errors"

// Failure taxonomy surfaced by the scan and redemption processors.
// Handlers map these to HTTP statuses; anything else is a 500.
var (
	ErrNotFound              = errors.New("not found")
	ErrRateLimited           = errors.New("scan cooldown active")
	ErrInsufficientPoints    = errors.New("insufficient points")
	ErrInsufficientLegendary = errors.New("no unconsumed legendary available")
	ErrOutOfStock            = errors.New("out of stock")
	ErrConflict              = errors.New("idempotency token conflict")
	ErrInFlight              = errors.New("request with this token still in flight")
)
