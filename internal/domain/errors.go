package domain

import "errors"

var (
	ErrNotFound             = errors.New("not found")
	ErrVenueUnavailable     = errors.New("venue unavailable")
	ErrVenueRejected        = errors.New("venue rejected order")
	ErrInvalidVolatility    = errors.New("invalid volatility")
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrRiskLimitBreached    = errors.New("daily loss limit breached")
	ErrRateLimited          = errors.New("rate limited")
	ErrLockHeld             = errors.New("lock held by another process")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrWSDisconnect         = errors.New("websocket disconnected")
	ErrContextDone          = errors.New("context cancelled")
)
