package domain

import (
	"context"
	"time"
)

// PriceCache provides fast access to the latest prices.
type PriceCache interface {
	SetTicker(ctx context.Context, t Ticker) error
	GetTicker(ctx context.Context, symbol string) (Ticker, error)
	SetBar(ctx context.Context, symbol string, bar PriceBar) error
	GetBar(ctx context.Context, symbol string) (PriceBar, error)
}

// TradeBus publishes executed trades for out-of-process consumers.
type TradeBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
}

// RateLimiter provides distributed rate limiting for shared venue keys.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager coordinates mutually exclusive work across processes, such as
// the trade archival job. Acquire returns ErrLockHeld when another holder
// owns the key.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}
