// Package venue abstracts the external execution counterparty. Every vendor
// client implements Client so strategies stay vendor-agnostic and tests can
// substitute an in-memory venue.
package venue

import (
	"context"
	"time"

	"github.com/alanyoungcy/fxbot/internal/domain"
)

// Client is the capability surface every venue must provide. All calls carry
// a context and must not block past its deadline.
type Client interface {
	Name() string
	GetOrderBook(ctx context.Context, symbol string, depth int) (domain.OrderBook, error)
	GetTicker(ctx context.Context, symbol string) (domain.Ticker, error)
	GetBalance(ctx context.Context, asset string) (domain.Balance, error)
	GetPositions(ctx context.Context) ([]domain.Position, error)
	GetAccountInfo(ctx context.Context) (domain.AccountInfo, error)
	GetLatestBar(ctx context.Context, symbol, timeframe string) (domain.PriceBar, error)
	PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
}

// BarStream delivers live bars pushed by the venue, for venues that support
// streaming market data alongside REST polling.
type BarStream interface {
	Bars() <-chan domain.PriceBar
	Run(ctx context.Context) error
}

// Timeframe constants accepted by GetLatestBar.
const (
	Timeframe1m  = "1m"
	Timeframe5m  = "5m"
	Timeframe15m = "15m"
	Timeframe1h  = "1h"
	Timeframe1d  = "1d"
)

// TimeframeDuration maps a timeframe string to its bar length.
func TimeframeDuration(tf string) time.Duration {
	switch tf {
	case Timeframe1m:
		return time.Minute
	case Timeframe5m:
		return 5 * time.Minute
	case Timeframe15m:
		return 15 * time.Minute
	case Timeframe1h:
		return time.Hour
	case Timeframe1d:
		return 24 * time.Hour
	default:
		return time.Minute
	}
}
