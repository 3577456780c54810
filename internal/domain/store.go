package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// TradeStore persists executed trades. ListBefore and DeleteThrough order
// and delete by the compound key (executed_at, id) so a batch boundary that
// splits trades sharing a timestamp never prunes un-exported rows.
type TradeStore interface {
	Insert(ctx context.Context, trade Trade) error
	InsertBatch(ctx context.Context, trades []Trade) error
	ListBySymbol(ctx context.Context, symbol string, opts ListOpts) ([]Trade, error)
	ListBefore(ctx context.Context, before time.Time, limit int) ([]Trade, error)
	DeleteThrough(ctx context.Context, executedAt time.Time, id string) (int64, error)
	SumPnL(ctx context.Context, since time.Time) (float64, error)
}

// RiskStore persists the risk gate's daily state across restarts.
type RiskStore interface {
	Save(ctx context.Context, snap RiskSnapshot) error
	Load(ctx context.Context, day time.Time) (RiskSnapshot, error)
}
