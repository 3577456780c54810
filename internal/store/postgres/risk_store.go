package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/fxbot/internal/domain"
)

// RiskStore implements domain.RiskStore using PostgreSQL. One row per UTC
// trading day keeps the gate's accumulated PnL across restarts.
type RiskStore struct {
	pool *pgxpool.Pool
}

// NewRiskStore creates a new RiskStore backed by the given connection pool.
func NewRiskStore(pool *pgxpool.Pool) *RiskStore {
	return &RiskStore{pool: pool}
}

// Save upserts the snapshot for its trading day.
func (s *RiskStore) Save(ctx context.Context, snap domain.RiskSnapshot) error {
	const query = `
		INSERT INTO risk_days (trading_day, daily_pnl, daily_loss_limit, risk_per_trade, max_position_size, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (trading_day) DO UPDATE SET
			daily_pnl = EXCLUDED.daily_pnl,
			daily_loss_limit = EXCLUDED.daily_loss_limit,
			risk_per_trade = EXCLUDED.risk_per_trade,
			max_position_size = EXCLUDED.max_position_size,
			updated_at = EXCLUDED.updated_at`

	_, err := s.pool.Exec(ctx, query,
		snap.TradingDay, snap.DailyPnL, snap.DailyLossLimit,
		snap.RiskPerTrade, snap.MaxPositionSize, snap.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: save risk day %s: %w", snap.TradingDay.Format("2006-01-02"), err)
	}
	return nil
}

// Load returns the snapshot for the given UTC trading day, or
// domain.ErrNotFound when no state was saved for that day.
func (s *RiskStore) Load(ctx context.Context, day time.Time) (domain.RiskSnapshot, error) {
	const query = `
		SELECT trading_day, daily_pnl, daily_loss_limit, risk_per_trade, max_position_size, updated_at
		FROM risk_days WHERE trading_day = $1`

	var snap domain.RiskSnapshot
	err := s.pool.QueryRow(ctx, query, day).Scan(
		&snap.TradingDay, &snap.DailyPnL, &snap.DailyLossLimit,
		&snap.RiskPerTrade, &snap.MaxPositionSize, &snap.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.RiskSnapshot{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.RiskSnapshot{}, fmt.Errorf("postgres: load risk day %s: %w", day.Format("2006-01-02"), err)
	}
	snap.TradingDay = snap.TradingDay.UTC()
	return snap, nil
}

// Compile-time interface check.
var _ domain.RiskStore = (*RiskStore)(nil)
