package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/fxbot/internal/domain"
)

// TradeStore implements domain.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a new TradeStore backed by the given connection pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

const tradeSelectCols = `id, symbol, side, quantity, price, pnl, strategy, venue, executed_at`

const tradeInsertQuery = `
	INSERT INTO trades (id, symbol, side, quantity, price, pnl, strategy, venue, executed_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (id) DO NOTHING`

func tradeInsertArgs(t domain.Trade) []any {
	return []any{
		t.ID, t.Symbol, string(t.Side), t.Quantity, t.Price,
		t.PnL, t.Strategy, t.Venue, t.ExecutedAt,
	}
}

func scanTradeRows(rows pgx.Rows) ([]domain.Trade, error) {
	var trades []domain.Trade
	for rows.Next() {
		var (
			t    domain.Trade
			side string
		)
		if err := rows.Scan(
			&t.ID, &t.Symbol, &side, &t.Quantity, &t.Price,
			&t.PnL, &t.Strategy, &t.Venue, &t.ExecutedAt,
		); err != nil {
			return nil, err
		}
		t.Side = domain.OrderSide(side)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// Insert stores a single trade. Re-inserting an existing ID is a no-op.
func (s *TradeStore) Insert(ctx context.Context, trade domain.Trade) error {
	if _, err := s.pool.Exec(ctx, tradeInsertQuery, tradeInsertArgs(trade)...); err != nil {
		return fmt.Errorf("postgres: insert trade %s: %w", trade.ID, err)
	}
	return nil
}

// InsertBatch inserts multiple trades efficiently using pgx Batch.
// Duplicate IDs are silently skipped via ON CONFLICT DO NOTHING.
func (s *TradeStore) InsertBatch(ctx context.Context, trades []domain.Trade) error {
	if len(trades) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, t := range trades {
		batch.Queue(tradeInsertQuery, tradeInsertArgs(t)...)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range trades {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert trade batch item %d: %w", i, err)
		}
	}
	return nil
}

// ListBySymbol returns trades for a symbol with pagination and optional time
// filtering, newest first.
func (s *TradeStore) ListBySymbol(ctx context.Context, symbol string, opts domain.ListOpts) ([]domain.Trade, error) {
	query := `SELECT ` + tradeSelectCols + ` FROM trades WHERE symbol = $1`
	args := []any{symbol}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND executed_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND executed_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY executed_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades by symbol: %w", err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trades by symbol: %w", err)
	}
	return trades, nil
}

// ListBefore returns up to limit trades executed strictly before the given
// time, ordered by (executed_at, id) ascending so batch boundaries are
// deterministic even when trades share a timestamp. A limit of zero means no
// limit.
func (s *TradeStore) ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.Trade, error) {
	query := `SELECT ` + tradeSelectCols + ` FROM trades WHERE executed_at < $1 ORDER BY executed_at ASC, id ASC`
	args := []any{before}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades before: %w", err)
	}
	defer rows.Close()
	return scanTradeRows(rows)
}

// DeleteThrough deletes all trades up to and including the compound boundary
// (executedAt, id), matching ListBefore's ordering. Returns the number
// deleted.
func (s *TradeStore) DeleteThrough(ctx context.Context, executedAt time.Time, id string) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM trades WHERE (executed_at, id) <= ($1, $2)`, executedAt, id)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete trades through: %w", err)
	}
	return tag.RowsAffected(), nil
}

// SumPnL returns total realized PnL over trades executed at or after since.
func (s *TradeStore) SumPnL(ctx context.Context, since time.Time) (float64, error) {
	var sum float64
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(pnl), 0) FROM trades WHERE executed_at >= $1`,
		since,
	).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("postgres: sum pnl: %w", err)
	}
	return sum, nil
}

// Compile-time interface check.
var _ domain.TradeStore = (*TradeStore)(nil)
