// Package risk owns the daily loss accounting that gates every directional
// trade. All mutation goes through the Gate so the PnL counter has a single
// synchronized owner.
package risk

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/fxbot/internal/domain"
)

// Limits are the configured risk parameters, validated at startup.
type Limits struct {
	DailyLossLimit  float64 // absolute cash amount
	RiskPerTrade    float64 // fraction of balance risked per unit volatility
	MaxPositionSize float64 // fraction of balance, hard cap on any order
}

// Validate rejects non-positive parameters before the loop starts.
func (l Limits) Validate() error {
	if l.DailyLossLimit <= 0 {
		return fmt.Errorf("risk: daily loss limit %v: %w", l.DailyLossLimit, domain.ErrInvalidConfiguration)
	}
	if l.RiskPerTrade <= 0 {
		return fmt.Errorf("risk: risk per trade %v: %w", l.RiskPerTrade, domain.ErrInvalidConfiguration)
	}
	if l.MaxPositionSize <= 0 {
		return fmt.Errorf("risk: max position size %v: %w", l.MaxPositionSize, domain.ErrInvalidConfiguration)
	}
	return nil
}

// Gate tracks realized daily PnL and decides whether trading may proceed.
type Gate struct {
	mu         sync.Mutex
	limits     Limits
	dailyPnL   float64
	tradingDay time.Time
	store      domain.RiskStore  // optional persistence across restarts
	trades     domain.TradeStore // optional PnL rebuild when no risk row exists
	logger     *slog.Logger
	now        func() time.Time
}

// NewGate creates a gate with zero accumulated PnL for today.
func NewGate(limits Limits, logger *slog.Logger) *Gate {
	g := &Gate{
		limits: limits,
		logger: logger.With(slog.String("component", "risk_gate")),
		now:    time.Now,
	}
	g.tradingDay = g.day(g.now())
	return g
}

// WithStore persists the gate's state after every fill and restores it on
// Restore.
func (g *Gate) WithStore(store domain.RiskStore) *Gate {
	g.store = store
	return g
}

// WithTrades lets Restore rebuild today's PnL from the trade ledger when no
// persisted risk row exists, such as after the risk table was introduced
// mid-day.
func (g *Gate) WithTrades(store domain.TradeStore) *Gate {
	g.trades = store
	return g
}

// SetNowFunc overrides the clock for tests.
func (g *Gate) SetNowFunc(now func() time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.now = now
	g.tradingDay = g.day(now())
}

// Restore loads today's persisted PnL, if any. Called once at startup so a
// restart mid-day does not forget realized losses.
func (g *Gate) Restore(ctx context.Context) error {
	if g.store == nil {
		return nil
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	snap, err := g.store.Load(ctx, g.tradingDay)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return g.restoreFromTradesLocked(ctx)
		}
		return fmt.Errorf("risk: restore: %w", err)
	}
	g.dailyPnL = snap.DailyPnL
	g.logger.Info("risk state restored",
		slog.Float64("daily_pnl", g.dailyPnL),
		slog.Time("trading_day", g.tradingDay))
	return nil
}

// restoreFromTradesLocked sums today's realized PnL from the trade ledger
// when no persisted risk row exists. Callers hold g.mu.
func (g *Gate) restoreFromTradesLocked(ctx context.Context) error {
	if g.trades == nil {
		return nil
	}
	sum, err := g.trades.SumPnL(ctx, g.tradingDay)
	if err != nil {
		return fmt.Errorf("risk: restore from trades: %w", err)
	}
	if sum == 0 {
		return nil
	}
	g.dailyPnL = sum
	g.logger.Info("risk state rebuilt from trade ledger",
		slog.Float64("daily_pnl", g.dailyPnL),
		slog.Time("trading_day", g.tradingDay))
	return nil
}

// CheckAndGate reports whether directional trading is allowed this cycle.
// It returns false exactly when accumulated daily PnL has consumed the loss
// limit. A new UTC day resets the counter first.
func (g *Gate) CheckAndGate() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.rollDay()
	blocked := g.dailyPnL <= -g.limits.DailyLossLimit
	if blocked {
		g.logger.Warn("trading blocked by daily loss limit",
			slog.Float64("daily_pnl", g.dailyPnL),
			slog.Float64("limit", g.limits.DailyLossLimit))
	}
	return !blocked
}

// RecordFill applies one realized trade outcome to the daily PnL. Call it
// once per closed trade, never per open order.
func (g *Gate) RecordFill(ctx context.Context, pnlDelta float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.rollDay()
	g.dailyPnL += pnlDelta
	g.logger.Info("fill recorded",
		slog.Float64("pnl_delta", pnlDelta),
		slog.Float64("daily_pnl", g.dailyPnL))

	if g.store != nil {
		if err := g.store.Save(ctx, g.snapshotLocked()); err != nil {
			g.logger.Warn("risk state save failed", slog.Any("error", err))
		}
	}
}

// SizePosition converts balance and volatility into an order quantity:
// the volatility-scaled risk budget, capped at the max position fraction.
func (g *Gate) SizePosition(balance, volatility float64) (float64, error) {
	if volatility <= 0 {
		return 0, fmt.Errorf("risk: volatility %v: %w", volatility, domain.ErrInvalidVolatility)
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	byRisk := balance * g.limits.RiskPerTrade / volatility
	cap := balance * g.limits.MaxPositionSize
	if byRisk < cap {
		return byRisk, nil
	}
	return cap, nil
}

// ResetDaily zeroes the PnL counter, e.g. from an operator action.
func (g *Gate) ResetDaily(ctx context.Context) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.dailyPnL = 0
	g.tradingDay = g.day(g.now())
	g.logger.Info("daily risk state reset", slog.Time("trading_day", g.tradingDay))

	if g.store != nil {
		if err := g.store.Save(ctx, g.snapshotLocked()); err != nil {
			g.logger.Warn("risk state save failed", slog.Any("error", err))
		}
	}
}

// Snapshot returns the current risk state for the control plane.
func (g *Gate) Snapshot() domain.RiskSnapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.rollDay()
	return g.snapshotLocked()
}

// rollDay resets accumulated PnL when the UTC day has advanced past the one
// being tracked. Caller must hold g.mu.
func (g *Gate) rollDay() {
	today := g.day(g.now())
	if today.After(g.tradingDay) {
		g.logger.Info("new trading day, resetting daily pnl",
			slog.Time("previous_day", g.tradingDay),
			slog.Float64("final_pnl", g.dailyPnL))
		g.dailyPnL = 0
		g.tradingDay = today
	}
}

func (g *Gate) snapshotLocked() domain.RiskSnapshot {
	return domain.RiskSnapshot{
		DailyPnL:        g.dailyPnL,
		DailyLossLimit:  g.limits.DailyLossLimit,
		RiskPerTrade:    g.limits.RiskPerTrade,
		MaxPositionSize: g.limits.MaxPositionSize,
		TradingDay:      g.tradingDay,
		UpdatedAt:       g.now().UTC(),
	}
}

func (g *Gate) day(t time.Time) time.Time {
	return t.UTC().Truncate(24 * time.Hour)
}
