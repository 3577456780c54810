// Package trader runs the main tick loop: gate, poll, evaluate, dispatch,
// then the opportunistic strategies, then sleep. A single failed tick is
// logged and absorbed; only startup configuration errors are fatal.
package trader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/fxbot/internal/arb"
	"github.com/alanyoungcy/fxbot/internal/domain"
	"github.com/alanyoungcy/fxbot/internal/executor"
	"github.com/alanyoungcy/fxbot/internal/feed"
	"github.com/alanyoungcy/fxbot/internal/hedge"
	"github.com/alanyoungcy/fxbot/internal/metrics"
	"github.com/alanyoungcy/fxbot/internal/monitor"
	"github.com/alanyoungcy/fxbot/internal/notify"
	"github.com/alanyoungcy/fxbot/internal/risk"
	"github.com/alanyoungcy/fxbot/internal/signal"
	"github.com/alanyoungcy/fxbot/internal/venue"
)

// Config are the loop-level settings.
type Config struct {
	Mode         string
	Interval     time.Duration // tick period
	VenueTimeout time.Duration // per-call deadline for venue operations
}

// Validate rejects unusable settings at startup.
func (c Config) Validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("trader: interval %v: %w", c.Interval, domain.ErrInvalidConfiguration)
	}
	if c.VenueTimeout <= 0 {
		return fmt.Errorf("trader: venue timeout %v: %w", c.VenueTimeout, domain.ErrInvalidConfiguration)
	}
	return nil
}

// Loop wires the per-tick pipeline together.
type Loop struct {
	cfg        Config
	client     venue.Client
	poller     *feed.Poller
	evaluator  *signal.Evaluator
	gate       *risk.Gate
	dispatcher *executor.Dispatcher
	hedger     *hedge.Hedger // optional
	scanner    *arb.Scanner  // optional
	sink       *monitor.Sink
	notifier   *notify.Notifier // optional
	clock      Clock
	logger     *slog.Logger

	startedAt time.Time
	tickCount atomic.Int64

	mu         sync.Mutex
	active     bool
	wasBlocked bool
}

// Deps bundles the loop's collaborators.
type Deps struct {
	Client     venue.Client
	Poller     *feed.Poller
	Evaluator  *signal.Evaluator
	Gate       *risk.Gate
	Dispatcher *executor.Dispatcher
	Hedger     *hedge.Hedger
	Scanner    *arb.Scanner
	Sink       *monitor.Sink
	Notifier   *notify.Notifier
	Clock      Clock
}

// NewLoop assembles a loop. Hedger, Scanner, Notifier and Clock may be nil;
// a nil clock means wall time.
func NewLoop(cfg Config, deps Deps, logger *slog.Logger) (*Loop, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	clock := deps.Clock
	if clock == nil {
		clock = NewRealClock()
	}
	return &Loop{
		cfg:        cfg,
		client:     deps.Client,
		poller:     deps.Poller,
		evaluator:  deps.Evaluator,
		gate:       deps.Gate,
		dispatcher: deps.Dispatcher,
		hedger:     deps.Hedger,
		scanner:    deps.Scanner,
		sink:       deps.Sink,
		notifier:   deps.Notifier,
		clock:      clock,
		logger:     logger.With(slog.String("component", "trader")),
	}, nil
}

// Run executes ticks until ctx is cancelled. Shutdown is graceful: the tick
// in flight finishes, the sleep is skipped, and Run returns nil.
func (l *Loop) Run(ctx context.Context) error {
	l.startedAt = l.clock.Now()
	l.setActive(true)
	defer l.setActive(false)

	l.logger.Info("trading loop started",
		slog.String("mode", l.cfg.Mode),
		slog.Duration("interval", l.cfg.Interval))

	for {
		l.tick(ctx)

		select {
		case <-ctx.Done():
			l.logger.Info("trading loop stopped", slog.Int64("ticks", l.tickCount.Load()))
			return nil
		case <-l.clock.After(l.cfg.Interval):
		}
	}
}

// tick runs one full cycle. Every failure is absorbed here.
func (l *Loop) tick(ctx context.Context) {
	n := l.tickCount.Add(1)
	metrics.TicksTotal.Inc()

	gateOpen := l.gate.CheckAndGate()
	l.noteGate(ctx, gateOpen)

	if gateOpen {
		l.runDirectional(ctx)
	}

	// Hedging and arbitrage run regardless of the gate: hedging reduces
	// exposure, and arbitrage is market neutral.
	l.runOpportunistic(ctx)

	snap := l.gate.Snapshot()
	metrics.DailyPnL.Set(snap.DailyPnL)
	metrics.WindowBars.Set(float64(l.poller.Window().Len()))

	l.logger.Debug("tick complete",
		slog.Int64("tick", n),
		slog.Bool("gate_open", gateOpen),
		slog.Float64("daily_pnl", snap.DailyPnL))
}

// runDirectional polls, evaluates, and dispatches one cycle.
func (l *Loop) runDirectional(ctx context.Context) {
	pollCtx, cancel := context.WithTimeout(ctx, l.cfg.VenueTimeout)
	_, err := l.poller.Poll(pollCtx)
	cancel()
	if err != nil {
		l.noteVenueError(err)
		l.logger.Warn("poll failed, skipping directional dispatch", slog.Any("error", err))
		return
	}

	sig := l.evaluator.Evaluate(l.poller.Window().Snapshot())
	if sig.Empty() {
		return
	}

	acctCtx, cancel := context.WithTimeout(ctx, l.cfg.VenueTimeout)
	account, err := l.client.GetAccountInfo(acctCtx)
	cancel()
	if err != nil {
		l.noteVenueError(err)
		l.logger.Warn("account fetch failed, skipping directional dispatch", slog.Any("error", err))
		return
	}

	dispatchCtx, cancel := context.WithTimeout(ctx, l.cfg.VenueTimeout)
	result, err := l.dispatcher.Dispatch(dispatchCtx, sig, account.Balance)
	cancel()
	if err != nil {
		l.noteVenueError(err)
		l.logger.Warn("dispatch failed", slog.Any("error", err))
		return
	}

	metrics.OrdersTotal.WithLabelValues("dispatcher", string(result.Outcome)).Inc()
	if result.Outcome == domain.OutcomeFilled {
		metrics.TradesRecordedTotal.Inc()
		l.notifyFill(ctx, result)
	}
}

// runOpportunistic fans the independent strategies out per tick. They share
// the venue client, whose rate limiter serializes their call budget.
func (l *Loop) runOpportunistic(ctx context.Context) {
	g, gctx := errgroup.WithContext(ctx)

	if l.hedger != nil {
		g.Go(func() error {
			hctx, cancel := context.WithTimeout(gctx, l.cfg.VenueTimeout)
			defer cancel()
			result, err := l.hedger.Rebalance(hctx)
			if err != nil {
				l.noteVenueError(err)
				l.logger.Warn("hedge rebalance failed", slog.Any("error", err))
				return nil
			}
			metrics.OrdersTotal.WithLabelValues("hedging", string(result.Outcome)).Inc()
			return nil
		})
	}

	if l.scanner != nil {
		g.Go(func() error {
			sctx, cancel := context.WithTimeout(gctx, l.cfg.VenueTimeout)
			defer cancel()
			result, err := l.scanner.Scan(sctx)
			if err != nil {
				l.noteVenueError(err)
				l.logger.Warn("arbitrage scan failed", slog.Any("error", err))
				return nil
			}
			metrics.OrdersTotal.WithLabelValues("arbitrage", string(result.Outcome)).Inc()
			if result.Outcome == domain.OutcomeFilled {
				l.notifyArb(gctx, result)
			}
			return nil
		})
	}

	_ = g.Wait()
}

// Status answers the control plane's status query.
func (l *Loop) Status() domain.LoopStatus {
	status := domain.LoopStatus{
		Mode:          l.cfg.Mode,
		TradingActive: l.isActive(),
		TickCount:     l.tickCount.Load(),
		Risk:          l.gate.Snapshot(),
	}
	if !l.startedAt.IsZero() {
		status.UptimeSeconds = int64(l.clock.Now().Sub(l.startedAt).Seconds())
	}
	if last, ok := l.sink.LastTrade(); ok {
		status.LastTrade = &last
	}
	return status
}

func (l *Loop) setActive(v bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.active = v
}

func (l *Loop) isActive() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

// noteGate tracks gate transitions and alerts when the limit first trips.
func (l *Loop) noteGate(ctx context.Context, open bool) {
	if open {
		metrics.RiskGateOpen.Set(1)
	} else {
		metrics.RiskGateOpen.Set(0)
	}

	l.mu.Lock()
	firstBreach := !open && !l.wasBlocked
	l.wasBlocked = !open
	l.mu.Unlock()

	if firstBreach {
		snap := l.gate.Snapshot()
		l.logger.Warn("daily loss limit reached, directional trading halted",
			slog.Float64("daily_pnl", snap.DailyPnL),
			slog.Float64("limit", snap.DailyLossLimit))
		if l.notifier != nil {
			_ = l.notifier.Notify(ctx, notify.EventRiskBreach, "Risk limit breached",
				fmt.Sprintf("Daily PnL %.2f hit the loss limit %.2f; directional trading halted until reset.",
					snap.DailyPnL, snap.DailyLossLimit))
		}
	}
}

func (l *Loop) notifyFill(ctx context.Context, result domain.OrderResult) {
	if l.notifier == nil {
		return
	}
	_ = l.notifier.Notify(ctx, notify.EventFill, "Order filled",
		fmt.Sprintf("%s %s %.4f @ %.5f (order %s)",
			result.Side, result.Symbol, result.FilledQty, result.FilledPrice, result.OrderID))
}

func (l *Loop) notifyArb(ctx context.Context, result domain.OrderResult) {
	if l.notifier == nil {
		return
	}
	_ = l.notifier.Notify(ctx, notify.EventArb, "Arbitrage captured",
		fmt.Sprintf("%s %.4f @ %.5f: %s",
			result.Symbol, result.FilledQty, result.FilledPrice, result.Message))
}

func (l *Loop) noteVenueError(err error) {
	if errors.Is(err, domain.ErrVenueUnavailable) || errors.Is(err, domain.ErrRateLimited) {
		metrics.VenueErrorsTotal.WithLabelValues(l.client.Name()).Inc()
	}
}
