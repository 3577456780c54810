package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/fxbot/internal/domain"
)

// archiveLockKey serializes archival across bot instances sharing a Redis.
const archiveLockKey = "archive:trades"

// archiveLockTTL bounds how long a crashed holder can block the next run.
const archiveLockTTL = 10 * time.Minute

// TradeMode runs the trading loop and the monitor sink. Persistence, caching
// and notifications participate when configured, but no archival runs.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting trade mode")

	loop, err := a.newLoop(deps)
	if err != nil {
		return fmt.Errorf("trade mode: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return deps.Sink.Run(ctx)
	})
	if deps.Stream != nil {
		a.startStream(ctx, g, deps)
	}
	g.Go(func() error {
		return loop.Run(ctx)
	})

	return g.Wait()
}

// MonitorMode follows trades without placing orders. It runs the sink and,
// when a trade bus is configured, republishes bus traffic into the log so an
// operator can watch another instance's fills.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return deps.Sink.Run(ctx)
	})

	if deps.TradeBus != nil {
		g.Go(func() error {
			ch, err := deps.TradeBus.Subscribe(ctx, a.cfg.Monitor.BusChannel)
			if err != nil {
				return fmt.Errorf("monitor mode: subscribe %s: %w", a.cfg.Monitor.BusChannel, err)
			}
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case payload, ok := <-ch:
					if !ok {
						return nil
					}
					var trade domain.Trade
					if err := json.Unmarshal(payload, &trade); err != nil {
						a.logger.WarnContext(ctx, "monitor: bad trade payload",
							slog.String("error", err.Error()))
						continue
					}
					a.logger.InfoContext(ctx, "trade observed",
						slog.String("trade_id", trade.ID),
						slog.String("symbol", trade.Symbol),
						slog.String("side", string(trade.Side)),
						slog.String("strategy", trade.Strategy),
						slog.Float64("pnl", trade.PnL))
				}
			}
		})
	} else {
		a.logger.InfoContext(ctx, "monitor mode without redis: only local trades are visible")
	}

	return g.Wait()
}

// FullMode runs every subsystem: the trading loop, the sink, the websocket
// bar stream, and the archival schedule.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	loop, err := a.newLoop(deps)
	if err != nil {
		return fmt.Errorf("full mode: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return deps.Sink.Run(ctx)
	})
	if deps.Stream != nil {
		a.startStream(ctx, g, deps)
	}
	if deps.Archiver != nil {
		g.Go(func() error {
			return a.runArchiveSchedule(ctx, deps)
		})
	}
	g.Go(func() error {
		return loop.Run(ctx)
	})

	return g.Wait()
}

// startStream runs the websocket bar feed and its window consumer.
func (a *App) startStream(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	g.Go(func() error {
		return deps.Stream.Run(ctx)
	})
	g.Go(func() error {
		return deps.Poller.RunStream(ctx, deps.Stream)
	})
}

// runArchiveSchedule exports and prunes aged trades every archive interval.
// With Redis configured, a distributed lock keeps concurrent instances from
// racing the export.
func (a *App) runArchiveSchedule(ctx context.Context, deps *Dependencies) error {
	ticker := time.NewTicker(a.cfg.Archive.Interval.Duration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			a.archiveOnce(ctx, deps)
		}
	}
}

func (a *App) archiveOnce(ctx context.Context, deps *Dependencies) {
	if deps.LockMgr != nil {
		unlock, err := deps.LockMgr.Acquire(ctx, archiveLockKey, archiveLockTTL)
		if errors.Is(err, domain.ErrLockHeld) {
			a.logger.InfoContext(ctx, "archive skipped, another instance holds the lock")
			return
		}
		if err != nil {
			a.logger.ErrorContext(ctx, "archive lock failed", slog.String("error", err.Error()))
			return
		}
		defer unlock()
	}

	cutoff := time.Now().UTC().AddDate(0, 0, -a.cfg.Archive.RetentionDays)
	n, err := deps.Archiver.ArchiveTrades(ctx, cutoff)
	if err != nil {
		a.logger.ErrorContext(ctx, "trade archival failed",
			slog.String("error", err.Error()),
			slog.Int64("archived", n))
		return
	}
	if n > 0 {
		a.logger.InfoContext(ctx, "trade archival complete",
			slog.Int64("archived", n),
			slog.Time("cutoff", cutoff))
	}
}
