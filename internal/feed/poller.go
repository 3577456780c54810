package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/fxbot/internal/domain"
	"github.com/alanyoungcy/fxbot/internal/venue"
)

// Poller fetches the most recent bar for one instrument each cycle and
// feeds the rolling window. It also mirrors the latest bar into the price
// cache when one is configured, so out-of-process consumers see fresh data.
type Poller struct {
	client    venue.Client
	window    *Window
	cache     domain.PriceCache // optional
	symbol    string
	timeframe string
	logger    *slog.Logger
}

// NewPoller builds a poller for one symbol and timeframe.
func NewPoller(client venue.Client, window *Window, symbol, timeframe string, logger *slog.Logger) *Poller {
	return &Poller{
		client:    client,
		window:    window,
		symbol:    symbol,
		timeframe: timeframe,
		logger:    logger.With(slog.String("component", "poller")),
	}
}

// WithCache mirrors polled bars into the given price cache.
func (p *Poller) WithCache(cache domain.PriceCache) *Poller {
	p.cache = cache
	return p
}

// Window exposes the rolling window this poller writes to.
func (p *Poller) Window() *Window {
	return p.window
}

// Poll fetches the latest bar and appends it to the window. A venue failure
// comes back wrapping ErrVenueUnavailable and leaves the window untouched;
// the caller decides whether to retry or wait for the next tick.
func (p *Poller) Poll(ctx context.Context) (domain.PriceBar, error) {
	bar, err := p.client.GetLatestBar(ctx, p.symbol, p.timeframe)
	if err != nil {
		if errors.Is(err, domain.ErrVenueUnavailable) || errors.Is(err, context.DeadlineExceeded) {
			return domain.PriceBar{}, fmt.Errorf("feed: poll %s: %w", p.symbol, domain.ErrVenueUnavailable)
		}
		return domain.PriceBar{}, fmt.Errorf("feed: poll %s: %w", p.symbol, err)
	}

	if p.window.Append(bar) {
		p.logger.Debug("bar appended",
			slog.String("symbol", p.symbol),
			slog.Time("bar_time", bar.Timestamp),
			slog.Float64("close", bar.Close))
	}

	if p.cache != nil {
		if err := p.cache.SetBar(ctx, p.symbol, bar); err != nil {
			// Cache is an observability convenience; a miss must not fail the poll.
			p.logger.Warn("price cache update failed", slog.Any("error", err))
		}
	}

	return bar, nil
}

// RunStream consumes a live bar stream into the window until ctx ends.
// Polling and streaming can run together; the window dedups by timestamp.
func (p *Poller) RunStream(ctx context.Context, stream venue.BarStream) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case bar, ok := <-stream.Bars():
			if !ok {
				return fmt.Errorf("feed: stream closed: %w", domain.ErrWSDisconnect)
			}
			p.window.Append(bar)
			if p.cache != nil {
				if err := p.cache.SetBar(ctx, p.symbol, bar); err != nil {
					p.logger.Warn("price cache update failed", slog.Any("error", err))
				}
			}
		}
	}
}
