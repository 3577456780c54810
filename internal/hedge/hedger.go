// Package hedge keeps a fixed fraction of portfolio value in a designated
// hedge asset. It reduces exposure rather than adding it, so it runs every
// cycle regardless of the daily loss gate.
package hedge

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/fxbot/internal/domain"
	"github.com/alanyoungcy/fxbot/internal/monitor"
	"github.com/alanyoungcy/fxbot/internal/venue"
)

// Params configure the rebalancer.
type Params struct {
	HedgeSymbol string  // instrument used as the hedge, e.g. "BTCUSDT"
	HedgeRatio  float64 // target fraction of portfolio value held in the hedge
	Tolerance   float64 // cash band within which no rebalance happens
}

// Validate rejects unusable parameters at startup.
func (p Params) Validate() error {
	if p.HedgeSymbol == "" {
		return fmt.Errorf("hedge: empty hedge symbol: %w", domain.ErrInvalidConfiguration)
	}
	if p.HedgeRatio <= 0 || p.HedgeRatio >= 1 {
		return fmt.Errorf("hedge: ratio %v outside (0,1): %w", p.HedgeRatio, domain.ErrInvalidConfiguration)
	}
	if p.Tolerance < 0 {
		return fmt.Errorf("hedge: negative tolerance: %w", domain.ErrInvalidConfiguration)
	}
	return nil
}

// Hedger rebalances the hedge asset toward its target fraction.
type Hedger struct {
	client venue.Client
	sink   *monitor.Sink
	params Params
	logger *slog.Logger
}

// NewHedger builds a hedger against one venue.
func NewHedger(client venue.Client, sink *monitor.Sink, params Params, logger *slog.Logger) *Hedger {
	return &Hedger{
		client: client,
		sink:   sink,
		params: params,
		logger: logger.With(slog.String("component", "hedger")),
	}
}

// Rebalance computes required adjustment = total x ratio - current hedge
// value and places one market order closing the gap, or does nothing inside
// the tolerance band.
func (h *Hedger) Rebalance(ctx context.Context) (domain.OrderResult, error) {
	account, err := h.client.GetAccountInfo(ctx)
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("hedge: account info: %w", err)
	}
	positions, err := h.client.GetPositions(ctx)
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("hedge: positions: %w", err)
	}

	// Total portfolio value: cash plus every holding marked to market.
	total := account.Balance
	hedgeValue := 0.0
	for _, p := range positions {
		v := p.Value()
		total += v
		if p.Symbol == h.params.HedgeSymbol {
			hedgeValue += v
		}
	}

	target := total * h.params.HedgeRatio
	adjustment := target - hedgeValue

	if math.Abs(adjustment) <= h.params.Tolerance {
		return domain.NoAction("within tolerance"), nil
	}

	ticker, err := h.client.GetTicker(ctx, h.params.HedgeSymbol)
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("hedge: ticker: %w", err)
	}
	price := ticker.Mid()
	if price <= 0 {
		return domain.OrderResult{}, fmt.Errorf("hedge: no price for %s: %w", h.params.HedgeSymbol, domain.ErrVenueUnavailable)
	}

	side := domain.OrderSideBuy
	if adjustment < 0 {
		side = domain.OrderSideSell
	}
	qty := math.Abs(adjustment) / price

	h.logger.Info("rebalancing hedge",
		slog.Float64("total_value", total),
		slog.Float64("hedge_value", hedgeValue),
		slog.Float64("target", target),
		slog.Float64("adjustment", adjustment),
		slog.String("side", string(side)))

	result, err := h.client.PlaceOrder(ctx, domain.OrderRequest{
		Symbol:   h.params.HedgeSymbol,
		Side:     side,
		Type:     domain.OrderTypeMarket,
		Quantity: qty,
		Strategy: "hedging",
	})
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("hedge: place order: %w", err)
	}

	if result.Outcome == domain.OutcomeFilled {
		h.sink.RecordTrade(domain.Trade{
			ID:         uuid.NewString(),
			Symbol:     result.Symbol,
			Side:       result.Side,
			Quantity:   result.FilledQty,
			Price:      result.FilledPrice,
			Strategy:   "hedging",
			Venue:      h.client.Name(),
			ExecutedAt: time.Now().UTC(),
		})
	}
	return result, nil
}

// Adjustment exposes the raw rebalance arithmetic for status reporting.
func Adjustment(totalValue, hedgeValue, ratio float64) float64 {
	return totalValue*ratio - hedgeValue
}
