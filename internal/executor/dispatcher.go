// Package executor turns evaluated signals into venue orders. The
// combination policy lives here: individual indicators stay independent
// until this point.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/fxbot/internal/domain"
	"github.com/alanyoungcy/fxbot/internal/monitor"
	"github.com/alanyoungcy/fxbot/internal/risk"
	"github.com/alanyoungcy/fxbot/internal/venue"
)

// Dispatcher sizes and places directional orders when the indicator set
// agrees on a direction and the risk gate is open.
type Dispatcher struct {
	client venue.Client
	gate   *risk.Gate
	sink   *monitor.Sink
	symbol string
	logger *slog.Logger
}

// NewDispatcher builds a dispatcher for one instrument.
func NewDispatcher(client venue.Client, gate *risk.Gate, sink *monitor.Sink, symbol string, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		client: client,
		gate:   gate,
		sink:   sink,
		symbol: symbol,
		logger: logger.With(slog.String("component", "dispatcher")),
	}
}

// direction normalizes an indicator label onto buy/sell/none. Momentum
// extremes read as mean-reversion entries: oversold argues for buying,
// overbought for selling.
func direction(label domain.IndicatorLabel) domain.OrderSide {
	switch label {
	case domain.LabelBullish, domain.LabelOversold:
		return domain.OrderSideBuy
	case domain.LabelBearish, domain.LabelOverbought:
		return domain.OrderSideSell
	default:
		return ""
	}
}

// decide applies the combination rule: act only when every indicator points
// the same way. Mixed or neutral opinions mean no action.
func decide(sig domain.Signal) (domain.OrderSide, bool) {
	sides := []domain.OrderSide{direction(sig.RSI), direction(sig.EMA), direction(sig.MACD)}
	first := sides[0]
	if first == "" {
		return "", false
	}
	for _, s := range sides[1:] {
		if s != first {
			return "", false
		}
	}
	return first, true
}

// Dispatch evaluates the combination rule, sizes the position, and submits
// a market order. Venue unavailability propagates as an error with risk
// state untouched; business rejections come back as a rejected result.
func (d *Dispatcher) Dispatch(ctx context.Context, sig domain.Signal, balance float64) (domain.OrderResult, error) {
	if sig.Empty() {
		return domain.NoAction("no signal"), nil
	}

	side, ok := decide(sig)
	if !ok {
		d.logger.Debug("mixed signals, standing aside",
			slog.String("rsi", string(sig.RSI)),
			slog.String("ema", string(sig.EMA)),
			slog.String("macd", string(sig.MACD)))
		return domain.NoAction("mixed signals"), nil
	}

	if !d.gate.CheckAndGate() {
		return domain.NoAction("risk limit breached"), nil
	}

	qty, err := d.gate.SizePosition(balance, sig.ATR)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidVolatility) {
			d.logger.Warn("cannot size position",
				slog.Float64("atr", sig.ATR),
				slog.Any("error", err))
			return domain.NoAction("invalid volatility"), err
		}
		return domain.OrderResult{}, fmt.Errorf("executor: size position: %w", err)
	}

	req := domain.OrderRequest{
		Symbol:   d.symbol,
		Side:     side,
		Type:     domain.OrderTypeMarket,
		Quantity: qty,
		Strategy: "dispatcher",
	}

	result, err := d.client.PlaceOrder(ctx, req)
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("executor: place order: %w", err)
	}

	switch result.Outcome {
	case domain.OutcomeFilled:
		d.logger.Info("order filled",
			slog.String("order_id", result.OrderID),
			slog.String("side", string(side)),
			slog.Float64("qty", result.FilledQty),
			slog.Float64("price", result.FilledPrice))
		d.sink.RecordTrade(domain.Trade{
			ID:         uuid.NewString(),
			Symbol:     result.Symbol,
			Side:       result.Side,
			Quantity:   result.FilledQty,
			Price:      result.FilledPrice,
			Strategy:   "dispatcher",
			Venue:      d.client.Name(),
			ExecutedAt: time.Now().UTC(),
		})
	case domain.OutcomeRejected:
		// Stale signals are not replayed; the next tick re-evaluates fresh data.
		d.logger.Warn("order rejected by venue",
			slog.String("side", string(side)),
			slog.String("reason", result.Message))
	}

	return result, nil
}
