// Package signal maps a rolling bar window to discrete indicator opinions.
// Each opinion is independent; combining them into a trade decision belongs
// to the execution dispatcher.
package signal

import (
	"log/slog"
	"time"

	"github.com/alanyoungcy/fxbot/internal/domain"
)

// Params are the indicator settings used by the evaluator.
type Params struct {
	RSIPeriod  int
	Overbought float64
	Oversold   float64
	EMAPeriod  int
	MACDFast   int
	MACDSlow   int
	MACDSignal int
	ATRPeriod  int
}

// DefaultParams is the standard 14/20/12-26-9 setup.
func DefaultParams() Params {
	return Params{
		RSIPeriod:  14,
		Overbought: 70,
		Oversold:   30,
		EMAPeriod:  20,
		MACDFast:   12,
		MACDSlow:   26,
		MACDSignal: 9,
		ATRPeriod:  14,
	}
}

// Evaluator computes one Signal per cycle from the current window.
type Evaluator struct {
	symbol string
	params Params
	logger *slog.Logger
}

// NewEvaluator builds an evaluator for one instrument.
func NewEvaluator(symbol string, params Params, logger *slog.Logger) *Evaluator {
	return &Evaluator{
		symbol: symbol,
		params: params,
		logger: logger.With(slog.String("component", "evaluator")),
	}
}

// Evaluate maps the window to indicator labels. An empty window yields an
// empty Signal, which is a "no opinion" result rather than an error.
func (e *Evaluator) Evaluate(window []domain.PriceBar) domain.Signal {
	if len(window) == 0 {
		return domain.Signal{}
	}

	closes := make([]float64, len(window))
	for i, b := range window {
		closes[i] = b.Close
	}
	last := closes[len(closes)-1]

	sig := domain.Signal{
		Symbol:      e.symbol,
		GeneratedAt: time.Now().UTC(),
	}

	sig.RSIValue = RSI(closes, e.params.RSIPeriod)
	switch {
	case sig.RSIValue > e.params.Overbought:
		sig.RSI = domain.LabelOverbought
	case sig.RSIValue < e.params.Oversold:
		sig.RSI = domain.LabelOversold
	default:
		sig.RSI = domain.LabelNeutral
	}

	sig.EMAValue = EMA(closes, e.params.EMAPeriod)
	if last > sig.EMAValue {
		sig.EMA = domain.LabelBullish
	} else {
		sig.EMA = domain.LabelBearish
	}

	sig.MACDLine, sig.MACDSignal = MACD(closes, e.params.MACDFast, e.params.MACDSlow, e.params.MACDSignal)
	if sig.MACDLine > sig.MACDSignal {
		sig.MACD = domain.LabelBullish
	} else {
		sig.MACD = domain.LabelBearish
	}

	sig.ATR = ATR(window, e.params.ATRPeriod)

	e.logger.Debug("signal evaluated",
		slog.String("symbol", e.symbol),
		slog.Float64("rsi", sig.RSIValue),
		slog.String("rsi_label", string(sig.RSI)),
		slog.String("ema_label", string(sig.EMA)),
		slog.String("macd_label", string(sig.MACD)),
		slog.Float64("atr", sig.ATR))

	return sig
}
