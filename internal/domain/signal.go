package domain

import "time"

// IndicatorLabel is a discrete indicator opinion about price direction.
type IndicatorLabel string

const (
	LabelOverbought IndicatorLabel = "overbought"
	LabelOversold   IndicatorLabel = "oversold"
	LabelNeutral    IndicatorLabel = "neutral"
	LabelBullish    IndicatorLabel = "bullish"
	LabelBearish    IndicatorLabel = "bearish"
)

// Signal carries one cycle's indicator opinions for an instrument.
// Each field is independent; no cross-indicator voting happens here.
type Signal struct {
	Symbol      string
	RSI         IndicatorLabel
	RSIValue    float64
	EMA         IndicatorLabel
	EMAValue    float64
	MACD        IndicatorLabel
	MACDLine    float64
	MACDSignal  float64
	ATR         float64 // raw volatility, used for sizing
	GeneratedAt time.Time
}

// Empty reports whether the signal carries no opinion (e.g. empty window).
// Combination of the individual opinions into an action is the dispatcher's job.
func (s Signal) Empty() bool {
	return s.RSI == "" && s.EMA == "" && s.MACD == ""
}

// LoopStatus is a summary of the trading loop's current operational state.
type LoopStatus struct {
	Mode          string
	TradingActive bool
	UptimeSeconds int64
	TickCount     int64
	LastTrade     *Trade
	Risk          RiskSnapshot
}
