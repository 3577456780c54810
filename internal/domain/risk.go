package domain

import "time"

// RiskSnapshot is a point-in-time view of the risk gate's state, served to
// the control plane and persisted across restarts.
type RiskSnapshot struct {
	DailyPnL        float64
	DailyLossLimit  float64
	RiskPerTrade    float64
	MaxPositionSize float64
	TradingDay      time.Time // UTC midnight of the day the PnL belongs to
	UpdatedAt       time.Time
}

// Breached reports whether accumulated daily PnL has hit the loss limit.
func (r RiskSnapshot) Breached() bool {
	return r.DailyPnL <= -r.DailyLossLimit
}
