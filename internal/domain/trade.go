package domain

import "time"

// Trade is a recorded fill, kept for monitoring and persisted for history.
type Trade struct {
	ID         string
	Symbol     string
	Side       OrderSide
	Quantity   float64
	Price      float64
	PnL        float64 // realized, zero for opening fills
	Strategy   string  // "dispatcher", "hedging", "arbitrage"
	Venue      string
	ExecutedAt time.Time
}

// Notional returns the trade's cash value.
func (t Trade) Notional() float64 {
	return t.Quantity * t.Price
}
