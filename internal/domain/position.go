package domain

import "time"

// Position is a venue-reported holding. Read-only from this system's
// perspective; the venue stays authoritative.
type Position struct {
	Ticket     string
	Symbol     string
	Side       OrderSide
	Quantity   float64
	EntryPrice float64
	MarkPrice  float64
	StopLoss   float64
	TakeProfit float64
	OpenedAt   time.Time
}

// Value returns the position's valuation at the mark price, falling back to
// entry when the venue did not report a mark.
func (p Position) Value() float64 {
	price := p.MarkPrice
	if price <= 0 {
		price = p.EntryPrice
	}
	return p.Quantity * price
}

// Balance is one asset's free and locked amounts on the venue.
type Balance struct {
	Asset  string
	Free   float64
	Locked float64
}

// Total returns free plus locked.
func (b Balance) Total() float64 {
	return b.Free + b.Locked
}
