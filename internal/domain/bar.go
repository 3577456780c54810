package domain

import "time"

// PriceBar is one OHLCV sample for a fixed timeframe. Immutable once built.
type PriceBar struct {
	Timestamp time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
}

// Range returns the high-low spread of the bar.
func (b PriceBar) Range() float64 {
	return b.High - b.Low
}

// Ticker is the venue's latest quote for an instrument.
type Ticker struct {
	Symbol    string
	Bid       float64
	Ask       float64
	Last      float64
	Timestamp time.Time
}

// Mid returns the bid/ask midpoint, falling back to last when one side is empty.
func (t Ticker) Mid() float64 {
	if t.Bid <= 0 || t.Ask <= 0 {
		return t.Last
	}
	return (t.Bid + t.Ask) / 2
}

// BookLevel is a single price level of an order book side.
type BookLevel struct {
	Price    float64
	Quantity float64
}

// OrderBook is a snapshot of the venue's resting liquidity, best levels first.
type OrderBook struct {
	Symbol    string
	Bids      []BookLevel
	Asks      []BookLevel
	Timestamp time.Time
}

// BestBid returns the top bid level, or a zero level if the side is empty.
func (b OrderBook) BestBid() BookLevel {
	if len(b.Bids) == 0 {
		return BookLevel{}
	}
	return b.Bids[0]
}

// BestAsk returns the top ask level, or a zero level if the side is empty.
func (b OrderBook) BestAsk() BookLevel {
	if len(b.Asks) == 0 {
		return BookLevel{}
	}
	return b.Asks[0]
}
