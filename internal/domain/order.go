package domain

import "time"

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// Opposite returns the other side.
func (s OrderSide) Opposite() OrderSide {
	if s == OrderSideBuy {
		return OrderSideSell
	}
	return OrderSideBuy
}

// OrderType selects the execution style.
type OrderType string

const (
	OrderTypeMarket OrderType = "market"
	OrderTypeLimit  OrderType = "limit"
)

// OrderRequest is built fresh per dispatch and never mutated after submission.
type OrderRequest struct {
	Symbol     string
	Side       OrderSide
	Type       OrderType
	Quantity   float64
	Price      float64 // limit orders only
	StopLoss   float64 // 0 means none
	TakeProfit float64 // 0 means none
	Strategy   string
}

// OrderOutcome classifies what happened to a dispatch attempt.
type OrderOutcome string

const (
	OutcomeFilled      OrderOutcome = "filled"
	OutcomeRejected    OrderOutcome = "rejected"
	OutcomeUnavailable OrderOutcome = "unavailable"
	OutcomeNoAction    OrderOutcome = "no_action"
)

// OrderResult wraps the venue response after a dispatch attempt.
type OrderResult struct {
	Outcome     OrderOutcome
	OrderID     string // venue-assigned identifier or ticket
	Symbol      string
	Side        OrderSide
	FilledPrice float64
	FilledQty   float64
	Message     string
	ShouldRetry bool
}

// NoAction is the canonical result when a strategy decides to do nothing.
func NoAction(reason string) OrderResult {
	return OrderResult{Outcome: OutcomeNoAction, Message: reason}
}

// AccountInfo is the venue's account snapshot.
type AccountInfo struct {
	Balance    float64
	Equity     float64
	Margin     float64
	FreeMargin float64
	Currency   string
	FetchedAt  time.Time
}
