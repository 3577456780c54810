package mtbridge

// orderPayload is the bridge's order placement request body.
type orderPayload struct {
	Symbol     string  `json:"symbol"`
	Side       string  `json:"side"`
	Type       string  `json:"type"`
	Volume     float64 `json:"volume"`
	Price      float64 `json:"price,omitempty"`
	StopLoss   float64 `json:"stop_loss,omitempty"`
	TakeProfit float64 `json:"take_profit,omitempty"`
	Comment    string  `json:"comment,omitempty"`
}

// orderResponse is the bridge's order placement result.
type orderResponse struct {
	Success bool    `json:"success"`
	Ticket  int64   `json:"ticket"`
	Price   float64 `json:"price"`
	Volume  float64 `json:"volume"`
	Error   string  `json:"error"`
}

// modifyPayload adjusts stops on an open order.
type modifyPayload struct {
	Ticket     int64   `json:"ticket"`
	StopLoss   float64 `json:"stop_loss"`
	TakeProfit float64 `json:"take_profit"`
}

// closePayload closes an open order, optionally partially.
type closePayload struct {
	Ticket int64   `json:"ticket"`
	Volume float64 `json:"volume,omitempty"`
}

// accountResponse is the terminal account snapshot.
type accountResponse struct {
	Balance    float64 `json:"balance"`
	Equity     float64 `json:"equity"`
	Margin     float64 `json:"margin"`
	FreeMargin float64 `json:"free_margin"`
	Currency   string  `json:"currency"`
}

// quoteResponse is the latest bid/ask for a symbol.
type quoteResponse struct {
	Symbol string  `json:"symbol"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
	Time   int64   `json:"time"`
}

// positionEntry is one open position reported by the terminal.
type positionEntry struct {
	Ticket     int64   `json:"ticket"`
	Symbol     string  `json:"symbol"`
	Type       string  `json:"type"` // "buy" or "sell"
	Volume     float64 `json:"volume"`
	OpenPrice  float64 `json:"open_price"`
	Price      float64 `json:"price"` // current market price
	StopLoss   float64 `json:"stop_loss"`
	TakeProfit float64 `json:"take_profit"`
	OpenTime   int64   `json:"open_time"`
}

// barEntry is one OHLCV row from the terminal's history.
type barEntry struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// errorResponse is the bridge's error envelope.
type errorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}
