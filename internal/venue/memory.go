package venue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/fxbot/internal/domain"
)

// Memory is an in-process venue used for paper trading and tests. It fills
// every market order at the current ticker price and tracks balances and
// positions locally.
type Memory struct {
	mu        sync.Mutex
	name      string
	cash      float64
	currency  string
	tickers   map[string]domain.Ticker
	books     map[string]domain.OrderBook
	bars      map[string][]domain.PriceBar
	positions map[string]domain.Position
	orders    []domain.OrderRequest

	failWith     error
	rejectOrders bool
}

var _ Client = (*Memory)(nil)

// NewMemory returns a paper venue seeded with a starting cash balance.
func NewMemory(name string, startingCash float64) *Memory {
	return &Memory{
		name:      name,
		cash:      startingCash,
		currency:  "USD",
		tickers:   make(map[string]domain.Ticker),
		books:     make(map[string]domain.OrderBook),
		bars:      make(map[string][]domain.PriceBar),
		positions: make(map[string]domain.Position),
	}
}

func (m *Memory) Name() string { return m.name }

// SetFail makes every subsequent call return err; nil restores the venue.
func (m *Memory) SetFail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWith = err
}

// SetRejectOrders makes PlaceOrder return a rejection without filling.
func (m *Memory) SetRejectOrders(v bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejectOrders = v
}

// SetTicker seeds the current quote for a symbol.
func (m *Memory) SetTicker(t domain.Ticker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tickers[t.Symbol] = t
}

// SetOrderBook seeds the book snapshot for a symbol.
func (m *Memory) SetOrderBook(b domain.OrderBook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.books[b.Symbol] = b
}

// PushBar appends a bar to the symbol's history.
func (m *Memory) PushBar(symbol string, bar domain.PriceBar) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bars[symbol] = append(m.bars[symbol], bar)
}

// SetPosition seeds a venue-reported holding.
func (m *Memory) SetPosition(p domain.Position) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.Ticket == "" {
		p.Ticket = uuid.NewString()
	}
	m.positions[p.Ticket] = p
}

// Orders returns every order request received so far.
func (m *Memory) Orders() []domain.OrderRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.OrderRequest, len(m.orders))
	copy(out, m.orders)
	return out
}

func (m *Memory) GetOrderBook(_ context.Context, symbol string, _ int) (domain.OrderBook, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return domain.OrderBook{}, m.failWith
	}
	book, ok := m.books[symbol]
	if !ok {
		return domain.OrderBook{}, fmt.Errorf("venue: book %s: %w", symbol, domain.ErrNotFound)
	}
	return book, nil
}

func (m *Memory) GetTicker(_ context.Context, symbol string) (domain.Ticker, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return domain.Ticker{}, m.failWith
	}
	t, ok := m.tickers[symbol]
	if !ok {
		return domain.Ticker{}, fmt.Errorf("venue: ticker %s: %w", symbol, domain.ErrNotFound)
	}
	return t, nil
}

func (m *Memory) GetBalance(_ context.Context, asset string) (domain.Balance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return domain.Balance{}, m.failWith
	}
	return domain.Balance{Asset: asset, Free: m.cash}, nil
}

func (m *Memory) GetPositions(_ context.Context) ([]domain.Position, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	out := make([]domain.Position, 0, len(m.positions))
	for _, p := range m.positions {
		out = append(out, p)
	}
	return out, nil
}

func (m *Memory) GetAccountInfo(_ context.Context) (domain.AccountInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return domain.AccountInfo{}, m.failWith
	}
	equity := m.cash
	for _, p := range m.positions {
		equity += p.Value()
	}
	return domain.AccountInfo{
		Balance:   m.cash,
		Equity:    equity,
		Currency:  m.currency,
		FetchedAt: time.Now().UTC(),
	}, nil
}

func (m *Memory) GetLatestBar(_ context.Context, symbol, _ string) (domain.PriceBar, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return domain.PriceBar{}, m.failWith
	}
	hist := m.bars[symbol]
	if len(hist) == 0 {
		return domain.PriceBar{}, fmt.Errorf("venue: bars %s: %w", symbol, domain.ErrNotFound)
	}
	return hist[len(hist)-1], nil
}

func (m *Memory) PlaceOrder(_ context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return domain.OrderResult{}, m.failWith
	}
	m.orders = append(m.orders, req)
	if m.rejectOrders {
		return domain.OrderResult{
			Outcome: domain.OutcomeRejected,
			Symbol:  req.Symbol,
			Side:    req.Side,
			Message: "insufficient funds",
		}, nil
	}

	price := req.Price
	if req.Type == domain.OrderTypeMarket {
		t := m.tickers[req.Symbol]
		if req.Side == domain.OrderSideBuy {
			price = t.Ask
		} else {
			price = t.Bid
		}
		if price <= 0 {
			price = t.Last
		}
	}
	notional := req.Quantity * price
	if req.Side == domain.OrderSideBuy {
		m.cash -= notional
	} else {
		m.cash += notional
	}
	return domain.OrderResult{
		Outcome:     domain.OutcomeFilled,
		OrderID:     uuid.NewString(),
		Symbol:      req.Symbol,
		Side:        req.Side,
		FilledPrice: price,
		FilledQty:   req.Quantity,
	}, nil
}

func (m *Memory) CancelOrder(_ context.Context, _, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failWith
}
