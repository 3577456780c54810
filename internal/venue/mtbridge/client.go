// Package mtbridge implements the venue.Client interface against a MetaTrader
// terminal exposed over a local REST bridge.
package mtbridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/alanyoungcy/fxbot/internal/domain"
	"github.com/alanyoungcy/fxbot/internal/venue"
)

// Client talks to the MetaTrader REST bridge. The bridge authenticates with
// a bearer token and serves one terminal, so requests are rate limited to
// what the terminal can absorb.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger

	shared       domain.RateLimiter // optional cross-instance budget
	sharedLimit  int
	sharedWindow time.Duration
}

var _ venue.Client = (*Client)(nil)

// Config holds the knobs for constructing a Client.
type Config struct {
	BaseURL        string
	APIKey         string
	RequestsPerSec float64
	Timeout        time.Duration
}

// NewClient creates a MetaTrader bridge client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.RequestsPerSec <= 0 {
		cfg.RequestsPerSec = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), int(cfg.RequestsPerSec)+1),
		logger:     logger.With(slog.String("component", "mtbridge")),
	}
}

// Name identifies this venue in trade records and logs.
func (c *Client) Name() string { return "mtbridge" }

// WithSharedLimiter layers a distributed sliding-window limit over the local
// token bucket so multiple bot instances share one terminal budget. Denied
// requests fail with ErrRateLimited; limiter backend errors fail open.
func (c *Client) WithSharedLimiter(rl domain.RateLimiter, limit int, window time.Duration) *Client {
	c.shared = rl
	c.sharedLimit = limit
	c.sharedWindow = window
	return c
}

// GetTicker returns the terminal's current bid/ask for a symbol.
func (c *Client) GetTicker(ctx context.Context, symbol string) (domain.Ticker, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	body, err := c.do(ctx, http.MethodGet, "/api/quote?"+params.Encode(), nil)
	if err != nil {
		return domain.Ticker{}, fmt.Errorf("mtbridge: get quote %s: %w", symbol, err)
	}

	var resp quoteResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.Ticker{}, fmt.Errorf("mtbridge: decode quote: %w", err)
	}

	t := domain.Ticker{
		Symbol:    symbol,
		Bid:       resp.Bid,
		Ask:       resp.Ask,
		Timestamp: time.Unix(resp.Time, 0).UTC(),
	}
	t.Last = t.Mid()
	return t, nil
}

// GetOrderBook synthesizes a one-level book from the terminal quote.
// MetaTrader exposes no depth, only the touch.
func (c *Client) GetOrderBook(ctx context.Context, symbol string, _ int) (domain.OrderBook, error) {
	t, err := c.GetTicker(ctx, symbol)
	if err != nil {
		return domain.OrderBook{}, err
	}
	return domain.OrderBook{
		Symbol:    symbol,
		Bids:      []domain.BookLevel{{Price: t.Bid}},
		Asks:      []domain.BookLevel{{Price: t.Ask}},
		Timestamp: t.Timestamp,
	}, nil
}

// GetBalance reports the account balance. The bridge has a single account
// currency, so the asset argument is informational only.
func (c *Client) GetBalance(ctx context.Context, asset string) (domain.Balance, error) {
	info, err := c.GetAccountInfo(ctx)
	if err != nil {
		return domain.Balance{}, err
	}
	return domain.Balance{Asset: asset, Free: info.FreeMargin, Locked: info.Margin}, nil
}

// GetAccountInfo fetches balance, equity and margin from the terminal.
func (c *Client) GetAccountInfo(ctx context.Context) (domain.AccountInfo, error) {
	body, err := c.do(ctx, http.MethodGet, "/api/account", nil)
	if err != nil {
		return domain.AccountInfo{}, fmt.Errorf("mtbridge: get account: %w", err)
	}

	var resp accountResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.AccountInfo{}, fmt.Errorf("mtbridge: decode account: %w", err)
	}

	return domain.AccountInfo{
		Balance:    resp.Balance,
		Equity:     resp.Equity,
		Margin:     resp.Margin,
		FreeMargin: resp.FreeMargin,
		Currency:   resp.Currency,
		FetchedAt:  time.Now().UTC(),
	}, nil
}

// GetPositions lists the terminal's open positions.
func (c *Client) GetPositions(ctx context.Context) ([]domain.Position, error) {
	body, err := c.do(ctx, http.MethodGet, "/api/positions", nil)
	if err != nil {
		return nil, fmt.Errorf("mtbridge: get positions: %w", err)
	}

	var entries []positionEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("mtbridge: decode positions: %w", err)
	}

	positions := make([]domain.Position, 0, len(entries))
	for _, e := range entries {
		side := domain.OrderSideBuy
		if e.Type == "sell" {
			side = domain.OrderSideSell
		}
		positions = append(positions, domain.Position{
			Ticket:     strconv.FormatInt(e.Ticket, 10),
			Symbol:     e.Symbol,
			Side:       side,
			Quantity:   e.Volume,
			EntryPrice: e.OpenPrice,
			MarkPrice:  e.Price,
			StopLoss:   e.StopLoss,
			TakeProfit: e.TakeProfit,
			OpenedAt:   time.Unix(e.OpenTime, 0).UTC(),
		})
	}
	return positions, nil
}

// GetLatestBar fetches the most recent closed bar from the terminal history.
func (c *Client) GetLatestBar(ctx context.Context, symbol, timeframe string) (domain.PriceBar, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("timeframe", timeframe)
	params.Set("count", "1")

	body, err := c.do(ctx, http.MethodGet, "/api/bars?"+params.Encode(), nil)
	if err != nil {
		return domain.PriceBar{}, fmt.Errorf("mtbridge: get bars %s: %w", symbol, err)
	}

	var bars []barEntry
	if err := json.Unmarshal(body, &bars); err != nil {
		return domain.PriceBar{}, fmt.Errorf("mtbridge: decode bars: %w", err)
	}
	if len(bars) == 0 {
		return domain.PriceBar{}, fmt.Errorf("mtbridge: bars %s: %w", symbol, domain.ErrNotFound)
	}

	b := bars[len(bars)-1]
	return domain.PriceBar{
		Timestamp: time.Unix(b.Time, 0).UTC(),
		Open:      b.Open,
		High:      b.High,
		Low:       b.Low,
		Close:     b.Close,
		Volume:    b.Volume,
	}, nil
}

// PlaceOrder submits an order through the bridge. A bridge-level refusal
// (success=false with an error string) maps to a rejected result.
func (c *Client) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	payload := orderPayload{
		Symbol:     req.Symbol,
		Side:       string(req.Side),
		Type:       string(req.Type),
		Volume:     req.Quantity,
		Price:      req.Price,
		StopLoss:   req.StopLoss,
		TakeProfit: req.TakeProfit,
		Comment:    req.Strategy,
	}

	body, err := c.do(ctx, http.MethodPost, "/api/order", payload)
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("mtbridge: place order %s: %w", req.Symbol, err)
	}

	var resp orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.OrderResult{}, fmt.Errorf("mtbridge: decode order response: %w", err)
	}

	if !resp.Success {
		c.logger.Warn("order rejected",
			slog.String("symbol", req.Symbol),
			slog.String("side", string(req.Side)),
			slog.String("reason", resp.Error))
		return domain.OrderResult{
			Outcome: domain.OutcomeRejected,
			Symbol:  req.Symbol,
			Side:    req.Side,
			Message: resp.Error,
		}, nil
	}

	return domain.OrderResult{
		Outcome:     domain.OutcomeFilled,
		OrderID:     strconv.FormatInt(resp.Ticket, 10),
		Symbol:      req.Symbol,
		Side:        req.Side,
		FilledPrice: resp.Price,
		FilledQty:   resp.Volume,
	}, nil
}

// CancelOrder closes an open order by ticket. The bridge treats close and
// cancel uniformly.
func (c *Client) CancelOrder(ctx context.Context, _ string, orderID string) error {
	ticket, err := strconv.ParseInt(orderID, 10, 64)
	if err != nil {
		return fmt.Errorf("mtbridge: cancel order: bad ticket %q: %w", orderID, domain.ErrInvalidConfiguration)
	}
	return c.CloseOrder(ctx, ticket, 0)
}

// CloseOrder closes an open order, fully when volume is zero.
func (c *Client) CloseOrder(ctx context.Context, ticket int64, volume float64) error {
	payload := closePayload{Ticket: ticket, Volume: volume}
	if _, err := c.do(ctx, http.MethodPost, "/api/order/close", payload); err != nil {
		return fmt.Errorf("mtbridge: close order %d: %w", ticket, err)
	}
	return nil
}

// ModifyOrder adjusts stop loss and take profit on an open order.
func (c *Client) ModifyOrder(ctx context.Context, ticket int64, stopLoss, takeProfit float64) error {
	payload := modifyPayload{Ticket: ticket, StopLoss: stopLoss, TakeProfit: takeProfit}
	if _, err := c.do(ctx, http.MethodPost, "/api/order/modify", payload); err != nil {
		return fmt.Errorf("mtbridge: modify order %d: %w", ticket, err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

func (c *Client) do(ctx context.Context, method, path string, reqBody any) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	if err := c.checkShared(ctx); err != nil {
		return nil, err
	}

	var bodyReader io.Reader
	if reqBody != nil {
		jsonBody, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrVenueUnavailable, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if err := c.checkStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

// checkShared consults the distributed venue budget, when one is attached.
func (c *Client) checkShared(ctx context.Context) error {
	if c.shared == nil {
		return nil
	}
	allowed, err := c.shared.Allow(ctx, c.Name(), c.sharedLimit, c.sharedWindow)
	if err != nil {
		// The bridge must stay reachable when the limiter backend is not.
		c.logger.Warn("shared rate limit check failed", slog.Any("error", err))
		return nil
	}
	if !allowed {
		return fmt.Errorf("%w: shared venue budget exhausted", domain.ErrRateLimited)
	}
	return nil
}

// checkStatus maps non-2xx HTTP status codes to appropriate errors.
func (c *Client) checkStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	var apiErr errorResponse
	_ = json.Unmarshal(body, &apiErr)

	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, apiErr.Error)
	case statusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, apiErr.Error)
	case statusCode >= 500:
		return fmt.Errorf("%w: HTTP %d: %s", domain.ErrVenueUnavailable, statusCode, apiErr.Error)
	default:
		return fmt.Errorf("mtbridge: HTTP %d: %s", statusCode, apiErr.Error)
	}
}
