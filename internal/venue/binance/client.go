// Package binance implements the venue.Client interface against the Binance
// spot REST API.
package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/alanyoungcy/fxbot/internal/crypto"
	"github.com/alanyoungcy/fxbot/internal/domain"
	"github.com/alanyoungcy/fxbot/internal/venue"
)

// Client is the REST client for the Binance spot API. All strategies share
// one Client so a single token bucket governs the vendor rate limit.
type Client struct {
	baseURL    string
	apiKey     string
	secret     []byte
	quoteAsset string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker
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
	APISecret      string
	QuoteAsset     string // cash leg of every instrument, e.g. "USDT"
	RequestsPerSec float64
	Burst          int
	Timeout        time.Duration
}

// NewClient creates a Binance REST client with rate limiting and a circuit
// breaker guarding the venue connection.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.binance.com"
	}
	if cfg.QuoteAsset == "" {
		cfg.QuoteAsset = "USDT"
	}
	if cfg.RequestsPerSec <= 0 {
		cfg.RequestsPerSec = 10
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 20
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "binance",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures >= 5 {
				return true
			}
			if counts.Requests >= 20 {
				ratio := float64(counts.TotalFailures) / float64(counts.Requests)
				return ratio > 0.25
			}
			return false
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("venue breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	})

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		secret:     []byte(cfg.APISecret),
		quoteAsset: cfg.QuoteAsset,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), cfg.Burst),
		breaker:    breaker,
		logger:     logger.With(slog.String("component", "binance")),
	}
}

// Name identifies this venue in trade records and logs.
func (c *Client) Name() string { return "binance" }

// WithSharedLimiter layers a distributed sliding-window limit over the local
// token bucket so multiple bot instances share one vendor budget. Denied
// requests fail with ErrRateLimited; limiter backend errors fail open.
func (c *Client) WithSharedLimiter(rl domain.RateLimiter, limit int, window time.Duration) *Client {
	c.shared = rl
	c.sharedLimit = limit
	c.sharedWindow = window
	return c
}

// GetOrderBook fetches the top depth levels for a symbol.
func (c *Client) GetOrderBook(ctx context.Context, symbol string, depth int) (domain.OrderBook, error) {
	if depth <= 0 {
		depth = 20
	}
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("limit", strconv.Itoa(depth))

	body, err := c.doPublic(ctx, http.MethodGet, "/api/v3/depth", params)
	if err != nil {
		return domain.OrderBook{}, fmt.Errorf("binance: get order book %s: %w", symbol, err)
	}

	var resp depthResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.OrderBook{}, fmt.Errorf("binance: decode order book: %w", err)
	}

	book := domain.OrderBook{Symbol: symbol, Timestamp: time.Now().UTC()}
	for _, lvl := range resp.Bids {
		book.Bids = append(book.Bids, domain.BookLevel{Price: parseFloat(lvl[0]), Quantity: parseFloat(lvl[1])})
	}
	for _, lvl := range resp.Asks {
		book.Asks = append(book.Asks, domain.BookLevel{Price: parseFloat(lvl[0]), Quantity: parseFloat(lvl[1])})
	}
	return book, nil
}

// GetTicker fetches the best bid/ask quote for a symbol.
func (c *Client) GetTicker(ctx context.Context, symbol string) (domain.Ticker, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	body, err := c.doPublic(ctx, http.MethodGet, "/api/v3/ticker/bookTicker", params)
	if err != nil {
		return domain.Ticker{}, fmt.Errorf("binance: get ticker %s: %w", symbol, err)
	}

	var resp bookTickerResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.Ticker{}, fmt.Errorf("binance: decode ticker: %w", err)
	}

	t := domain.Ticker{
		Symbol:    symbol,
		Bid:       parseFloat(resp.BidPrice),
		Ask:       parseFloat(resp.AskPrice),
		Timestamp: time.Now().UTC(),
	}
	t.Last = t.Mid()
	return t, nil
}

// GetBalance returns one asset's balance from the signed account endpoint.
func (c *Client) GetBalance(ctx context.Context, asset string) (domain.Balance, error) {
	acct, err := c.fetchAccount(ctx)
	if err != nil {
		return domain.Balance{}, err
	}
	for _, b := range acct.Balances {
		if b.Asset == asset {
			return domain.Balance{Asset: asset, Free: parseFloat(b.Free), Locked: parseFloat(b.Locked)}, nil
		}
	}
	return domain.Balance{Asset: asset}, nil
}

// GetPositions synthesizes spot positions from non-zero, non-cash balances,
// marked at the latest quote. Binance spot has no native position object.
func (c *Client) GetPositions(ctx context.Context) ([]domain.Position, error) {
	acct, err := c.fetchAccount(ctx)
	if err != nil {
		return nil, err
	}

	var positions []domain.Position
	for _, b := range acct.Balances {
		total := parseFloat(b.Free) + parseFloat(b.Locked)
		if total <= 0 || b.Asset == c.quoteAsset {
			continue
		}
		symbol := b.Asset + c.quoteAsset
		mark := 0.0
		if t, err := c.GetTicker(ctx, symbol); err == nil {
			mark = t.Mid()
		} else {
			c.logger.Debug("skip mark price", slog.String("symbol", symbol), slog.Any("error", err))
		}
		positions = append(positions, domain.Position{
			Ticket:    symbol,
			Symbol:    symbol,
			Side:      domain.OrderSideBuy,
			Quantity:  total,
			MarkPrice: mark,
		})
	}
	return positions, nil
}

// GetAccountInfo returns the cash balance plus marked position value.
func (c *Client) GetAccountInfo(ctx context.Context) (domain.AccountInfo, error) {
	cash, err := c.GetBalance(ctx, c.quoteAsset)
	if err != nil {
		return domain.AccountInfo{}, err
	}
	positions, err := c.GetPositions(ctx)
	if err != nil {
		return domain.AccountInfo{}, err
	}
	equity := cash.Total()
	for _, p := range positions {
		equity += p.Value()
	}
	return domain.AccountInfo{
		Balance:   cash.Total(),
		Equity:    equity,
		Currency:  c.quoteAsset,
		FetchedAt: time.Now().UTC(),
	}, nil
}

// GetLatestBar fetches the most recent kline for the symbol and timeframe.
func (c *Client) GetLatestBar(ctx context.Context, symbol, timeframe string) (domain.PriceBar, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("interval", timeframe)
	params.Set("limit", "1")

	body, err := c.doPublic(ctx, http.MethodGet, "/api/v3/klines", params)
	if err != nil {
		return domain.PriceBar{}, fmt.Errorf("binance: get klines %s: %w", symbol, err)
	}

	var klines []kline
	if err := json.Unmarshal(body, &klines); err != nil {
		return domain.PriceBar{}, fmt.Errorf("binance: decode klines: %w", err)
	}
	if len(klines) == 0 {
		return domain.PriceBar{}, fmt.Errorf("binance: klines %s: %w", symbol, domain.ErrNotFound)
	}

	k := klines[len(klines)-1]
	return domain.PriceBar{
		Timestamp: time.UnixMilli(k.OpenTime).UTC(),
		Open:      k.Open,
		High:      k.High,
		Low:       k.Low,
		Close:     k.Close,
		Volume:    k.Volume,
	}, nil
}

// PlaceOrder submits an order. Business rejections (insufficient balance,
// filter failures) come back as an OutcomeRejected result with a nil error;
// transport failures come back as ErrVenueUnavailable.
func (c *Client) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	params := url.Values{}
	params.Set("symbol", req.Symbol)
	params.Set("side", strings.ToUpper(string(req.Side)))
	params.Set("quantity", strconv.FormatFloat(req.Quantity, 'f', -1, 64))
	params.Set("newOrderRespType", "FULL")
	switch req.Type {
	case domain.OrderTypeLimit:
		params.Set("type", "LIMIT")
		params.Set("timeInForce", "GTC")
		params.Set("price", strconv.FormatFloat(req.Price, 'f', -1, 64))
	default:
		params.Set("type", "MARKET")
	}

	body, err := c.doSigned(ctx, http.MethodPost, "/api/v3/order", params)
	if err != nil {
		var apiErr *apiError
		if errors.As(err, &apiErr) && rejectionCode(apiErr.Code) {
			c.logger.Warn("order rejected",
				slog.String("symbol", req.Symbol),
				slog.String("side", string(req.Side)),
				slog.String("reason", apiErr.Message))
			return domain.OrderResult{
				Outcome: domain.OutcomeRejected,
				Symbol:  req.Symbol,
				Side:    req.Side,
				Message: apiErr.Message,
			}, nil
		}
		return domain.OrderResult{}, fmt.Errorf("binance: place order %s: %w", req.Symbol, err)
	}

	var resp orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.OrderResult{}, fmt.Errorf("binance: decode order response: %w", err)
	}

	result := domain.OrderResult{
		Outcome:   domain.OutcomeFilled,
		OrderID:   strconv.FormatInt(resp.OrderID, 10),
		Symbol:    req.Symbol,
		Side:      req.Side,
		FilledQty: parseFloat(resp.ExecutedQty),
	}
	// Volume-weighted fill price across partial fills.
	var notional, qty float64
	for _, f := range resp.Fills {
		p, q := parseFloat(f.Price), parseFloat(f.Qty)
		notional += p * q
		qty += q
	}
	if qty > 0 {
		result.FilledPrice = notional / qty
	} else if req.Type == domain.OrderTypeLimit {
		// Limit orders may rest unfilled; report the limit price.
		result.FilledPrice = req.Price
	}
	return result, nil
}

// CancelOrder cancels a resting order.
func (c *Client) CancelOrder(ctx context.Context, symbol, orderID string) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("orderId", orderID)

	if _, err := c.doSigned(ctx, http.MethodDelete, "/api/v3/order", params); err != nil {
		return fmt.Errorf("binance: cancel order %s: %w", orderID, err)
	}
	return nil
}

func (c *Client) fetchAccount(ctx context.Context) (accountResponse, error) {
	body, err := c.doSigned(ctx, http.MethodGet, "/api/v3/account", url.Values{})
	if err != nil {
		return accountResponse{}, fmt.Errorf("binance: get account: %w", err)
	}
	var resp accountResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return accountResponse{}, fmt.Errorf("binance: decode account: %w", err)
	}
	return resp, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

func (c *Client) doPublic(ctx context.Context, method, path string, params url.Values) ([]byte, error) {
	return c.do(ctx, method, path, params, false)
}

func (c *Client) doSigned(ctx context.Context, method, path string, params url.Values) ([]byte, error) {
	return c.do(ctx, method, path, params, true)
}

// do applies the shared rate limit, signs if required, and routes the call
// through the circuit breaker so a flapping venue fails fast.
func (c *Client) do(ctx context.Context, method, path string, params url.Values, signed bool) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	if err := c.checkShared(ctx); err != nil {
		return nil, err
	}

	if signed {
		params.Set("timestamp", strconv.FormatInt(time.Now().UnixMilli(), 10))
		params.Set("recvWindow", "5000")
		params.Set("signature", c.sign(params.Encode()))
	}

	fullURL := c.baseURL + path
	if len(params) > 0 {
		fullURL += "?" + params.Encode()
	}

	raw, err := c.breaker.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, method, fullURL, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		if signed {
			req.Header.Set("X-MBX-APIKEY", c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrVenueUnavailable, err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}
		if err := c.checkStatus(resp.StatusCode, body); err != nil {
			return nil, err
		}
		return body, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: circuit open", domain.ErrVenueUnavailable)
		}
		return nil, err
	}
	return raw.([]byte), nil
}

// checkShared consults the distributed venue budget, when one is attached.
func (c *Client) checkShared(ctx context.Context) error {
	if c.shared == nil {
		return nil
	}
	allowed, err := c.shared.Allow(ctx, c.Name(), c.sharedLimit, c.sharedWindow)
	if err != nil {
		// The venue must stay reachable when the limiter backend is not.
		c.logger.Warn("shared rate limit check failed", slog.Any("error", err))
		return nil
	}
	if !allowed {
		return fmt.Errorf("%w: shared venue budget exhausted", domain.ErrRateLimited)
	}
	return nil
}

// sign computes the HMAC-SHA256 hex signature over the query string.
func (c *Client) sign(query string) string {
	return crypto.SignHex(c.secret, query)
}

// checkStatus maps non-2xx HTTP status codes to appropriate errors.
func (c *Client) checkStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	apiErr := &apiError{}
	_ = json.Unmarshal(body, apiErr)

	switch {
	case statusCode == http.StatusTooManyRequests || statusCode == http.StatusTeapot:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, apiErr.Message)
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, apiErr.Message)
	case statusCode >= 500:
		return fmt.Errorf("%w: HTTP %d: %s", domain.ErrVenueUnavailable, statusCode, apiErr.Message)
	default:
		return apiErr
	}
}

func (e *apiError) Error() string {
	return fmt.Sprintf("binance API error %d: %s", e.Code, e.Message)
}

func rejectionCode(code int) bool {
	switch code {
	case codeInsufficientBalance, codeOrderWouldTrigger, codeFilterFailure:
		return true
	}
	return false
}
