package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/alanyoungcy/fxbot/internal/domain"
	"github.com/redis/go-redis/v9"
)

// quoteTTL bounds how long a cached quote or bar stays readable. Stale market
// data is worse than no data, so entries simply expire.
const quoteTTL = 5 * time.Minute

// PriceCache implements domain.PriceCache using Redis hashes. The latest
// ticker for a symbol lives at "ticker:{symbol}" and the latest closed bar
// at "bar:{symbol}", both with a TTL so readers never see stale quotes.
type PriceCache struct {
	rdb *redis.Client
}

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{rdb: c.Underlying()}
}

func tickerKey(symbol string) string {
	return "ticker:" + symbol
}

func barKey(symbol string) string {
	return "bar:" + symbol
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// SetTicker stores the latest quote for a symbol.
func (pc *PriceCache) SetTicker(ctx context.Context, t domain.Ticker) error {
	key := tickerKey(t.Symbol)
	fields := map[string]interface{}{
		"bid":  formatFloat(t.Bid),
		"ask":  formatFloat(t.Ask),
		"last": formatFloat(t.Last),
		"ts":   strconv.FormatInt(t.Timestamp.UnixNano(), 10),
	}
	pipe := pc.rdb.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, quoteTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set ticker %s: %w", t.Symbol, err)
	}
	return nil
}

// GetTicker retrieves the latest quote for a symbol. It returns
// domain.ErrNotFound when the key does not exist or has expired.
func (pc *PriceCache) GetTicker(ctx context.Context, symbol string) (domain.Ticker, error) {
	vals, err := pc.rdb.HGetAll(ctx, tickerKey(symbol)).Result()
	if err != nil {
		return domain.Ticker{}, fmt.Errorf("redis: get ticker %s: %w", symbol, err)
	}
	if len(vals) == 0 {
		return domain.Ticker{}, domain.ErrNotFound
	}

	t := domain.Ticker{Symbol: symbol}
	if t.Bid, err = parseField(vals, "bid", symbol); err != nil {
		return domain.Ticker{}, err
	}
	if t.Ask, err = parseField(vals, "ask", symbol); err != nil {
		return domain.Ticker{}, err
	}
	if t.Last, err = parseField(vals, "last", symbol); err != nil {
		return domain.Ticker{}, err
	}
	t.Timestamp, err = parseTimestamp(vals, symbol)
	if err != nil {
		return domain.Ticker{}, err
	}
	return t, nil
}

// SetBar stores the latest closed bar for a symbol.
func (pc *PriceCache) SetBar(ctx context.Context, symbol string, bar domain.PriceBar) error {
	key := barKey(symbol)
	fields := map[string]interface{}{
		"open":   formatFloat(bar.Open),
		"high":   formatFloat(bar.High),
		"low":    formatFloat(bar.Low),
		"close":  formatFloat(bar.Close),
		"volume": formatFloat(bar.Volume),
		"ts":     strconv.FormatInt(bar.Timestamp.UnixNano(), 10),
	}
	pipe := pc.rdb.TxPipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, quoteTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set bar %s: %w", symbol, err)
	}
	return nil
}

// GetBar retrieves the latest closed bar for a symbol. It returns
// domain.ErrNotFound when the key does not exist or has expired.
func (pc *PriceCache) GetBar(ctx context.Context, symbol string) (domain.PriceBar, error) {
	vals, err := pc.rdb.HGetAll(ctx, barKey(symbol)).Result()
	if err != nil {
		return domain.PriceBar{}, fmt.Errorf("redis: get bar %s: %w", symbol, err)
	}
	if len(vals) == 0 {
		return domain.PriceBar{}, domain.ErrNotFound
	}

	var bar domain.PriceBar
	if bar.Open, err = parseField(vals, "open", symbol); err != nil {
		return domain.PriceBar{}, err
	}
	if bar.High, err = parseField(vals, "high", symbol); err != nil {
		return domain.PriceBar{}, err
	}
	if bar.Low, err = parseField(vals, "low", symbol); err != nil {
		return domain.PriceBar{}, err
	}
	if bar.Close, err = parseField(vals, "close", symbol); err != nil {
		return domain.PriceBar{}, err
	}
	if bar.Volume, err = parseField(vals, "volume", symbol); err != nil {
		return domain.PriceBar{}, err
	}
	bar.Timestamp, err = parseTimestamp(vals, symbol)
	if err != nil {
		return domain.PriceBar{}, err
	}
	return bar, nil
}

func parseField(vals map[string]string, field, symbol string) (float64, error) {
	raw, ok := vals[field]
	if !ok {
		return 0, domain.ErrNotFound
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("redis: parse %s for %s: %w", field, symbol, err)
	}
	return v, nil
}

func parseTimestamp(vals map[string]string, symbol string) (time.Time, error) {
	raw, ok := vals["ts"]
	if !ok {
		return time.Time{}, domain.ErrNotFound
	}
	nanos, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("redis: parse ts for %s: %w", symbol, err)
	}
	return time.Unix(0, nanos), nil
}

// Compile-time interface check.
var _ domain.PriceCache = (*PriceCache)(nil)
