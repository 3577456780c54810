package binance

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/fxbot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubRateLimiter answers every Allow call with a fixed verdict.
type stubRateLimiter struct {
	allowed bool
	err     error
	calls   atomic.Int64
}

func (s *stubRateLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	s.calls.Add(1)
	return s.allowed, s.err
}

func tickerServer(t *testing.T, hits *atomic.Int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte(`{"symbol":"EURUSDT","bidPrice":"1.1000","askPrice":"1.1002"}`))
	}))
}

func TestSharedLimiterDenialShortCircuits(t *testing.T) {
	var hits atomic.Int64
	srv := tickerServer(t, &hits)
	defer srv.Close()

	rl := &stubRateLimiter{allowed: false}
	c := NewClient(Config{BaseURL: srv.URL}, testLogger()).
		WithSharedLimiter(rl, 600, time.Minute)

	_, err := c.GetTicker(context.Background(), "EURUSDT")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRateLimited)
	assert.Equal(t, int64(1), rl.calls.Load())
	assert.Zero(t, hits.Load(), "denied requests must not reach the venue")
}

func TestSharedLimiterFailsOpenOnBackendError(t *testing.T) {
	var hits atomic.Int64
	srv := tickerServer(t, &hits)
	defer srv.Close()

	rl := &stubRateLimiter{allowed: false, err: io.ErrUnexpectedEOF}
	c := NewClient(Config{BaseURL: srv.URL}, testLogger()).
		WithSharedLimiter(rl, 600, time.Minute)

	ticker, err := c.GetTicker(context.Background(), "EURUSDT")
	require.NoError(t, err)
	assert.InDelta(t, 1.1, ticker.Bid, 1e-9)
	assert.Equal(t, int64(1), hits.Load())
}
