package monitor

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/fxbot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestSinkAccumulatesHistoryAndPnL(t *testing.T) {
	s := NewSink(16, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = s.Run(ctx)
	}()

	s.RecordTrade(domain.Trade{ID: "t1", Symbol: "EURUSD", PnL: 50})
	s.RecordTrade(domain.Trade{ID: "t2", Symbol: "EURUSD", PnL: -20})

	waitFor(t, func() bool { return len(s.History()) == 2 })
	assert.InDelta(t, 30, s.CumulativePnL(), 1e-9)

	last, ok := s.LastTrade()
	require.True(t, ok)
	assert.Equal(t, "t2", last.ID)

	cancel()
	wg.Wait()
}

func TestSinkRecordNeverBlocks(t *testing.T) {
	// No consumer running and a tiny buffer: extra records must drop, not hang.
	s := NewSink(1, testLogger())

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 10; i++ {
			s.RecordTrade(domain.Trade{ID: "t", Symbol: "EURUSD"})
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RecordTrade blocked the producer")
	}

	_, dropped := s.Stats()
	assert.Equal(t, int64(9), dropped)
}

type captureStore struct {
	mu      sync.Mutex
	trades  []domain.Trade
	batches [][]domain.Trade
	listed  []domain.Trade
}

func (c *captureStore) Insert(_ context.Context, trade domain.Trade) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.trades = append(c.trades, trade)
	return nil
}

func (c *captureStore) InsertBatch(_ context.Context, trades []domain.Trade) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	batch := make([]domain.Trade, len(trades))
	copy(batch, trades)
	c.batches = append(c.batches, batch)
	return nil
}

func (c *captureStore) ListBySymbol(context.Context, string, domain.ListOpts) ([]domain.Trade, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listed, nil
}

func (c *captureStore) ListBefore(context.Context, time.Time, int) ([]domain.Trade, error) {
	return nil, nil
}

func (c *captureStore) DeleteThrough(context.Context, time.Time, string) (int64, error) {
	return 0, nil
}

func (c *captureStore) SumPnL(context.Context, time.Time) (float64, error) { return 0, nil }

func (c *captureStore) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.trades)
}

func TestSinkPersistsThroughStore(t *testing.T) {
	store := &captureStore{}
	s := NewSink(16, testLogger()).WithStore(store)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Run(ctx) }()

	s.RecordTrade(domain.Trade{ID: "t1", Symbol: "EURUSD", PnL: 5})

	waitFor(t, func() bool { return store.count() == 1 })
}

func TestSinkRestoreSeedsHistoryFromStore(t *testing.T) {
	store := &captureStore{listed: []domain.Trade{
		{ID: "t3", Symbol: "EURUSD", PnL: 10},
		{ID: "t2", Symbol: "EURUSD", PnL: -30},
		{ID: "t1", Symbol: "EURUSD", PnL: 5},
	}}
	s := NewSink(16, testLogger()).WithStore(store)

	require.NoError(t, s.Restore(context.Background(), "EURUSD"))

	history := s.History()
	require.Len(t, history, 3)
	assert.Equal(t, "t1", history[0].ID)
	assert.Equal(t, "t3", history[2].ID)
	assert.InDelta(t, -15, s.CumulativePnL(), 1e-9)

	last, ok := s.LastTrade()
	require.True(t, ok)
	assert.Equal(t, "t3", last.ID)
}

func TestSinkFlushesPendingBatchOnShutdown(t *testing.T) {
	store := &captureStore{}
	s := NewSink(16, testLogger()).WithStore(store)

	// Buffer trades before the consumer starts so they are still pending
	// when the already-cancelled context stops Run immediately.
	s.RecordTrade(domain.Trade{ID: "t1", Symbol: "EURUSD", PnL: 5})
	s.RecordTrade(domain.Trade{ID: "t2", Symbol: "EURUSD", PnL: -3})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, s.Run(ctx))

	store.mu.Lock()
	defer store.mu.Unlock()
	require.Len(t, store.batches, 1)
	require.Len(t, store.batches[0], 2)
	assert.Equal(t, "t1", store.batches[0][0].ID)
	assert.Equal(t, "t2", store.batches[0][1].ID)
	assert.Equal(t, 0, len(store.trades), "drained trades persist through the batch path")
}
