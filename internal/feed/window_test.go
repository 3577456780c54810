package feed

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/fxbot/internal/domain"
	"github.com/alanyoungcy/fxbot/internal/venue"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func barAt(ts time.Time, close float64) domain.PriceBar {
	return domain.PriceBar{Timestamp: ts, Open: close, High: close, Low: close, Close: close}
}

func TestWindowEvictsByAge(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	w := NewWindow(30 * time.Minute)
	w.SetNowFunc(func() time.Time { return now })

	for i := 0; i < 60; i++ {
		w.Append(barAt(now.Add(time.Duration(i-59)*time.Minute), 100))
	}

	snap := w.Snapshot()
	require.NotEmpty(t, snap)
	cutoff := now.Add(-30 * time.Minute)
	for _, b := range snap {
		assert.False(t, b.Timestamp.Before(cutoff), "bar %v older than retention cutoff %v", b.Timestamp, cutoff)
	}
}

func TestWindowEvictionAdvancesWithClock(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	w := NewWindow(10 * time.Minute)
	w.SetNowFunc(func() time.Time { return now })

	w.Append(barAt(now.Add(-5*time.Minute), 100))
	require.Equal(t, 1, w.Len())

	// Move the clock past the horizon; the next read evicts.
	now = now.Add(20 * time.Minute)
	assert.Empty(t, w.Snapshot())
}

func TestWindowDeduplicatesByTimestamp(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	w := NewWindow(time.Hour)
	w.SetNowFunc(func() time.Time { return now })

	ts := now.Add(-time.Minute)
	require.True(t, w.Append(barAt(ts, 100)))
	assert.False(t, w.Append(barAt(ts, 101)))

	snap := w.Snapshot()
	require.Len(t, snap, 1)
	// First write wins; duplicates never overwrite.
	assert.Equal(t, 100.0, snap[0].Close)
}

func TestWindowKeepsTimeOrder(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	w := NewWindow(time.Hour)
	w.SetNowFunc(func() time.Time { return now })

	// Out-of-order arrival, e.g. a REST poll racing the stream.
	w.Append(barAt(now.Add(-1*time.Minute), 3))
	w.Append(barAt(now.Add(-3*time.Minute), 1))
	w.Append(barAt(now.Add(-2*time.Minute), 2))

	snap := w.Snapshot()
	require.Len(t, snap, 3)
	for i := 1; i < len(snap); i++ {
		assert.True(t, snap[i].Timestamp.After(snap[i-1].Timestamp))
	}
	assert.Equal(t, []float64{1, 2, 3}, []float64{snap[0].Close, snap[1].Close, snap[2].Close})
}

func TestPollerAppendsLatestBar(t *testing.T) {
	mem := venue.NewMemory("paper", 10_000)
	now := time.Now().UTC()
	mem.PushBar("EURUSD", barAt(now, 1.1))

	w := NewWindow(time.Hour)
	p := NewPoller(mem, w, "EURUSD", venue.Timeframe1m, testLogger())

	bar, err := p.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1.1, bar.Close)
	assert.Equal(t, 1, w.Len())

	// Same bar again is a no-op.
	_, err = p.Poll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, w.Len())
}

func TestPollerVenueFailureLeavesWindowUntouched(t *testing.T) {
	mem := venue.NewMemory("paper", 10_000)
	mem.SetFail(domain.ErrVenueUnavailable)

	w := NewWindow(time.Hour)
	p := NewPoller(mem, w, "EURUSD", venue.Timeframe1m, testLogger())

	_, err := p.Poll(context.Background())
	require.ErrorIs(t, err, domain.ErrVenueUnavailable)
	assert.Zero(t, w.Len())
}
