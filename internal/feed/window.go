// Package feed maintains the rolling market-data window the rest of the
// system reads from. The poller is the single writer; strategies take
// read-only snapshots.
package feed

import (
	"sync"
	"time"

	"github.com/alanyoungcy/fxbot/internal/domain"
)

// Window is a time-ordered, timestamp-deduplicated rolling history of bars.
// Bars older than the retention horizon are evicted on every append, so the
// window is bounded by age rather than count.
type Window struct {
	mu        sync.RWMutex
	bars      []domain.PriceBar
	retention time.Duration
	now       func() time.Time
}

// NewWindow creates a window with the given retention horizon.
func NewWindow(retention time.Duration) *Window {
	return &Window{
		retention: retention,
		now:       time.Now,
	}
}

// SetNowFunc overrides the clock, for deterministic eviction in tests.
func (w *Window) SetNowFunc(now func() time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.now = now
}

// Append inserts a bar, keeping the window ordered and deduplicated by
// timestamp, then evicts anything past the retention horizon. Returns false
// when the bar was a duplicate.
func (w *Window) Append(bar domain.PriceBar) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	inserted := w.insert(bar)
	w.evict()
	return inserted
}

// insert places the bar at its ordered position. Caller must hold w.mu.
func (w *Window) insert(bar domain.PriceBar) bool {
	n := len(w.bars)
	// Common case: strictly newer than everything held.
	if n == 0 || bar.Timestamp.After(w.bars[n-1].Timestamp) {
		w.bars = append(w.bars, bar)
		return true
	}
	// Walk back to find the slot; windows are short enough that a linear
	// scan beats maintaining an index.
	for i := n - 1; i >= 0; i-- {
		if bar.Timestamp.Equal(w.bars[i].Timestamp) {
			return false
		}
		if bar.Timestamp.After(w.bars[i].Timestamp) {
			w.bars = append(w.bars, domain.PriceBar{})
			copy(w.bars[i+2:], w.bars[i+1:])
			w.bars[i+1] = bar
			return true
		}
	}
	w.bars = append([]domain.PriceBar{bar}, w.bars...)
	return true
}

// evict drops bars older than the retention horizon. Caller must hold w.mu.
func (w *Window) evict() {
	cutoff := w.now().Add(-w.retention)
	i := 0
	for i < len(w.bars) && w.bars[i].Timestamp.Before(cutoff) {
		i++
	}
	if i > 0 {
		w.bars = append(w.bars[:0], w.bars[i:]...)
	}
}

// Snapshot returns a copy of the current bars, oldest first. Eviction runs
// first so readers never observe expired bars.
func (w *Window) Snapshot() []domain.PriceBar {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.evict()
	out := make([]domain.PriceBar, len(w.bars))
	copy(out, w.bars)
	return out
}

// Len returns the number of live bars.
func (w *Window) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.bars)
}

// Latest returns the newest bar, and false when the window is empty.
func (w *Window) Latest() (domain.PriceBar, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if len(w.bars) == 0 {
		return domain.PriceBar{}, false
	}
	return w.bars[len(w.bars)-1], true
}
