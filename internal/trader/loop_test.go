package trader

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/fxbot/internal/arb"
	"github.com/alanyoungcy/fxbot/internal/domain"
	"github.com/alanyoungcy/fxbot/internal/executor"
	"github.com/alanyoungcy/fxbot/internal/feed"
	"github.com/alanyoungcy/fxbot/internal/hedge"
	"github.com/alanyoungcy/fxbot/internal/monitor"
	"github.com/alanyoungcy/fxbot/internal/notify"
	"github.com/alanyoungcy/fxbot/internal/risk"
	"github.com/alanyoungcy/fxbot/internal/signal"
	"github.com/alanyoungcy/fxbot/internal/venue"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeClock drives the loop manually: every receive from After is one
// released sleep.
type fakeClock struct {
	mu   sync.Mutex
	now  time.Time
	step chan time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{
		now:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		step: make(chan time.Time),
	}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
	return c.step
}

type fixture struct {
	loop  *Loop
	mem   *venue.Memory
	gate  *risk.Gate
	clock *fakeClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	mem := venue.NewMemory("paper", 10_000)
	mem.SetTicker(domain.Ticker{Symbol: "EURUSD", Bid: 1.1, Ask: 1.1, Last: 1.1})
	mem.SetOrderBook(domain.OrderBook{
		Symbol: "EURUSD",
		Bids:   []domain.BookLevel{{Price: 1.1, Quantity: 100}},
		Asks:   []domain.BookLevel{{Price: 1.1005, Quantity: 100}},
	})
	mem.PushBar("EURUSD", domain.PriceBar{
		Timestamp: time.Now().UTC(), Open: 1.1, High: 1.101, Low: 1.099, Close: 1.1, Volume: 100,
	})

	logger := testLogger()
	window := feed.NewWindow(time.Hour)
	poller := feed.NewPoller(mem, window, "EURUSD", venue.Timeframe1m, logger)
	gate := risk.NewGate(risk.Limits{DailyLossLimit: 500, RiskPerTrade: 0.02, MaxPositionSize: 0.1}, logger)
	sink := monitor.NewSink(64, logger)
	dispatcher := executor.NewDispatcher(mem, gate, sink, "EURUSD", logger)
	hedger := hedge.NewHedger(mem, sink, hedge.Params{HedgeSymbol: "EURUSD", HedgeRatio: 0.5, Tolerance: 1e9}, logger)
	scanner := arb.NewScanner([]venue.Client{mem}, sink, arb.Params{Symbol: "EURUSD", MinProfitThreshold: 0.005}, logger)
	clock := newFakeClock()

	loop, err := NewLoop(
		Config{Mode: "trade", Interval: time.Minute, VenueTimeout: 5 * time.Second},
		Deps{
			Client:     mem,
			Poller:     poller,
			Evaluator:  signal.NewEvaluator("EURUSD", signal.DefaultParams(), logger),
			Gate:       gate,
			Dispatcher: dispatcher,
			Hedger:     hedger,
			Scanner:    scanner,
			Sink:       sink,
			Clock:      clock,
		},
		logger,
	)
	require.NoError(t, err)

	return &fixture{loop: loop, mem: mem, gate: gate, clock: clock}
}

func TestConfigValidate(t *testing.T) {
	assert.ErrorIs(t, Config{Interval: 0, VenueTimeout: time.Second}.Validate(), domain.ErrInvalidConfiguration)
	assert.ErrorIs(t, Config{Interval: time.Minute}.Validate(), domain.ErrInvalidConfiguration)
	assert.NoError(t, Config{Interval: time.Minute, VenueTimeout: time.Second}.Validate())
}

func TestLoopTicksAndStopsGracefully(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- f.loop.Run(ctx) }()

	// Release two sleeps, so three ticks run in total.
	f.clock.step <- time.Time{}
	f.clock.step <- time.Time{}

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop after cancellation")
	}

	assert.GreaterOrEqual(t, f.loop.Status().TickCount, int64(3))
}

func TestLoopSurvivesVenueOutage(t *testing.T) {
	f := newFixture(t)
	f.mem.SetFail(domain.ErrVenueUnavailable)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.loop.Run(ctx) }()

	// A fully dark venue must not crash or stall the loop.
	f.clock.step <- time.Time{}

	// Venue recovers; the next tick proceeds normally.
	f.mem.SetFail(nil)
	f.clock.step <- time.Time{}

	cancel()
	require.NoError(t, <-done)
	assert.GreaterOrEqual(t, f.loop.Status().TickCount, int64(3))
	// Risk state was never touched by the failed ticks.
	assert.Zero(t, f.gate.Snapshot().DailyPnL)
}

func TestLoopGateBlocksDirectionalButNotHedging(t *testing.T) {
	f := newFixture(t)
	f.gate.RecordFill(context.Background(), -600)

	// Widen the hedge tolerance band to zero so the hedger must act.
	logger := testLogger()
	sink := monitor.NewSink(64, logger)
	f.loop.hedger = hedge.NewHedger(f.mem, sink, hedge.Params{HedgeSymbol: "EURUSD", HedgeRatio: 0.5, Tolerance: 0.01}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.loop.Run(ctx) }()

	f.clock.step <- time.Time{}
	cancel()
	require.NoError(t, <-done)

	var hedgeOrders, dispatchOrders int
	for _, o := range f.mem.Orders() {
		switch o.Strategy {
		case "hedging":
			hedgeOrders++
		case "dispatcher":
			dispatchOrders++
		}
	}
	assert.Zero(t, dispatchOrders, "gate must block directional orders")
	assert.Greater(t, hedgeOrders, 0, "hedging runs even when the gate is closed")
}

type captureSender struct {
	mu   sync.Mutex
	sent []string
}

func (c *captureSender) Send(_ context.Context, title, _ string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, title)
	return nil
}

func (c *captureSender) Name() string { return "capture" }

func TestLoopNotifiesOnArbitrageCapture(t *testing.T) {
	f := newFixture(t)
	// Crossed book: bid above ask by far more than the profit threshold.
	f.mem.SetOrderBook(domain.OrderBook{
		Symbol: "EURUSD",
		Bids:   []domain.BookLevel{{Price: 1.2, Quantity: 10}},
		Asks:   []domain.BookLevel{{Price: 1.1, Quantity: 10}},
	})

	sender := &captureSender{}
	// Only arbitrage events pass the filter, so a directional fill cannot
	// satisfy the assertion.
	f.loop.notifier = notify.NewNotifier([]notify.Sender{sender}, []string{notify.EventArb}, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.loop.Run(ctx) }()

	f.clock.step <- time.Time{}
	cancel()
	require.NoError(t, <-done)

	sender.mu.Lock()
	defer sender.mu.Unlock()
	require.NotEmpty(t, sender.sent, "a captured arbitrage must alert the operator")
	assert.Equal(t, "Arbitrage captured", sender.sent[0])
}

func TestLoopStatus(t *testing.T) {
	f := newFixture(t)
	status := f.loop.Status()

	assert.Equal(t, "trade", status.Mode)
	assert.False(t, status.TradingActive)
	assert.Equal(t, int64(0), status.TickCount)
	assert.InDelta(t, 500, status.Risk.DailyLossLimit, 1e-9)
	assert.Nil(t, status.LastTrade)
}
