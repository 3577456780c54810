package executor

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/fxbot/internal/domain"
	"github.com/alanyoungcy/fxbot/internal/monitor"
	"github.com/alanyoungcy/fxbot/internal/risk"
	"github.com/alanyoungcy/fxbot/internal/venue"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(t *testing.T) (*Dispatcher, *venue.Memory, *risk.Gate) {
	t.Helper()
	mem := venue.NewMemory("paper", 10_000)
	mem.SetTicker(domain.Ticker{Symbol: "EURUSD", Bid: 1.0999, Ask: 1.1001, Last: 1.1})
	gate := risk.NewGate(risk.Limits{DailyLossLimit: 500, RiskPerTrade: 0.02, MaxPositionSize: 0.1}, testLogger())
	sink := monitor.NewSink(16, testLogger())
	return NewDispatcher(mem, gate, sink, "EURUSD", testLogger()), mem, gate
}

func bullishSignal() domain.Signal {
	return domain.Signal{
		Symbol: "EURUSD",
		RSI:    domain.LabelOversold,
		EMA:    domain.LabelBullish,
		MACD:   domain.LabelBullish,
		ATR:    2,
	}
}

func TestDispatchUniformBullishBuys(t *testing.T) {
	d, mem, _ := newFixture(t)

	result, err := d.Dispatch(context.Background(), bullishSignal(), 10_000)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeFilled, result.Outcome)
	assert.Equal(t, domain.OrderSideBuy, result.Side)

	orders := mem.Orders()
	require.Len(t, orders, 1)
	assert.Equal(t, domain.OrderSideBuy, orders[0].Side)
	assert.Equal(t, domain.OrderTypeMarket, orders[0].Type)
	// min(10000*0.02/2, 10000*0.1) = 100
	assert.InDelta(t, 100, orders[0].Quantity, 1e-9)
}

func TestDispatchUniformBearishSells(t *testing.T) {
	d, mem, _ := newFixture(t)

	sig := domain.Signal{
		Symbol: "EURUSD",
		RSI:    domain.LabelOverbought,
		EMA:    domain.LabelBearish,
		MACD:   domain.LabelBearish,
		ATR:    2,
	}
	result, err := d.Dispatch(context.Background(), sig, 10_000)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeFilled, result.Outcome)
	assert.Equal(t, domain.OrderSideSell, result.Side)
	assert.Len(t, mem.Orders(), 1)
}

func TestDispatchMixedSignalsDoesNothing(t *testing.T) {
	d, mem, _ := newFixture(t)

	sig := bullishSignal()
	sig.EMA = domain.LabelBearish

	result, err := d.Dispatch(context.Background(), sig, 10_000)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeNoAction, result.Outcome)
	assert.Empty(t, mem.Orders())
}

func TestDispatchNeutralMomentumDoesNothing(t *testing.T) {
	d, mem, _ := newFixture(t)

	sig := bullishSignal()
	sig.RSI = domain.LabelNeutral

	result, err := d.Dispatch(context.Background(), sig, 10_000)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeNoAction, result.Outcome)
	assert.Empty(t, mem.Orders())
}

func TestDispatchEmptySignalDoesNothing(t *testing.T) {
	d, mem, _ := newFixture(t)

	result, err := d.Dispatch(context.Background(), domain.Signal{}, 10_000)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeNoAction, result.Outcome)
	assert.Empty(t, mem.Orders())
}

func TestDispatchBlockedByRiskGate(t *testing.T) {
	d, mem, gate := newFixture(t)
	gate.RecordFill(context.Background(), -600)

	result, err := d.Dispatch(context.Background(), bullishSignal(), 10_000)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeNoAction, result.Outcome)
	assert.Empty(t, mem.Orders())
}

func TestDispatchInvalidVolatilitySkips(t *testing.T) {
	d, mem, _ := newFixture(t)

	sig := bullishSignal()
	sig.ATR = 0

	result, err := d.Dispatch(context.Background(), sig, 10_000)
	assert.ErrorIs(t, err, domain.ErrInvalidVolatility)
	assert.Equal(t, domain.OutcomeNoAction, result.Outcome)
	assert.Empty(t, mem.Orders())
}

func TestDispatchVenueUnavailableLeavesRiskStateUnchanged(t *testing.T) {
	d, mem, gate := newFixture(t)
	before := gate.Snapshot().DailyPnL

	mem.SetFail(domain.ErrVenueUnavailable)
	_, err := d.Dispatch(context.Background(), bullishSignal(), 10_000)
	require.ErrorIs(t, err, domain.ErrVenueUnavailable)
	assert.Equal(t, before, gate.Snapshot().DailyPnL)

	// The venue comes back and the next cycle proceeds normally.
	mem.SetFail(nil)
	result, err := d.Dispatch(context.Background(), bullishSignal(), 10_000)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeFilled, result.Outcome)
}

func TestDispatchRejectionIsNonFatal(t *testing.T) {
	d, mem, _ := newFixture(t)
	mem.SetRejectOrders(true)

	result, err := d.Dispatch(context.Background(), bullishSignal(), 10_000)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeRejected, result.Outcome)
}
