package hedge

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/fxbot/internal/domain"
	"github.com/alanyoungcy/fxbot/internal/monitor"
	"github.com/alanyoungcy/fxbot/internal/venue"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newFixture(cash float64) (*Hedger, *venue.Memory) {
	mem := venue.NewMemory("paper", cash)
	mem.SetTicker(domain.Ticker{Symbol: "BTCUSDT", Bid: 100, Ask: 100, Last: 100})
	params := Params{HedgeSymbol: "BTCUSDT", HedgeRatio: 0.5, Tolerance: 1}
	sink := monitor.NewSink(16, testLogger())
	return NewHedger(mem, sink, params, testLogger()), mem
}

func TestParamsValidate(t *testing.T) {
	require.NoError(t, Params{HedgeSymbol: "BTCUSDT", HedgeRatio: 0.5}.Validate())
	assert.ErrorIs(t, Params{HedgeRatio: 0.5}.Validate(), domain.ErrInvalidConfiguration)
	assert.ErrorIs(t, Params{HedgeSymbol: "x", HedgeRatio: 1.5}.Validate(), domain.ErrInvalidConfiguration)
}

func TestAdjustmentArithmetic(t *testing.T) {
	// Total 1000 at ratio 0.5 with 200 already hedged wants 300 more.
	assert.InDelta(t, 300, Adjustment(1000, 200, 0.5), 1e-9)
}

func TestRebalanceBuysTowardTarget(t *testing.T) {
	// Cash 800 + hedge position 200 = total 1000; target 500, gap 300.
	h, mem := newFixture(800)
	mem.SetPosition(domain.Position{Symbol: "BTCUSDT", Side: domain.OrderSideBuy, Quantity: 2, MarkPrice: 100})

	result, err := h.Rebalance(context.Background())
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeFilled, result.Outcome)
	assert.Equal(t, domain.OrderSideBuy, result.Side)

	orders := mem.Orders()
	require.Len(t, orders, 1)
	// 300 cash gap at price 100.
	assert.InDelta(t, 3, orders[0].Quantity, 1e-9)
	assert.Equal(t, "hedging", orders[0].Strategy)
}

func TestRebalanceSellsExcessHedge(t *testing.T) {
	// Cash 200 + hedge 800 = total 1000; target 500, gap -300.
	h, mem := newFixture(200)
	mem.SetPosition(domain.Position{Symbol: "BTCUSDT", Side: domain.OrderSideBuy, Quantity: 8, MarkPrice: 100})

	result, err := h.Rebalance(context.Background())
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeFilled, result.Outcome)
	assert.Equal(t, domain.OrderSideSell, result.Side)

	orders := mem.Orders()
	require.Len(t, orders, 1)
	assert.InDelta(t, 3, orders[0].Quantity, 1e-9)
}

func TestRebalanceWithinToleranceDoesNothing(t *testing.T) {
	// Cash 500 + hedge 500: exactly on target.
	h, mem := newFixture(500)
	mem.SetPosition(domain.Position{Symbol: "BTCUSDT", Side: domain.OrderSideBuy, Quantity: 5, MarkPrice: 100})

	result, err := h.Rebalance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeNoAction, result.Outcome)
	assert.Empty(t, mem.Orders())
}

func TestRebalanceVenueFailurePropagates(t *testing.T) {
	h, mem := newFixture(1000)
	mem.SetFail(domain.ErrVenueUnavailable)

	_, err := h.Rebalance(context.Background())
	assert.ErrorIs(t, err, domain.ErrVenueUnavailable)
}
