package arb

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/fxbot/internal/domain"
	"github.com/alanyoungcy/fxbot/internal/monitor"
	"github.com/alanyoungcy/fxbot/internal/venue"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testParams() Params {
	return Params{Symbol: "EURUSD", MinProfitThreshold: 0.005, MinQuantity: 0, BookDepth: 5}
}

func bookWith(bid, bidQty, ask, askQty float64) domain.OrderBook {
	return domain.OrderBook{
		Symbol: "EURUSD",
		Bids:   []domain.BookLevel{{Price: bid, Quantity: bidQty}},
		Asks:   []domain.BookLevel{{Price: ask, Quantity: askQty}},
	}
}

func TestParamsValidate(t *testing.T) {
	require.NoError(t, testParams().Validate())
	assert.ErrorIs(t, Params{MinProfitThreshold: 0.005}.Validate(), domain.ErrInvalidConfiguration)
	assert.ErrorIs(t, Params{Symbol: "EURUSD"}.Validate(), domain.ErrInvalidConfiguration)
}

func TestScanSingleVenueCrossedBookTriggers(t *testing.T) {
	mem := venue.NewMemory("paper", 100_000)
	// Spread 1 > 99 * 0.005 = 0.495: profitable.
	mem.SetOrderBook(bookWith(100, 10, 99, 5))

	s := NewScanner([]venue.Client{mem}, monitor.NewSink(16, testLogger()), testParams(), testLogger())
	result, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeFilled, result.Outcome)

	orders := mem.Orders()
	require.Len(t, orders, 2)

	var buy, sell domain.OrderRequest
	for _, o := range orders {
		if o.Side == domain.OrderSideBuy {
			buy = o
		} else {
			sell = o
		}
	}
	assert.Equal(t, domain.OrderTypeLimit, buy.Type)
	assert.Equal(t, 99.0, buy.Price)
	assert.Equal(t, domain.OrderTypeLimit, sell.Type)
	assert.Equal(t, 100.0, sell.Price)
	// Smaller of the two available quantities.
	assert.Equal(t, 5.0, buy.Quantity)
	assert.Equal(t, 5.0, sell.Quantity)
}

func TestScanThinSpreadDoesNotTrigger(t *testing.T) {
	mem := venue.NewMemory("paper", 100_000)
	// Spread 0.2 < 100 * 0.005 = 0.5: not worth it.
	mem.SetOrderBook(bookWith(100.2, 10, 100, 5))

	s := NewScanner([]venue.Client{mem}, monitor.NewSink(16, testLogger()), testParams(), testLogger())
	result, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeNoAction, result.Outcome)
	assert.Empty(t, mem.Orders())
}

func TestScanCrossVenueBuysCheapSellsRich(t *testing.T) {
	cheap := venue.NewMemory("cheap", 100_000)
	cheap.SetOrderBook(bookWith(98.5, 10, 99, 8))
	rich := venue.NewMemory("rich", 100_000)
	rich.SetOrderBook(bookWith(100, 4, 100.5, 10))

	s := NewScanner([]venue.Client{cheap, rich}, monitor.NewSink(16, testLogger()), testParams(), testLogger())
	result, err := s.Scan(context.Background())
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeFilled, result.Outcome)

	// Buy leg lands on the venue with the low ask.
	cheapOrders := cheap.Orders()
	require.Len(t, cheapOrders, 1)
	assert.Equal(t, domain.OrderSideBuy, cheapOrders[0].Side)
	assert.Equal(t, 99.0, cheapOrders[0].Price)

	richOrders := rich.Orders()
	require.Len(t, richOrders, 1)
	assert.Equal(t, domain.OrderSideSell, richOrders[0].Side)
	assert.Equal(t, 100.0, richOrders[0].Price)

	// Constrained by the rich venue's 4 available at the bid.
	assert.Equal(t, 4.0, cheapOrders[0].Quantity)
}

func TestScanRecordsVenuePerLeg(t *testing.T) {
	cheap := venue.NewMemory("cheap", 100_000)
	cheap.SetOrderBook(bookWith(98.5, 10, 99, 8))
	rich := venue.NewMemory("rich", 100_000)
	rich.SetOrderBook(bookWith(100, 4, 100.5, 10))

	sink := monitor.NewSink(16, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = sink.Run(ctx) }()

	s := NewScanner([]venue.Client{cheap, rich}, sink, testParams(), testLogger())
	result, err := s.Scan(context.Background())
	require.NoError(t, err)
	require.Equal(t, domain.OutcomeFilled, result.Outcome)

	deadline := time.Now().Add(time.Second)
	for len(sink.History()) < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	history := sink.History()
	require.Len(t, history, 2)
	venues := map[domain.OrderSide]string{}
	for _, tr := range history {
		venues[tr.Side] = tr.Venue
	}
	assert.Equal(t, "cheap", venues[domain.OrderSideBuy])
	assert.Equal(t, "rich", venues[domain.OrderSideSell])
}

func TestScanRespectsMinimumQuantity(t *testing.T) {
	mem := venue.NewMemory("paper", 100_000)
	mem.SetOrderBook(bookWith(100, 0.1, 99, 0.1))

	params := testParams()
	params.MinQuantity = 1
	s := NewScanner([]venue.Client{mem}, monitor.NewSink(16, testLogger()), params, testLogger())

	result, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeNoAction, result.Outcome)
	assert.Empty(t, mem.Orders())
}

func TestScanVenueFailurePropagates(t *testing.T) {
	mem := venue.NewMemory("paper", 100_000)
	mem.SetFail(domain.ErrVenueUnavailable)

	s := NewScanner([]venue.Client{mem}, monitor.NewSink(16, testLogger()), testParams(), testLogger())
	_, err := s.Scan(context.Background())
	assert.ErrorIs(t, err, domain.ErrVenueUnavailable)
}
