// Package arb scans order books across the configured venues for crossed
// prices and captures them with paired limit orders. With a single venue it
// degenerates to checking that venue's own book for a crossed top.
package arb

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/fxbot/internal/domain"
	"github.com/alanyoungcy/fxbot/internal/monitor"
	"github.com/alanyoungcy/fxbot/internal/venue"
)

// Params configure the scanner.
type Params struct {
	Symbol             string
	MinProfitThreshold float64 // fraction of the ask, e.g. 0.005
	MinQuantity        float64 // skip opportunities thinner than this
	BookDepth          int
}

// Validate rejects unusable parameters at startup.
func (p Params) Validate() error {
	if p.Symbol == "" {
		return fmt.Errorf("arb: empty symbol: %w", domain.ErrInvalidConfiguration)
	}
	if p.MinProfitThreshold <= 0 {
		return fmt.Errorf("arb: profit threshold %v: %w", p.MinProfitThreshold, domain.ErrInvalidConfiguration)
	}
	if p.MinQuantity < 0 {
		return fmt.Errorf("arb: negative min quantity: %w", domain.ErrInvalidConfiguration)
	}
	return nil
}

// opportunity is one crossed pair of book tops.
type opportunity struct {
	buyVenue  venue.Client
	sellVenue venue.Client
	ask       domain.BookLevel
	bid       domain.BookLevel
}

// spread returns the gross edge of the opportunity.
func (o opportunity) spread() float64 {
	return o.bid.Price - o.ask.Price
}

// Scanner looks for crossed tops each cycle and executes both legs.
type Scanner struct {
	venues []venue.Client
	sink   *monitor.Sink
	params Params
	logger *slog.Logger
}

// NewScanner builds a scanner over one or more venues.
func NewScanner(venues []venue.Client, sink *monitor.Sink, params Params, logger *slog.Logger) *Scanner {
	return &Scanner{
		venues: venues,
		sink:   sink,
		params: params,
		logger: logger.With(slog.String("component", "arb")),
	}
}

// Scan fetches every venue's book, picks the widest profitable cross, and
// submits a limit buy at the ask and a limit sell at the bid for the smaller
// of the two available quantities.
func (s *Scanner) Scan(ctx context.Context) (domain.OrderResult, error) {
	books := make([]domain.OrderBook, len(s.venues))
	for i, v := range s.venues {
		book, err := v.GetOrderBook(ctx, s.params.Symbol, s.params.BookDepth)
		if err != nil {
			return domain.OrderResult{}, fmt.Errorf("arb: book from %s: %w", v.Name(), err)
		}
		books[i] = book
	}

	best, found := s.findBest(books)
	if !found {
		return domain.NoAction("no crossed prices"), nil
	}

	qty := best.ask.Quantity
	if best.bid.Quantity < qty {
		qty = best.bid.Quantity
	}
	if qty < s.params.MinQuantity {
		return domain.NoAction("opportunity below minimum quantity"), nil
	}

	s.logger.Info("arbitrage opportunity",
		slog.String("symbol", s.params.Symbol),
		slog.String("buy_venue", best.buyVenue.Name()),
		slog.String("sell_venue", best.sellVenue.Name()),
		slog.Float64("ask", best.ask.Price),
		slog.Float64("bid", best.bid.Price),
		slog.Float64("spread", best.spread()),
		slog.Float64("qty", qty))

	return s.execute(ctx, best, qty)
}

// findBest returns the widest cross over all venue pairs that clears the
// profit threshold. Comparing a venue with itself covers the degenerate
// single-venue crossed book.
func (s *Scanner) findBest(books []domain.OrderBook) (opportunity, bool) {
	var best opportunity
	found := false
	for i, buyBook := range books {
		ask := buyBook.BestAsk()
		if ask.Price <= 0 {
			continue
		}
		for j, sellBook := range books {
			bid := sellBook.BestBid()
			if bid.Price <= 0 {
				continue
			}
			if bid.Price-ask.Price <= ask.Price*s.params.MinProfitThreshold {
				continue
			}
			opp := opportunity{
				buyVenue:  s.venues[i],
				sellVenue: s.venues[j],
				ask:       ask,
				bid:       bid,
			}
			if !found || opp.spread() > best.spread() {
				best = opp
				found = true
			}
		}
	}
	return best, found
}

// execute submits both legs concurrently. The opportunity is only real while
// both tops rest, so the legs race the market together.
func (s *Scanner) execute(ctx context.Context, opp opportunity, qty float64) (domain.OrderResult, error) {
	var buyResult, sellResult domain.OrderResult

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		buyResult, err = opp.buyVenue.PlaceOrder(gctx, domain.OrderRequest{
			Symbol:   s.params.Symbol,
			Side:     domain.OrderSideBuy,
			Type:     domain.OrderTypeLimit,
			Quantity: qty,
			Price:    opp.ask.Price,
			Strategy: "arbitrage",
		})
		return err
	})
	g.Go(func() error {
		var err error
		sellResult, err = opp.sellVenue.PlaceOrder(gctx, domain.OrderRequest{
			Symbol:   s.params.Symbol,
			Side:     domain.OrderSideSell,
			Type:     domain.OrderTypeLimit,
			Quantity: qty,
			Price:    opp.bid.Price,
			Strategy: "arbitrage",
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.OrderResult{}, fmt.Errorf("arb: execute legs: %w", err)
	}

	legs := []struct {
		result domain.OrderResult
		client venue.Client
	}{
		{buyResult, opp.buyVenue},
		{sellResult, opp.sellVenue},
	}
	for _, leg := range legs {
		if leg.result.Outcome != domain.OutcomeFilled {
			continue
		}
		s.sink.RecordTrade(domain.Trade{
			ID:         uuid.NewString(),
			Symbol:     leg.result.Symbol,
			Side:       leg.result.Side,
			Quantity:   leg.result.FilledQty,
			Price:      leg.result.FilledPrice,
			Strategy:   "arbitrage",
			Venue:      leg.client.Name(),
			ExecutedAt: time.Now().UTC(),
		})
	}

	// Report the buy leg, annotated with the captured spread.
	buyResult.Message = fmt.Sprintf("spread %.6f captured against %s", opp.spread(), opp.sellVenue.Name())
	return buyResult, nil
}
