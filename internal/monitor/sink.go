// Package monitor accumulates executed trades for observability. Producers
// hand trades off through a buffered channel so recording never blocks the
// trading loop.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/alanyoungcy/fxbot/internal/domain"
)

const defaultHistoryLimit = 1000

// Sink receives trade records asynchronously, keeps a bounded in-memory
// history with cumulative PnL, and optionally persists and publishes each
// trade.
type Sink struct {
	ch           chan domain.Trade
	historyLimit int

	mu       sync.RWMutex
	history  []domain.Trade
	cumPnL   float64
	last     *domain.Trade
	recorded int64
	dropped  int64

	store  domain.TradeStore // optional
	bus    domain.TradeBus   // optional
	busCh  string
	riskFn func(context.Context, float64) // optional, fed realized PnL
	logger *slog.Logger
}

// NewSink creates a sink with the given handoff buffer size.
func NewSink(buffer int, logger *slog.Logger) *Sink {
	if buffer <= 0 {
		buffer = 256
	}
	return &Sink{
		ch:           make(chan domain.Trade, buffer),
		historyLimit: defaultHistoryLimit,
		logger:       logger.With(slog.String("component", "monitor")),
	}
}

// WithStore persists every recorded trade.
func (s *Sink) WithStore(store domain.TradeStore) *Sink {
	s.store = store
	return s
}

// WithBus publishes every recorded trade as JSON on the given channel.
func (s *Sink) WithBus(bus domain.TradeBus, channel string) *Sink {
	s.bus = bus
	s.busCh = channel
	return s
}

// WithRiskFeedback forwards the realized PnL of closing trades to fn, once
// per trade. Opening fills carry zero PnL and are not forwarded.
func (s *Sink) WithRiskFeedback(fn func(context.Context, float64)) *Sink {
	s.riskFn = fn
	return s
}

// RecordTrade hands a trade to the sink without blocking. When the buffer is
// full the trade is counted as dropped rather than stalling the caller.
func (s *Sink) RecordTrade(trade domain.Trade) {
	select {
	case s.ch <- trade:
	default:
		s.mu.Lock()
		s.dropped++
		s.mu.Unlock()
		s.logger.Warn("monitor buffer full, trade dropped",
			slog.String("trade_id", trade.ID),
			slog.String("symbol", trade.Symbol))
	}
}

// Restore seeds the in-memory history from the most recently persisted
// trades so a restart keeps the status view and cumulative PnL. Call it
// before Run starts consuming. The risk feedback hook is not replayed; the
// gate restores its own state.
func (s *Sink) Restore(ctx context.Context, symbol string) error {
	if s.store == nil {
		return nil
	}
	trades, err := s.store.ListBySymbol(ctx, symbol, domain.ListOpts{Limit: s.historyLimit})
	if err != nil {
		return fmt.Errorf("monitor: restore history: %w", err)
	}
	if len(trades) == 0 {
		return nil
	}

	// ListBySymbol is newest-first; history is kept oldest-first.
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(trades) - 1; i >= 0; i-- {
		s.history = append(s.history, trades[i])
		s.cumPnL += trades[i].PnL
	}
	last := trades[0]
	s.last = &last
	return nil
}

// Run consumes the handoff channel until ctx ends. Trades still buffered at
// shutdown are drained and persisted in one batch.
func (s *Sink) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			var pending []domain.Trade
			for {
				select {
				case trade := <-s.ch:
					s.observe(context.Background(), trade)
					pending = append(pending, trade)
				default:
					s.flush(context.Background(), pending)
					return nil
				}
			}
		case trade := <-s.ch:
			s.ingest(ctx, trade)
		}
	}
}

func (s *Sink) ingest(ctx context.Context, trade domain.Trade) {
	s.observe(ctx, trade)
	if s.store != nil {
		if err := s.store.Insert(ctx, trade); err != nil {
			s.logger.Error("trade persist failed",
				slog.String("trade_id", trade.ID),
				slog.Any("error", err))
		}
	}
}

// observe applies a trade to the in-memory state, the risk feedback hook,
// and the bus, but not the store.
func (s *Sink) observe(ctx context.Context, trade domain.Trade) {
	s.mu.Lock()
	s.history = append(s.history, trade)
	if len(s.history) > s.historyLimit {
		s.history = s.history[len(s.history)-s.historyLimit:]
	}
	s.cumPnL += trade.PnL
	s.last = &trade
	s.recorded++
	s.mu.Unlock()

	if s.riskFn != nil && trade.PnL != 0 {
		s.riskFn(ctx, trade.PnL)
	}
	if s.bus != nil {
		payload, err := json.Marshal(trade)
		if err == nil {
			err = s.bus.Publish(ctx, s.busCh, payload)
		}
		if err != nil {
			s.logger.Warn("trade publish failed",
				slog.String("trade_id", trade.ID),
				slog.Any("error", err))
		}
	}
}

// flush persists the shutdown drain in one round trip.
func (s *Sink) flush(ctx context.Context, trades []domain.Trade) {
	if s.store == nil || len(trades) == 0 {
		return
	}
	if err := s.store.InsertBatch(ctx, trades); err != nil {
		s.logger.Error("trade batch persist failed",
			slog.Int("trades", len(trades)),
			slog.Any("error", err))
	}
}

// History returns a copy of the retained trades, oldest first.
func (s *Sink) History() []domain.Trade {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Trade, len(s.history))
	copy(out, s.history)
	return out
}

// CumulativePnL returns realized PnL summed over the sink's lifetime.
func (s *Sink) CumulativePnL() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cumPnL
}

// LastTrade returns the most recent trade, and false when none exist yet.
func (s *Sink) LastTrade() (domain.Trade, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return domain.Trade{}, false
	}
	return *s.last, true
}

// Stats reports recorded and dropped counts for health reporting.
func (s *Sink) Stats() (recorded, dropped int64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.recorded, s.dropped
}
