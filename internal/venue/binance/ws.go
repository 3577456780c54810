package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/fxbot/internal/domain"
	"github.com/alanyoungcy/fxbot/internal/venue"
)

const (
	wsWriteWait    = 10 * time.Second
	wsPongWait     = 60 * time.Second
	wsPingPeriod   = (wsPongWait * 9) / 10
	wsBaseBackoff  = 2 * time.Second
	wsMaxBackoff   = 60 * time.Second
	barsBufferSize = 64
)

// klineEvent is one message from the Binance kline stream.
type klineEvent struct {
	EventType string `json:"e"`
	Symbol    string `json:"s"`
	Kline     struct {
		StartTime int64  `json:"t"`
		Open      string `json:"o"`
		High      string `json:"h"`
		Low       string `json:"l"`
		Close     string `json:"c"`
		Volume    string `json:"v"`
		Closed    bool   `json:"x"`
	} `json:"k"`
}

// KlineStream consumes the Binance spot kline WebSocket and emits a bar for
// every closed candle. It reconnects with exponential backoff until the
// context is cancelled.
type KlineStream struct {
	wsURL  string
	bars   chan domain.PriceBar
	logger *slog.Logger
}

var _ venue.BarStream = (*KlineStream)(nil)

// NewKlineStream builds a stream for one symbol and timeframe.
//
// wsURL is the stream root, e.g. "wss://stream.binance.com:9443/ws".
func NewKlineStream(wsURL, symbol, timeframe string, logger *slog.Logger) *KlineStream {
	endpoint := fmt.Sprintf("%s/%s@kline_%s", strings.TrimRight(wsURL, "/"), strings.ToLower(symbol), timeframe)
	return &KlineStream{
		wsURL:  endpoint,
		bars:   make(chan domain.PriceBar, barsBufferSize),
		logger: logger.With(slog.String("component", "kline_stream")),
	}
}

// Bars returns the channel of closed candles.
func (s *KlineStream) Bars() <-chan domain.PriceBar {
	return s.bars
}

// Run connects and pumps bars until ctx is cancelled. The bars channel is
// closed on return.
func (s *KlineStream) Run(ctx context.Context) error {
	defer close(s.bars)

	backoff := wsBaseBackoff
	for {
		if err := s.runOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Warn("stream disconnected, reconnecting",
				slog.Duration("backoff", backoff),
				slog.Any("error", err))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > wsMaxBackoff {
			backoff = wsMaxBackoff
		}
	}
}

// runOnce holds a single connection open until it drops or ctx ends.
func (s *KlineStream) runOnce(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, s.wsURL, nil)
	if err != nil {
		return fmt.Errorf("binance/ws: connect: %w", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(wsPongWait))
		return nil
	})

	// Close the connection when ctx ends so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(wsPingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				conn.Close()
				return
			case <-done:
				return
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("binance/ws: read: %w", domain.ErrWSDisconnect)
		}

		var ev klineEvent
		if err := json.Unmarshal(message, &ev); err != nil || ev.EventType != "kline" {
			continue
		}
		if !ev.Kline.Closed {
			continue
		}

		bar := domain.PriceBar{
			Timestamp: time.UnixMilli(ev.Kline.StartTime).UTC(),
			Open:      parseFloat(ev.Kline.Open),
			High:      parseFloat(ev.Kline.High),
			Low:       parseFloat(ev.Kline.Low),
			Close:     parseFloat(ev.Kline.Close),
			Volume:    parseFloat(ev.Kline.Volume),
		}

		select {
		case s.bars <- bar:
		default:
			// Slow consumer; drop the oldest bar rather than block the reader.
			select {
			case <-s.bars:
			default:
			}
			s.bars <- bar
		}
	}
}
