package signal

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/fxbot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func barsFromCloses(closes []float64) []domain.PriceBar {
	start := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	bars := make([]domain.PriceBar, len(closes))
	for i, c := range closes {
		bars[i] = domain.PriceBar{
			Timestamp: start.Add(time.Duration(i) * time.Minute),
			Open:      c,
			High:      c + 1,
			Low:       c - 1,
			Close:     c,
			Volume:    100,
		}
	}
	return bars
}

func risingCloses(n int, start, step float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	return out
}

func TestEvaluateEmptyWindow(t *testing.T) {
	ev := NewEvaluator("EURUSD", DefaultParams(), testLogger())

	sig := ev.Evaluate(nil)

	assert.True(t, sig.Empty())
	assert.Zero(t, sig.ATR)
}

func TestEvaluateRisingMarket(t *testing.T) {
	ev := NewEvaluator("EURUSD", DefaultParams(), testLogger())

	sig := ev.Evaluate(barsFromCloses(risingCloses(40, 100, 1)))

	require.False(t, sig.Empty())
	// Monotonic gains drive RSI to its ceiling.
	assert.Equal(t, domain.LabelOverbought, sig.RSI)
	assert.InDelta(t, 100, sig.RSIValue, 0.001)
	// Price sits above its own average in a steady uptrend.
	assert.Equal(t, domain.LabelBullish, sig.EMA)
	assert.Equal(t, domain.LabelBullish, sig.MACD)
	assert.Greater(t, sig.MACDLine, sig.MACDSignal)
}

func TestEvaluateFallingMarket(t *testing.T) {
	ev := NewEvaluator("EURUSD", DefaultParams(), testLogger())

	closes := make([]float64, 40)
	for i := range closes {
		closes[i] = 200 - float64(i)
	}
	sig := ev.Evaluate(barsFromCloses(closes))

	assert.Equal(t, domain.LabelOversold, sig.RSI)
	assert.Equal(t, domain.LabelBearish, sig.EMA)
	assert.Equal(t, domain.LabelBearish, sig.MACD)
}

func TestEvaluateFlatMarketIsNeutral(t *testing.T) {
	ev := NewEvaluator("EURUSD", DefaultParams(), testLogger())

	closes := make([]float64, 40)
	for i := range closes {
		// Small oscillation around 100 keeps momentum in the neutral band.
		if i%2 == 0 {
			closes[i] = 100.1
		} else {
			closes[i] = 99.9
		}
	}
	sig := ev.Evaluate(barsFromCloses(closes))

	assert.Equal(t, domain.LabelNeutral, sig.RSI)
	assert.Greater(t, sig.RSIValue, 30.0)
	assert.Less(t, sig.RSIValue, 70.0)
}

func TestRSIShortWindowIsMidpoint(t *testing.T) {
	assert.Equal(t, 50.0, RSI([]float64{1, 2, 3}, 14))
}

func TestEMATracksLatestPrices(t *testing.T) {
	values := risingCloses(50, 100, 1)
	ema := EMA(values, 20)

	last := values[len(values)-1]
	assert.Less(t, ema, last)
	assert.Greater(t, ema, values[0])
}

func TestATRConstantRange(t *testing.T) {
	bars := barsFromCloses(risingCloses(20, 100, 0))

	// Every bar spans high-low = 2 with equal closes, so TR is constant.
	assert.InDelta(t, 2.0, ATR(bars, 14), 1e-9)
}

func TestATRTooFewBars(t *testing.T) {
	bars := barsFromCloses([]float64{100})
	assert.Zero(t, ATR(bars, 14))
}
