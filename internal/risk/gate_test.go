package risk

import (
	"context"
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

func testLimits() Limits {
	return Limits{DailyLossLimit: 500, RiskPerTrade: 0.02, MaxPositionSize: 0.1}
}

func TestLimitsValidate(t *testing.T) {
	require.NoError(t, testLimits().Validate())

	bad := testLimits()
	bad.DailyLossLimit = 0
	assert.ErrorIs(t, bad.Validate(), domain.ErrInvalidConfiguration)

	bad = testLimits()
	bad.RiskPerTrade = -0.01
	assert.ErrorIs(t, bad.Validate(), domain.ErrInvalidConfiguration)
}

func TestGateBlocksExactlyAtLossLimit(t *testing.T) {
	ctx := context.Background()
	g := NewGate(testLimits(), testLogger())

	require.True(t, g.CheckAndGate())

	g.RecordFill(ctx, -499.99)
	assert.True(t, g.CheckAndGate())

	g.RecordFill(ctx, -0.01)
	assert.False(t, g.CheckAndGate(), "pnl at -limit must block")

	// Recovering above the threshold re-enables trading.
	g.RecordFill(ctx, 10)
	assert.True(t, g.CheckAndGate())
}

func TestGateResetReenablesTrading(t *testing.T) {
	ctx := context.Background()
	g := NewGate(testLimits(), testLogger())

	g.RecordFill(ctx, -600)
	require.False(t, g.CheckAndGate())

	g.ResetDaily(ctx)
	assert.True(t, g.CheckAndGate())
	assert.Zero(t, g.Snapshot().DailyPnL)
}

func TestGateRollsOverAtDayBoundary(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC)
	g := NewGate(testLimits(), testLogger())
	g.SetNowFunc(func() time.Time { return now })

	g.RecordFill(ctx, -600)
	require.False(t, g.CheckAndGate())

	now = now.Add(2 * time.Hour) // 01:00 the next day
	assert.True(t, g.CheckAndGate())
	assert.Zero(t, g.Snapshot().DailyPnL)
}

func TestSizePositionRiskBudget(t *testing.T) {
	g := NewGate(testLimits(), testLogger())

	// High volatility: risk budget binds. 10000 * 0.02 / 4 = 50.
	qty, err := g.SizePosition(10_000, 4)
	require.NoError(t, err)
	assert.InDelta(t, 50, qty, 1e-9)

	// Low volatility: the position cap binds. 10000 * 0.1 = 1000.
	qty, err = g.SizePosition(10_000, 0.01)
	require.NoError(t, err)
	assert.InDelta(t, 1000, qty, 1e-9)
}

func TestSizePositionMonotonicity(t *testing.T) {
	g := NewGate(testLimits(), testLogger())

	prev := 0.0
	for _, balance := range []float64{100, 1_000, 10_000, 100_000} {
		qty, err := g.SizePosition(balance, 2)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, qty, prev, "quantity must not shrink as balance grows")
		assert.LessOrEqual(t, qty, balance*testLimits().MaxPositionSize+1e-9)
		prev = qty
	}

	prev = 1e18
	for _, vol := range []float64{0.5, 1, 2, 8} {
		qty, err := g.SizePosition(10_000, vol)
		require.NoError(t, err)
		assert.LessOrEqual(t, qty, prev, "quantity must not grow as volatility rises")
		prev = qty
	}
}

func TestSizePositionInvalidVolatility(t *testing.T) {
	g := NewGate(testLimits(), testLogger())

	_, err := g.SizePosition(10_000, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidVolatility)

	_, err = g.SizePosition(10_000, -1)
	assert.ErrorIs(t, err, domain.ErrInvalidVolatility)
}

// fakeRiskStore records saves and serves one snapshot.
type fakeRiskStore struct {
	saved []domain.RiskSnapshot
	snap  *domain.RiskSnapshot
}

func (f *fakeRiskStore) Save(_ context.Context, snap domain.RiskSnapshot) error {
	f.saved = append(f.saved, snap)
	return nil
}

func (f *fakeRiskStore) Load(_ context.Context, _ time.Time) (domain.RiskSnapshot, error) {
	if f.snap == nil {
		return domain.RiskSnapshot{}, domain.ErrNotFound
	}
	return *f.snap, nil
}

func TestGateRestoresPersistedState(t *testing.T) {
	ctx := context.Background()
	store := &fakeRiskStore{snap: &domain.RiskSnapshot{DailyPnL: -600}}
	g := NewGate(testLimits(), testLogger()).WithStore(store)

	require.NoError(t, g.Restore(ctx))
	assert.False(t, g.CheckAndGate(), "restored losses must still gate")

	g.RecordFill(ctx, 200)
	require.NotEmpty(t, store.saved)
	assert.InDelta(t, -400, store.saved[len(store.saved)-1].DailyPnL, 1e-9)
}

func TestGateRestoreMissingStateIsClean(t *testing.T) {
	g := NewGate(testLimits(), testLogger()).WithStore(&fakeRiskStore{})
	require.NoError(t, g.Restore(context.Background()))
	assert.True(t, g.CheckAndGate())
}

// fakeTradeLedger serves a fixed daily PnL sum.
type fakeTradeLedger struct {
	sum float64
}

func (f *fakeTradeLedger) Insert(context.Context, domain.Trade) error        { return nil }
func (f *fakeTradeLedger) InsertBatch(context.Context, []domain.Trade) error { return nil }
func (f *fakeTradeLedger) ListBySymbol(context.Context, string, domain.ListOpts) ([]domain.Trade, error) {
	return nil, nil
}
func (f *fakeTradeLedger) ListBefore(context.Context, time.Time, int) ([]domain.Trade, error) {
	return nil, nil
}
func (f *fakeTradeLedger) DeleteThrough(context.Context, time.Time, string) (int64, error) {
	return 0, nil
}
func (f *fakeTradeLedger) SumPnL(context.Context, time.Time) (float64, error) { return f.sum, nil }

func TestGateRebuildsPnLFromTradeLedger(t *testing.T) {
	ctx := context.Background()
	g := NewGate(testLimits(), testLogger()).
		WithStore(&fakeRiskStore{}).
		WithTrades(&fakeTradeLedger{sum: -600})

	require.NoError(t, g.Restore(ctx))
	assert.InDelta(t, -600, g.Snapshot().DailyPnL, 1e-9)
	assert.False(t, g.CheckAndGate(), "rebuilt losses must still gate")
}
