package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"margin_maker/internal/core"
	"margin_maker/internal/mock"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "trades.db"), mock.NopLogger{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleTrade(cycleID string, side core.Side, price, pnl string) *core.Trade {
	return &core.Trade{
		CycleID:     cycleID,
		OrderID:     "1001",
		Pair:        "WETH-DAI",
		Side:        side,
		Price:       decimal.RequireFromString(price),
		Quantity:    decimal.NewFromInt(5),
		RealizedPnL: decimal.RequireFromString(pnl),
		ExecutedAt:  time.Now(),
	}
}

func TestRecordAndQueryTrades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordTrade(ctx, sampleTrade("c1", core.SideBuy, "199", "0")))
	require.NoError(t, s.RecordTrade(ctx, sampleTrade("c1", core.SideSell, "203", "15")))
	require.NoError(t, s.RecordTrade(ctx, sampleTrade("c2", core.SideBuy, "180", "0")))

	trades, err := s.TradesByCycle(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, trades, 2)

	assert.Equal(t, core.SideBuy, trades[0].Side)
	assert.True(t, trades[0].Price.Equal(decimal.NewFromInt(199)))
	assert.Equal(t, core.SideSell, trades[1].Side)
	assert.True(t, trades[1].RealizedPnL.Equal(decimal.NewFromInt(15)))
}

func TestTotalRealizedPnL(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.RecordTrade(ctx, sampleTrade("c1", core.SideSell, "203", "15")))
	require.NoError(t, s.RecordTrade(ctx, sampleTrade("c2", core.SideSell, "178", "-10.5")))

	total, err := s.TotalRealizedPnL(ctx)
	require.NoError(t, err)
	assert.True(t, total.Equal(decimal.RequireFromString("4.5")), "total %s", total)
}

func TestEmptyCycleReturnsNoTrades(t *testing.T) {
	s := newTestStore(t)

	trades, err := s.TradesByCycle(context.Background(), "missing")
	require.NoError(t, err)
	assert.Empty(t, trades)
}

func TestDecimalPrecisionSurvivesRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	trade := sampleTrade("c1", core.SideBuy, "199.123456789012345678", "0")
	require.NoError(t, s.RecordTrade(ctx, trade))

	trades, err := s.TradesByCycle(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.True(t, trades[0].Price.Equal(trade.Price))
}
