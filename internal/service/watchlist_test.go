package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/trogers1052/form4-tracker/internal/database"
	"github.com/trogers1052/form4-tracker/internal/edgar"
	"github.com/trogers1052/form4-tracker/internal/models"
	"github.com/trogers1052/form4-tracker/internal/syncer"
)

func newTestWatchlistService() (*WatchlistService, *MockRepository, *MockEngine) {
	repo := NewMockRepository()
	engine := NewMockEngine()
	svc := NewWatchlistService(repo, NewMockLookup(), engine)
	svc.now = func() time.Time { return testNow }
	return svc, repo, engine
}

func TestWatchlistService_AddListRemove(t *testing.T) {
	svc, _, _ := newTestWatchlistService()
	ctx := context.Background()

	item, err := svc.Add(ctx, "user-1", "msft")
	require.NoError(t, err)
	assert.Equal(t, "MSFT", item.Ticker)
	assert.Equal(t, "0000789019", item.CIK)
	assert.Equal(t, "MICROSOFT CORP", item.CompanyName)

	_, err = svc.Add(ctx, "user-1", "AAPL")
	require.NoError(t, err)

	items, err := svc.List(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "AAPL", items[0].Ticker)
	assert.Equal(t, "MSFT", items[1].Ticker)

	require.NoError(t, svc.Remove(ctx, "user-1", "msft"))
	items, err = svc.List(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, items, 1)

	t.Run("unknown ticker is rejected", func(t *testing.T) {
		_, err := svc.Add(ctx, "user-1", "ZZZZ")
		assert.ErrorIs(t, err, edgar.ErrUnknownTicker)
	})

	t.Run("removing a missing ticker", func(t *testing.T) {
		assert.ErrorIs(t, svc.Remove(ctx, "user-1", "NVDA"), database.ErrNotFound)
	})

	t.Run("empty watchlist is an empty slice", func(t *testing.T) {
		items, err := svc.List(ctx, "user-2")
		require.NoError(t, err)
		assert.NotNil(t, items)
		assert.Empty(t, items)
	})
}

func TestWatchlistService_Activity(t *testing.T) {
	svc, _, engine := newTestWatchlistService()
	ctx := context.Background()
	for _, ticker := range []string{"AAPL", "MSFT", "NVDA"} {
		_, err := svc.Add(ctx, "user-1", ticker)
		require.NoError(t, err)
	}

	engine.SetResult("AAPL", syncer.ModeCache,
		createTestTransaction("0001", 1, "AAPL", "Alice", models.TransactionTypeBuy, 10, 100, models.NewDate(2024, 5, 8)),
	)
	engine.SetResult("MSFT", syncer.ModeCache)
	engine.SetError("NVDA", syncer.ErrSyncFailed)

	activity, err := svc.Activity(ctx, "user-1", 14)
	require.NoError(t, err)

	assert.Equal(t, 14, activity.Days)
	assert.Equal(t, testNow, activity.LastUpdated)
	assert.Equal(t, []string{"NVDA"}, activity.Failed)
	require.Len(t, activity.Companies, 2)

	aapl := activity.Companies[0]
	assert.Equal(t, "AAPL", aapl.Subject)
	assert.Equal(t, models.TrendBuying, aapl.Trend)
	assert.True(t, aapl.BuyAmount.Equal(decimal.NewFromInt(1000)))
	assert.Equal(t, 14, aapl.PeriodDays)

	msft := activity.Companies[1]
	assert.Equal(t, "MSFT", msft.Subject)
	assert.Equal(t, "MICROSOFT CORP", msft.CompanyName)
	assert.Equal(t, models.TrendNeutral, msft.Trend)
	assert.Equal(t, 0, msft.TotalCount)

	for _, req := range engine.Requests {
		assert.Equal(t, 14, req.WindowDays)
	}

	t.Run("invalid days", func(t *testing.T) {
		_, err := svc.Activity(ctx, "user-1", 1000)
		assert.ErrorIs(t, err, ErrInvalidInput)
	})
}
