package service

import (
	"context"
	"log"
	"strings"
	"time"

	"github.com/trogers1052/form4-tracker/internal/aggregate"
	"github.com/trogers1052/form4-tracker/internal/models"
	"github.com/trogers1052/form4-tracker/internal/syncer"
	"golang.org/x/sync/errgroup"
)

// activityConcurrency bounds how many watchlist tickers sync at once
const activityConcurrency = 4

// WatchlistService manages user watchlists and their insider activity
type WatchlistService struct {
	repo   WatchlistRepository
	lookup TickerLookup
	engine TransactionSource
	now    func() time.Time
}

// NewWatchlistService creates a new WatchlistService
func NewWatchlistService(repo WatchlistRepository, lookup TickerLookup, engine TransactionSource) *WatchlistService {
	return &WatchlistService{
		repo:   repo,
		lookup: lookup,
		engine: engine,
		now:    time.Now,
	}
}

// List returns a user's watchlist
func (s *WatchlistService) List(_ context.Context, userID string) ([]*models.WatchlistItem, error) {
	items, err := s.repo.GetWatchlist(userID)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*models.WatchlistItem{}
	}
	return items, nil
}

// Add validates ticker against the issuer directory and adds it
func (s *WatchlistService) Add(ctx context.Context, userID, ticker string) (*models.WatchlistItem, error) {
	info, err := s.lookup.LookupTicker(ctx, ticker)
	if err != nil {
		return nil, err
	}

	item := &models.WatchlistItem{
		UserID:      userID,
		Ticker:      info.Ticker,
		CIK:         info.CIK,
		CompanyName: info.Title,
	}
	if err := s.repo.AddWatchlistItem(item); err != nil {
		return nil, err
	}
	return item, nil
}

// Remove drops ticker from a user's watchlist
func (s *WatchlistService) Remove(_ context.Context, userID, ticker string) error {
	return s.repo.RemoveWatchlistItem(userID, strings.ToUpper(strings.TrimSpace(ticker)))
}

// Activity summarises insider activity over the last days for every ticker on
// the watchlist. Tickers that fail to sync are reported, not fatal.
func (s *WatchlistService) Activity(ctx context.Context, userID string, days int) (*models.WatchlistActivity, error) {
	if days == 0 {
		days = DefaultSummaryDays
	}
	if err := validateDays(days); err != nil {
		return nil, err
	}

	items, err := s.repo.GetWatchlist(userID)
	if err != nil {
		return nil, err
	}

	summaries := make([]*models.AggregatedSummary, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(activityConcurrency)
	for i, item := range items {
		g.Go(func() error {
			result, err := s.engine.GetTransactions(gctx, syncer.Request{Subject: item.Ticker, WindowDays: days})
			if err != nil {
				log.Printf("Watchlist activity for %s failed: %v", item.Ticker, err)
				return nil
			}
			summary := aggregate.Totals(result.Transactions, false)
			summary.Subject = item.Ticker
			summary.Ticker = item.Ticker
			if summary.CompanyName == "" {
				summary.CompanyName = item.CompanyName
			}
			summary.PeriodDays = days
			summaries[i] = &summary
			return nil
		})
	}
	_ = g.Wait()

	activity := &models.WatchlistActivity{
		Days:        days,
		Companies:   []models.AggregatedSummary{},
		LastUpdated: s.now(),
	}
	for i, summary := range summaries {
		if summary == nil {
			activity.Failed = append(activity.Failed, items[i].Ticker)
			continue
		}
		activity.Companies = append(activity.Companies, *summary)
	}
	return activity, nil
}
