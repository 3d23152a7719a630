package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/trogers1052/form4-tracker/internal/aggregate"
	"github.com/trogers1052/form4-tracker/internal/cache"
	"github.com/trogers1052/form4-tracker/internal/edgar"
	"github.com/trogers1052/form4-tracker/internal/models"
	"github.com/trogers1052/form4-tracker/internal/syncer"
)

// Request bounds
const (
	DefaultCompanyCount = 30
	MaxCompanyCount     = 100
	DefaultMarketCount  = 50
	MaxMarketCount      = 200
	DefaultSummaryDays  = 30
	MaxDays             = 365
	DefaultHistoryLimit = 100
	MaxHistoryLimit     = 1000
)

// CompanyQuery selects one company's insider activity
type CompanyQuery struct {
	Ticker      string
	Count       int
	Days        int
	HidePlanned bool
	Range       *aggregate.DateRange
	Refresh     bool
}

// MarketQuery selects market-wide insider activity grouped by company
type MarketQuery struct {
	Count       int
	Days        int
	HidePlanned bool
	Range       *aggregate.DateRange
	MinAmount   *decimal.Decimal
	MaxAmount   *decimal.Decimal
	MinBuy      *decimal.Decimal
	MinSell     *decimal.Decimal
	SortBy      aggregate.SortBy
	Refresh     bool
}

// Form4Service answers company, market and history queries
type Form4Service struct {
	engine TransactionSource
	lookup TickerLookup
	repo   TransactionRepository
	cache  CacheInvalidator
	now    func() time.Time
}

// NewForm4Service creates a new Form4Service. repo and invalidator may be nil, in
// which case History and InvalidateCache are unavailable.
func NewForm4Service(engine TransactionSource, lookup TickerLookup, repo TransactionRepository, invalidator CacheInvalidator) *Form4Service {
	return &Form4Service{
		engine: engine,
		lookup: lookup,
		repo:   repo,
		cache:  invalidator,
		now:    time.Now,
	}
}

// Lookup resolves a ticker to its CIK and company name
func (s *Form4Service) Lookup(ctx context.Context, ticker string) (edgar.TickerInfo, error) {
	return s.lookup.LookupTicker(ctx, ticker)
}

// Company returns a company's recent transactions, grouped by insider, with
// the company-level summary
func (s *Form4Service) Company(ctx context.Context, q CompanyQuery) (*models.Form4Response, error) {
	if q.Count == 0 {
		q.Count = DefaultCompanyCount
	}
	if err := validateCount(q.Count, MaxCompanyCount); err != nil {
		return nil, err
	}
	if err := validateDays(q.Days); err != nil {
		return nil, err
	}

	info, err := s.lookup.LookupTicker(ctx, q.Ticker)
	if err != nil {
		return nil, err
	}

	result, err := s.engine.GetTransactions(ctx, syncer.Request{
		Subject:     info.Ticker,
		WindowDays:  s.windowDays(q.Days, q.Range),
		Target:      q.Count,
		HidePlanned: q.HidePlanned,
		Force:       q.Refresh,
	})
	if err != nil {
		return nil, err
	}

	transactions := inRange(result.Transactions, q.Range)
	insiders := aggregate.Group(transactions, aggregate.Options{
		GroupBy:     aggregate.GroupByInsider,
		HidePlanned: q.HidePlanned,
		SortBy:      aggregate.SortByLatest,
	})

	updated := s.lastUpdated(result)
	summary := s.summarize(info, transactions, q.HidePlanned, periodDays(q.Days, q.Range), updated)

	return &models.Form4Response{
		Ticker:       info.Ticker,
		CompanyName:  summary.CompanyName,
		CIK:          info.CIK,
		Transactions: transactions,
		Insiders:     insiders,
		Summary:      summary,
		SyncMode:     result.Mode,
		CacheHit:     result.Mode == syncer.ModeCache,
		LastUpdated:  updated,
	}, nil
}

// Summary returns a company's aggregate insider activity over the last days
func (s *Form4Service) Summary(ctx context.Context, ticker string, days int) (*models.Form4Summary, error) {
	if days == 0 {
		days = DefaultSummaryDays
	}
	if err := validateDays(days); err != nil {
		return nil, err
	}

	info, err := s.lookup.LookupTicker(ctx, ticker)
	if err != nil {
		return nil, err
	}

	result, err := s.engine.GetTransactions(ctx, syncer.Request{Subject: info.Ticker, WindowDays: days})
	if err != nil {
		return nil, err
	}

	summary := s.summarize(info, result.Transactions, false, days, s.lastUpdated(result))
	return &summary, nil
}

// Market returns market-wide insider activity grouped by company. Count limits
// the companies shown after the amount filters, not the insiders fetched.
func (s *Form4Service) Market(ctx context.Context, q MarketQuery) (*models.MarketForm4Response, error) {
	if q.Count == 0 {
		q.Count = DefaultMarketCount
	}
	if err := validateCount(q.Count, MaxMarketCount); err != nil {
		return nil, err
	}
	if err := validateDays(q.Days); err != nil {
		return nil, err
	}

	opts := aggregate.Options{
		GroupBy:     aggregate.GroupByTicker,
		HidePlanned: q.HidePlanned,
		MinAmount:   q.MinAmount,
		MaxAmount:   q.MaxAmount,
		MinBuy:      q.MinBuy,
		MinSell:     q.MinSell,
		DateRange:   q.Range,
		SortBy:      q.SortBy,
		Limit:       q.Count,
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	result, err := s.engine.GetTransactions(ctx, syncer.Request{
		Subject:     models.MarketSubject,
		WindowDays:  s.windowDays(q.Days, q.Range),
		Target:      q.Count,
		AllInsiders: true,
		HidePlanned: q.HidePlanned,
		Force:       q.Refresh,
	})
	if err != nil {
		return nil, err
	}

	companies := aggregate.Group(result.Transactions, opts)
	resp := &models.MarketForm4Response{
		Companies:      companies,
		TotalCompanies: len(companies),
		SyncMode:       result.Mode,
		LastUpdated:    s.lastUpdated(result),
		FiltersApplied: marketFilters(q),
	}
	for _, c := range companies {
		resp.TotalTransactions += c.TotalCount
		switch {
		case c.Trend.IsBullish():
			resp.BuyingCompanies++
		case c.Trend.IsBearish():
			resp.SellingCompanies++
		}
	}
	return resp, nil
}

// History returns transactions persisted by completed sync jobs
func (s *Form4Service) History(ctx context.Context, ticker string, days, limit int) ([]models.TransactionRecord, error) {
	if s.repo == nil {
		return nil, ErrNoHistory
	}
	if limit == 0 {
		limit = DefaultHistoryLimit
	}
	if err := validateCount(limit, MaxHistoryLimit); err != nil {
		return nil, err
	}
	if err := validateDays(days); err != nil {
		return nil, err
	}

	info, err := s.lookup.LookupTicker(ctx, ticker)
	if err != nil {
		return nil, err
	}

	var since models.Date
	if days > 0 {
		since = models.DateOf(s.now()).AddDays(-days)
	}
	records, err := s.repo.GetTransactionsByTicker(info.Ticker, since, limit)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []models.TransactionRecord{}
	}
	return records, nil
}

// Refresh drops a subject's cache entry and rebuilds it with a full sync
func (s *Form4Service) Refresh(ctx context.Context, subject string, days int) (*syncer.Result, error) {
	subject, err := s.resolveSubject(ctx, subject)
	if err != nil {
		return nil, err
	}
	return s.engine.Refresh(ctx, syncer.Request{
		Subject:     subject,
		WindowDays:  days,
		AllInsiders: subject == models.MarketSubject,
	})
}

// InvalidateCache drops a subject's cache entry so the next request syncs
func (s *Form4Service) InvalidateCache(ctx context.Context, subject string) error {
	if s.cache == nil {
		return fmt.Errorf("no cache configured")
	}
	subject, err := s.resolveSubject(ctx, subject)
	if err != nil {
		return err
	}
	return s.cache.Delete(ctx, cache.Key(subject))
}

func (s *Form4Service) resolveSubject(ctx context.Context, subject string) (string, error) {
	if strings.EqualFold(subject, models.MarketSubject) || strings.EqualFold(subject, "market") {
		return models.MarketSubject, nil
	}
	info, err := s.lookup.LookupTicker(ctx, subject)
	if err != nil {
		return "", err
	}
	return info.Ticker, nil
}

func (s *Form4Service) summarize(info edgar.TickerInfo, transactions []models.TransactionRecord, hidePlanned bool, days int, updated time.Time) models.Form4Summary {
	totals := aggregate.Totals(transactions, hidePlanned)
	companyName := totals.CompanyName
	if companyName == "" {
		companyName = info.Title
	}
	return models.Form4Summary{
		Ticker:      info.Ticker,
		CompanyName: companyName,
		TotalBuys:   totals.BuyAmount,
		TotalSells:  totals.SellAmount,
		Net:         totals.NetAmount,
		BuyCount:    totals.BuyCount,
		SellCount:   totals.SellCount,
		Trend:       totals.Trend,
		PeriodDays:  days,
		LastUpdated: updated,
	}
}

func (s *Form4Service) lastUpdated(result *syncer.Result) time.Time {
	if result.CachedAt.IsZero() {
		return s.now()
	}
	return result.CachedAt
}

// windowDays picks the sync window: explicit days win, otherwise a date range
// needs a window reaching back to its start
func (s *Form4Service) windowDays(days int, r *aggregate.DateRange) int {
	if days > 0 || r == nil {
		return days
	}
	span := int(models.DateOf(s.now()).Sub(r.Start.Time).Hours()/24) + 1
	if span < 1 {
		span = 1
	}
	return span
}

func periodDays(days int, r *aggregate.DateRange) int {
	if r != nil {
		return r.Days()
	}
	return days
}

func inRange(records []models.TransactionRecord, r *aggregate.DateRange) []models.TransactionRecord {
	out := make([]models.TransactionRecord, 0, len(records))
	for _, t := range records {
		if r != nil && !r.Contains(t.TransactionDate) {
			continue
		}
		out = append(out, t)
	}
	return out
}

func marketFilters(q MarketQuery) map[string]interface{} {
	filters := map[string]interface{}{
		"count":        q.Count,
		"hide_planned": q.HidePlanned,
	}
	if q.Days > 0 {
		filters["days"] = q.Days
	}
	if q.Range != nil {
		filters["start_date"] = q.Range.Start.String()
		filters["end_date"] = q.Range.End.String()
	}
	for name, v := range map[string]*decimal.Decimal{
		"min_amount": q.MinAmount, "max_amount": q.MaxAmount, "min_buy": q.MinBuy, "min_sell": q.MinSell,
	} {
		if v != nil {
			filters[name] = v.String()
		}
	}
	if q.SortBy != "" {
		filters["sort"] = string(q.SortBy)
	}
	return filters
}

func validateCount(count, limit int) error {
	if count < 1 || count > limit {
		return fmt.Errorf("%w: count must be between 1 and %d", ErrInvalidInput, limit)
	}
	return nil
}

func validateDays(days int) error {
	if days < 0 || days > MaxDays {
		return fmt.Errorf("%w: days must be between 1 and %d", ErrInvalidInput, MaxDays)
	}
	return nil
}
