// Package aggregate groups transactions by ticker or by insider and derives
// totals, trend and planned share for each group.
package aggregate

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/trogers1052/form4-tracker/internal/format"
	"github.com/trogers1052/form4-tracker/internal/models"
)

// ErrInvalidFilter marks malformed filter input
var ErrInvalidFilter = errors.New("invalid filter")

// GroupBy selects the grouping key
type GroupBy string

// Grouping keys
const (
	GroupByTicker  GroupBy = "ticker"
	GroupByInsider GroupBy = "insider"
)

// SortBy selects the output ordering
type SortBy string

// Orderings
const (
	SortByLatest SortBy = "latest"
	SortByCount  SortBy = "count"
	SortByNet    SortBy = "net"
)

// Options controls filtering, grouping and ordering
type Options struct {
	GroupBy     GroupBy
	HidePlanned bool
	MinAmount   *decimal.Decimal
	MinBuy      *decimal.Decimal
	MinSell     *decimal.Decimal
	MaxAmount   *decimal.Decimal
	DateRange   *DateRange
	SortBy      SortBy
	Limit       int
}

// Validate rejects options that can never match sensibly
func (o Options) Validate() error {
	switch o.GroupBy {
	case "", GroupByTicker, GroupByInsider:
	default:
		return fmt.Errorf("%w: unknown group_by %q", ErrInvalidFilter, o.GroupBy)
	}
	switch o.SortBy {
	case "", SortByLatest, SortByCount, SortByNet:
	default:
		return fmt.Errorf("%w: unknown sort %q", ErrInvalidFilter, o.SortBy)
	}
	for name, v := range map[string]*decimal.Decimal{
		"min_amount": o.MinAmount, "min_buy": o.MinBuy, "min_sell": o.MinSell, "max_amount": o.MaxAmount,
	} {
		if v != nil && v.IsNegative() {
			return fmt.Errorf("%w: %s must not be negative", ErrInvalidFilter, name)
		}
	}
	if o.DateRange != nil && o.DateRange.End.Before(o.DateRange.Start) {
		return fmt.Errorf("%w: date range ends before it starts", ErrInvalidFilter)
	}
	if o.Limit < 0 {
		return fmt.Errorf("%w: limit must not be negative", ErrInvalidFilter)
	}
	return nil
}

type group struct {
	summary models.AggregatedSummary
	roles   map[string]struct{}
}

// Group partitions transactions and summarises each partition. Thresholds are
// applied to the group totals, never to individual rows.
func Group(transactions []models.TransactionRecord, opts Options) []models.AggregatedSummary {
	groupBy := opts.GroupBy
	if groupBy == "" {
		groupBy = GroupByTicker
	}

	groups := make(map[string]*group)
	var order []string
	for _, t := range transactions {
		if opts.DateRange != nil && !opts.DateRange.Contains(t.TransactionDate) {
			continue
		}
		if opts.HidePlanned && t.IsPlanned {
			continue
		}

		key := t.Ticker
		if groupBy == GroupByInsider {
			key = t.InsiderKey()
		}

		g, ok := groups[key]
		if !ok {
			g = &group{
				summary: models.AggregatedSummary{Subject: key},
				roles:   make(map[string]struct{}),
			}
			groups[key] = g
			order = append(order, key)
		}
		g.add(t, groupBy)
	}

	result := make([]models.AggregatedSummary, 0, len(groups))
	for _, key := range order {
		s := groups[key].finish()
		if !passes(s, opts) {
			continue
		}
		result = append(result, s)
	}

	sortSummaries(result, opts.SortBy)
	if opts.Limit > 0 && len(result) > opts.Limit {
		result = result[:opts.Limit]
	}
	return result
}

func (g *group) add(t models.TransactionRecord, groupBy GroupBy) {
	s := &g.summary
	s.Ticker = t.Ticker
	if t.CompanyName != "" {
		s.CompanyName = t.CompanyName
	}
	if groupBy == GroupByInsider {
		s.OwnerName = t.OwnerName
		s.Role = t.Role
	}

	s.TotalCount++
	if t.IsPlanned {
		s.PlannedCount++
	}

	if t.IsBuy() {
		s.BuyCount++
		s.BuyAmount = s.BuyAmount.Add(t.Amount)
		s.BuyShares = s.BuyShares.Add(t.Shares)
	} else {
		s.SellCount++
		s.SellAmount = s.SellAmount.Add(t.Amount)
		s.SellShares = s.SellShares.Add(t.Shares)
	}

	if s.LatestDate.IsZero() || t.TransactionDate.After(s.LatestDate) {
		s.LatestDate = t.TransactionDate
	}
	if s.EarliestDate.IsZero() || t.TransactionDate.Before(s.EarliestDate) {
		s.EarliestDate = t.TransactionDate
	}

	g.roles[format.AbbreviateRole(t.Role)] = struct{}{}
}

func (g *group) finish() models.AggregatedSummary {
	s := g.summary
	s.NetAmount = s.BuyAmount.Sub(s.SellAmount)
	s.NetShares = s.BuyShares.Sub(s.SellShares)
	s.Trend = DeriveTrend(s.BuyCount, s.SellCount, s.NetAmount)
	s.IsMostlyPlanned = s.PlannedCount*2 > s.TotalCount

	s.Roles = make([]string, 0, len(g.roles))
	for r := range g.roles {
		s.Roles = append(s.Roles, r)
	}
	sort.Strings(s.Roles)
	return s
}

// DeriveTrend labels pure-direction groups first and falls back to the sign of net
func DeriveTrend(buyCount, sellCount int, net decimal.Decimal) models.Trend {
	switch {
	case buyCount > 0 && sellCount == 0:
		return models.TrendBuying
	case sellCount > 0 && buyCount == 0:
		return models.TrendSelling
	case net.IsPositive():
		return models.TrendNetBuy
	case net.IsNegative():
		return models.TrendNetSell
	default:
		return models.TrendNeutral
	}
}

func passes(s models.AggregatedSummary, opts Options) bool {
	absNet := s.NetAmount.Abs()
	if opts.MinAmount != nil && absNet.LessThan(*opts.MinAmount) {
		return false
	}
	if opts.MaxAmount != nil && absNet.GreaterThan(*opts.MaxAmount) {
		return false
	}
	if opts.MinBuy != nil && s.BuyAmount.LessThan(*opts.MinBuy) {
		return false
	}
	if opts.MinSell != nil && s.SellAmount.LessThan(*opts.MinSell) {
		return false
	}
	return true
}

func sortSummaries(summaries []models.AggregatedSummary, by SortBy) {
	sort.SliceStable(summaries, func(i, j int) bool {
		a, b := summaries[i], summaries[j]
		switch by {
		case SortByCount:
			if a.TotalCount != b.TotalCount {
				return a.TotalCount > b.TotalCount
			}
		case SortByNet:
			if c := a.NetAmount.Abs().Cmp(b.NetAmount.Abs()); c != 0 {
				return c > 0
			}
		}
		if !a.LatestDate.Equal(b.LatestDate) {
			return a.LatestDate.After(b.LatestDate)
		}
		return a.Subject < b.Subject
	})
}

// Totals summarises an entire transaction set as one group, for company summaries
func Totals(transactions []models.TransactionRecord, hidePlanned bool) models.AggregatedSummary {
	g := &group{roles: make(map[string]struct{})}
	for _, t := range transactions {
		if hidePlanned && t.IsPlanned {
			continue
		}
		g.add(t, GroupByTicker)
	}
	s := g.finish()
	s.Subject = s.Ticker
	return s
}
