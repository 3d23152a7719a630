package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trend classifies the direction of a group's insider activity
type Trend string

// Trend constants
const (
	TrendBuying  Trend = "BUYING"
	TrendSelling Trend = "SELLING"
	TrendNetBuy  Trend = "NET_BUY"
	TrendNetSell Trend = "NET_SELL"
	TrendNeutral Trend = "NEUTRAL"
)

// IsBullish reports BUYING or NET_BUY
func (t Trend) IsBullish() bool {
	return t == TrendBuying || t == TrendNetBuy
}

// IsBearish reports SELLING or NET_SELL
func (t Trend) IsBearish() bool {
	return t == TrendSelling || t == TrendNetSell
}

// AggregatedSummary is one group of transactions, keyed by ticker or by insider.
// It is always recomputed and never persisted.
type AggregatedSummary struct {
	Subject         string          `json:"subject"`
	Ticker          string          `json:"ticker,omitempty"`
	CompanyName     string          `json:"company_name,omitempty"`
	OwnerName       string          `json:"owner_name,omitempty"`
	Role            string          `json:"role,omitempty"`
	BuyCount        int             `json:"buy_count"`
	SellCount       int             `json:"sell_count"`
	BuyAmount       decimal.Decimal `json:"total_buys"`
	SellAmount      decimal.Decimal `json:"total_sells"`
	NetAmount       decimal.Decimal `json:"net"`
	BuyShares       decimal.Decimal `json:"buy_shares"`
	SellShares      decimal.Decimal `json:"sell_shares"`
	NetShares       decimal.Decimal `json:"net_shares"`
	EarliestDate    Date            `json:"earliest_date"`
	LatestDate      Date            `json:"latest_date"`
	Trend           Trend           `json:"trend"`
	IsMostlyPlanned bool            `json:"is_mostly_planned"`
	PlannedCount    int             `json:"planned_count"`
	TotalCount      int             `json:"total_count"`
	Roles           []string        `json:"roles"`
	PeriodDays      int             `json:"period_days,omitempty"`
	LastUpdated     *time.Time      `json:"last_updated,omitempty"`
}

// Form4Summary is the aggregate insider activity of one company over a period
type Form4Summary struct {
	Ticker      string          `json:"ticker"`
	CompanyName string          `json:"company_name"`
	TotalBuys   decimal.Decimal `json:"total_buys"`
	TotalSells  decimal.Decimal `json:"total_sells"`
	Net         decimal.Decimal `json:"net"`
	BuyCount    int             `json:"buy_count"`
	SellCount   int             `json:"sell_count"`
	Trend       Trend           `json:"trend"`
	PeriodDays  int             `json:"period_days"`
	LastUpdated time.Time       `json:"last_updated"`
}

// Form4Response is the company endpoint payload
type Form4Response struct {
	Ticker       string              `json:"ticker"`
	CompanyName  string              `json:"company_name"`
	CIK          string              `json:"cik"`
	Transactions []TransactionRecord `json:"transactions"`
	Insiders     []AggregatedSummary `json:"insiders"`
	Summary      Form4Summary        `json:"summary"`
	SyncMode     string              `json:"sync_mode"`
	CacheHit     bool                `json:"cache_hit"`
	LastUpdated  time.Time           `json:"last_updated"`
}

// MarketForm4Response is the market-wide endpoint payload
type MarketForm4Response struct {
	Companies         []AggregatedSummary    `json:"companies"`
	TotalCompanies    int                    `json:"total_companies"`
	BuyingCompanies   int                    `json:"buying_companies"`
	SellingCompanies  int                    `json:"selling_companies"`
	TotalTransactions int                    `json:"total_transactions"`
	SyncMode          string                 `json:"sync_mode"`
	LastUpdated       time.Time              `json:"last_updated"`
	FiltersApplied    map[string]interface{} `json:"filters_applied"`
}
