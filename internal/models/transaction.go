package models

import (
	"strings"

	"github.com/shopspring/decimal"
)

// TransactionType is the direction of an insider trade
type TransactionType string

// Transaction type constants
const (
	TransactionTypeBuy  TransactionType = "buy"
	TransactionTypeSell TransactionType = "sell"
)

// MarketSubject is the cache and sync key for market-wide activity
const MarketSubject = "__market__"

// TransactionRecord is one parsed Form 4 line item
type TransactionRecord struct {
	AccessionNumber string          `json:"accession_number"`
	Line            int             `json:"line"`
	Ticker          string          `json:"ticker"`
	CompanyName     string          `json:"company_name"`
	OwnerName       string          `json:"owner_name"`
	Role            string          `json:"role"`
	TransactionType TransactionType `json:"transaction_type"`
	IsPlanned       bool            `json:"is_planned"`
	PlannedReason   string          `json:"planned_reason,omitempty"`
	Shares          decimal.Decimal `json:"shares"`
	Price           decimal.Decimal `json:"price"`
	Amount          decimal.Decimal `json:"amount"`
	TransactionDate Date            `json:"date"`
	FilingDate      Date            `json:"filing_date"`
}

// NewTransactionRecord builds a record and derives its amount from shares and price.
// Negative inputs are clamped to zero.
func NewTransactionRecord(accession string, txType TransactionType, shares, price decimal.Decimal) TransactionRecord {
	r := TransactionRecord{
		AccessionNumber: accession,
		TransactionType: txType,
		Shares:          nonNegative(shares),
		Price:           nonNegative(price),
	}
	r.Amount = r.Shares.Mul(r.Price)
	return r
}

// Normalize recomputes Amount from Shares and Price. Amounts read from any
// external source are never trusted.
func (r *TransactionRecord) Normalize() {
	r.Shares = nonNegative(r.Shares)
	r.Price = nonNegative(r.Price)
	r.Amount = r.Shares.Mul(r.Price)
	r.Ticker = strings.ToUpper(strings.TrimSpace(r.Ticker))
}

// IsEmpty reports a record that carries no economic content
func (r TransactionRecord) IsEmpty() bool {
	return r.Shares.IsZero() && r.Amount.IsZero()
}

// IsBuy reports whether the record is a buy
func (r TransactionRecord) IsBuy() bool {
	return r.TransactionType == TransactionTypeBuy
}

// InsiderKey identifies an insider as owner name plus role
func (r TransactionRecord) InsiderKey() string {
	return r.OwnerName + "|" + r.Role
}

// FilingRef points at one Form 4 filing on EDGAR
type FilingRef struct {
	URL             string `json:"url"`
	AccessionNumber string `json:"accession_number"`
	FilingDate      Date   `json:"filing_date"`
	Ticker          string `json:"ticker,omitempty"`
	CompanyName     string `json:"company_name,omitempty"`
	CIK             string `json:"cik,omitempty"`
}

// FilingWindow bounds a filing listing. A zero Since means no lower bound.
type FilingWindow struct {
	Limit int
	Since Date
}

// Classification is the outcome of planned-trade detection
type Classification struct {
	Planned    bool    `json:"planned"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason,omitempty"`
}

func nonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
