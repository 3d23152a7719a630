package models

import (
	"sort"
	"time"
)

// Freshness thresholds for cache entries
const (
	CacheMaxAge        = 24 * time.Hour
	CacheLenientMaxAge = 7 * 24 * time.Hour
)

// CacheEntry is the persisted snapshot of a subject's known transactions.
// Target is the insider count the building sync was sized for; the entry
// cannot answer requests for more.
type CacheEntry struct {
	Key            string              `json:"key"`
	CacheTimestamp time.Time           `json:"cache_timestamp"`
	SyncWindowDays int                 `json:"sync_window_days"`
	Target         int                 `json:"target"`
	Transactions   []TransactionRecord `json:"transactions"`
}

// Covers reports whether the entry was built for at least target insiders
func (e *CacheEntry) Covers(target int) bool {
	return target <= e.Target
}

// Age returns how long ago the snapshot was captured
func (e *CacheEntry) Age(now time.Time) time.Duration {
	return now.Sub(e.CacheTimestamp)
}

// Accessions returns the set of accession numbers present in the entry
func (e *CacheEntry) Accessions() map[string]struct{} {
	set := make(map[string]struct{}, len(e.Transactions))
	for _, t := range e.Transactions {
		set[t.AccessionNumber] = struct{}{}
	}
	return set
}

// LatestFilingDate returns the most recent filing date in the entry
func (e *CacheEntry) LatestFilingDate() Date {
	var latest Date
	for _, t := range e.Transactions {
		if t.FilingDate.After(latest) {
			latest = t.FilingDate
		}
	}
	return latest
}

// SortTransactions orders records by transaction date descending. Ties keep
// accession order descending so the result is deterministic.
func SortTransactions(records []TransactionRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if !a.TransactionDate.Equal(b.TransactionDate) {
			return a.TransactionDate.After(b.TransactionDate)
		}
		if a.AccessionNumber != b.AccessionNumber {
			return a.AccessionNumber > b.AccessionNumber
		}
		return a.Line < b.Line
	})
}
