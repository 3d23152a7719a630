// Package cache persists each subject's known Form 4 transactions together with
// the time and lookback window of the sync that produced them.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/trogers1052/form4-tracker/internal/models"
)

// ErrNotFound is returned by a Backend when a key has no value
var ErrNotFound = errors.New("cache entry not found")

// Backend is any key-value store with atomic get and put of a JSON blob
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
}

// Store implements load, save and validity checks on top of a Backend
type Store struct {
	backend       Backend
	maxAge        time.Duration
	lenientMaxAge time.Duration
	now           func() time.Time
}

// Option customises a Store
type Option func(*Store)

// WithMaxAge overrides the strict and lenient freshness thresholds
func WithMaxAge(strict, lenient time.Duration) Option {
	return func(s *Store) {
		if strict > 0 {
			s.maxAge = strict
		}
		if lenient > 0 {
			s.lenientMaxAge = lenient
		}
	}
}

// WithClock overrides the time source, for tests
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates a Store over backend
func NewStore(backend Backend, opts ...Option) *Store {
	s := &Store{
		backend:       backend,
		maxAge:        models.CacheMaxAge,
		lenientMaxAge: models.CacheLenientMaxAge,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Key normalises a subject into its cache key
func Key(subject string) string {
	if subject == models.MarketSubject {
		return subject
	}
	return strings.ToUpper(strings.TrimSpace(subject))
}

// Load returns the entry for key, or nil when there is none. A payload that
// cannot be decoded is logged and reported as a miss.
func (s *Store) Load(ctx context.Context, key string) (*models.CacheEntry, error) {
	key = Key(key)
	data, err := s.backend.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load cache entry %s: %w", key, err)
	}

	var entry models.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		log.Printf("Cache entry %s is corrupt, treating as miss: %v", key, err)
		return nil, nil
	}
	if entry.CacheTimestamp.IsZero() {
		log.Printf("Cache entry %s has no timestamp, treating as miss", key)
		return nil, nil
	}
	entry.Key = key
	for i := range entry.Transactions {
		entry.Transactions[i].Normalize()
	}
	return &entry, nil
}

// Save replaces the entry for key with exactly the given transactions and a
// fresh timestamp. Duplicate (accession, line) pairs in the input are collapsed.
func (s *Store) Save(ctx context.Context, key string, transactions []models.TransactionRecord, windowDays, target int) error {
	key = Key(key)
	entry := models.CacheEntry{
		Key:            key,
		CacheTimestamp: s.now().UTC(),
		SyncWindowDays: windowDays,
		Target:         target,
		Transactions:   dedupe(transactions),
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry %s: %w", key, err)
	}
	if err := s.backend.Put(ctx, key, data); err != nil {
		return fmt.Errorf("failed to save cache entry %s: %w", key, err)
	}
	return nil
}

// Delete removes the entry for key
func (s *Store) Delete(ctx context.Context, key string) error {
	key = Key(key)
	if err := s.backend.Delete(ctx, key); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("failed to delete cache entry %s: %w", key, err)
	}
	return nil
}

// IsValid reports whether the entry for key can answer a query for target
// insiders over windowDays. lenient widens the freshness threshold for the
// "anything new" probe.
func (s *Store) IsValid(ctx context.Context, key string, windowDays, target int, lenient bool) bool {
	entry, err := s.Load(ctx, key)
	if err != nil {
		log.Printf("Cache validity check for %s failed: %v", key, err)
		return false
	}
	return s.IsEntryValid(entry, windowDays, target, lenient)
}

// IsEntryValid applies the validity rules to an already loaded entry
func (s *Store) IsEntryValid(entry *models.CacheEntry, windowDays, target int, lenient bool) bool {
	if entry == nil {
		return false
	}
	if entry.SyncWindowDays != windowDays || !entry.Covers(target) {
		return false
	}
	maxAge := s.maxAge
	if lenient {
		maxAge = s.lenientMaxAge
	}
	return entry.Age(s.now()) <= maxAge
}

// MergeByAccession adds incoming records whose accession number is not already
// present and returns the merged set sorted by transaction date descending.
// Existing records win on conflict, so merging the same batch twice is a no-op.
func MergeByAccession(existing, incoming []models.TransactionRecord) ([]models.TransactionRecord, int) {
	known := make(map[string]struct{}, len(existing))
	for _, r := range existing {
		known[r.AccessionNumber] = struct{}{}
	}

	merged := make([]models.TransactionRecord, 0, len(existing)+len(incoming))
	merged = append(merged, existing...)
	added := 0
	for _, r := range incoming {
		if _, ok := known[r.AccessionNumber]; ok {
			continue
		}
		merged = append(merged, r)
		added++
	}

	merged = dedupe(merged)
	models.SortTransactions(merged)
	return merged, added
}

func dedupe(records []models.TransactionRecord) []models.TransactionRecord {
	type lineKey struct {
		accession string
		line      int
	}
	seen := make(map[lineKey]struct{}, len(records))
	out := make([]models.TransactionRecord, 0, len(records))
	for _, r := range records {
		k := lineKey{r.AccessionNumber, r.Line}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	return out
}
