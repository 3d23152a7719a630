// Package syncer decides, per request, whether cached transactions can be
// served as-is, topped up with a delta fetch, or must be rebuilt from a full
// fetch against the filing source.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/trogers1052/form4-tracker/internal/cache"
	"github.com/trogers1052/form4-tracker/internal/models"
)

// ErrSyncFailed is returned when the source is unreachable and no cache exists
var ErrSyncFailed = errors.New("sync failed")

// Sync modes reported on every Result
const (
	ModeCache = "cache"
	ModeDelta = "delta"
	ModeFull  = "full"
	ModeStale = "stale"
)

// Source lists and parses Form 4 filings
type Source interface {
	ListRecentFilingRefs(ctx context.Context, subject string, window models.FilingWindow) ([]models.FilingRef, error)
	ParseFiling(ctx context.Context, ref models.FilingRef) ([]models.TransactionRecord, error)
}

// Config tunes the engine
type Config struct {
	Workers       int
	Buffer        int
	DefaultTarget int
}

// DefaultConfig returns the engine defaults
func DefaultConfig() Config {
	return Config{Workers: 4, Buffer: 30, DefaultTarget: 30}
}

// Request describes what a caller wants served. Target is the number of
// distinct insiders to serve and sizes the filing window. AllInsiders keeps
// every insider in that window, for callers that group and filter afterwards.
type Request struct {
	Subject     string
	WindowDays  int
	Target      int
	AllInsiders bool
	HidePlanned bool
	Force       bool
}

// Result is the served transaction set plus how it was obtained
type Result struct {
	Transactions  []models.TransactionRecord
	Mode          string
	NewCount      int
	FailedFilings int
	CachedAt      time.Time
}

// Engine is the incremental sync engine
type Engine struct {
	source Source
	store  *cache.Store
	locks  *cache.KeyedMutex
	cfg    Config
	today  func() models.Date
}

// NewEngine creates a new Engine
func NewEngine(source Source, store *cache.Store, cfg Config) *Engine {
	defaults := DefaultConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = defaults.Workers
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = defaults.Buffer
	}
	if cfg.DefaultTarget <= 0 {
		cfg.DefaultTarget = defaults.DefaultTarget
	}
	return &Engine{
		source: source,
		store:  store,
		locks:  cache.NewKeyedMutex(),
		cfg:    cfg,
		today:  models.Today,
	}
}

// Refresh drops the cached entry for subject and rebuilds it with a full fetch
func (e *Engine) Refresh(ctx context.Context, req Request) (*Result, error) {
	key := cache.Key(req.Subject)
	unlock := e.locks.Lock(key)
	if err := e.store.Delete(ctx, key); err != nil {
		unlock()
		return nil, err
	}
	unlock()

	req.Force = true
	return e.GetTransactions(ctx, req)
}

// GetTransactions serves a subject's transactions, syncing with the source as
// needed. At most one sync per subject runs at a time.
func (e *Engine) GetTransactions(ctx context.Context, req Request) (*Result, error) {
	key := cache.Key(req.Subject)
	unlock := e.locks.Lock(key)
	defer unlock()

	entry, err := e.store.Load(ctx, key)
	if err != nil {
		log.Printf("Cache load for %s failed, continuing without cache: %v", key, err)
		entry = nil
	}

	target := e.target(req)
	if !req.Force && e.store.IsEntryValid(entry, req.WindowDays, target, false) {
		return e.serve(entry.Transactions, req, ModeCache, 0, 0, entry.CacheTimestamp), nil
	}

	if !req.Force && e.store.IsEntryValid(entry, req.WindowDays, target, true) {
		return e.delta(ctx, key, entry, req)
	}

	return e.full(ctx, key, entry, req)
}

// delta fetches only filings newer than the newest one already cached
func (e *Engine) delta(ctx context.Context, key string, entry *models.CacheEntry, req Request) (*Result, error) {
	window := models.FilingWindow{Limit: e.fetchLimit(req), Since: entry.LatestFilingDate()}
	refs, err := e.source.ListRecentFilingRefs(ctx, req.Subject, window)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Printf("Delta probe for %s failed, serving cached data: %v", key, err)
		return e.serve(entry.Transactions, req, ModeStale, 0, 0, entry.CacheTimestamp), nil
	}

	known := entry.Accessions()
	var fresh []models.FilingRef
	for _, ref := range refs {
		if _, ok := known[ref.AccessionNumber]; !ok {
			fresh = append(fresh, ref)
		}
	}

	records, _, failed := e.fetch(ctx, fresh, 0, false)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	merged, added := cache.MergeByAccession(entry.Transactions, records)
	cachedAt := entry.CacheTimestamp
	if added > 0 || failed == 0 {
		if err := e.store.Save(ctx, key, merged, req.WindowDays, entry.Target); err != nil {
			log.Printf("Failed to save cache for %s: %v", key, err)
		} else {
			cachedAt = time.Now().UTC()
		}
	}

	if len(fresh) > 0 {
		log.Printf("Delta sync for %s: %d new filings, %d new transactions, %d failed", key, len(fresh), added, failed)
	}
	return e.serve(merged, req, ModeDelta, added, failed, cachedAt), nil
}

// full rebuilds the entry from the newest filings, over-fetching and stopping
// once enough distinct insiders have been seen unless AllInsiders is set.
func (e *Engine) full(ctx context.Context, key string, stale *models.CacheEntry, req Request) (*Result, error) {
	window := models.FilingWindow{Limit: e.fetchLimit(req)}
	if req.WindowDays > 0 {
		window.Since = e.today().AddDays(-req.WindowDays)
	}

	refs, err := e.source.ListRecentFilingRefs(ctx, req.Subject, window)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if stale != nil {
			log.Printf("Listing filings for %s failed, serving stale cache: %v", key, err)
			return e.serve(stale.Transactions, req, ModeStale, 0, 0, stale.CacheTimestamp), nil
		}
		return nil, fmt.Errorf("%w for %s: %w", ErrSyncFailed, key, err)
	}

	stopAfter := e.target(req)
	if req.AllInsiders {
		stopAfter = 0
	}
	records, attempted, failed := e.fetch(ctx, refs, stopAfter, req.HidePlanned)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	if attempted > 0 && failed == attempted {
		log.Printf("All %d filings for %s failed to parse", attempted, key)
		if stale != nil {
			return e.serve(stale.Transactions, req, ModeStale, 0, failed, stale.CacheTimestamp), nil
		}
		return &Result{Transactions: []models.TransactionRecord{}, Mode: ModeFull, FailedFilings: failed}, nil
	}

	records, _ = cache.MergeByAccession(nil, records)
	cachedAt := time.Now().UTC()
	if err := e.store.Save(ctx, key, records, req.WindowDays, e.target(req)); err != nil {
		log.Printf("Failed to save cache for %s: %v", key, err)
	}

	log.Printf("Full sync for %s: %d filings, %d transactions, %d failed", key, attempted, len(records), failed)
	return e.serve(records, req, ModeFull, len(records), failed, cachedAt), nil
}

func (e *Engine) target(req Request) int {
	if req.Target > 0 {
		return req.Target
	}
	return e.cfg.DefaultTarget
}

// fetchLimit is max(target*3, buffer)
func (e *Engine) fetchLimit(req Request) int {
	limit := e.target(req) * 3
	if limit < e.cfg.Buffer {
		limit = e.cfg.Buffer
	}
	return limit
}

// serve applies the request's window, planned and insider-count filters
func (e *Engine) serve(records []models.TransactionRecord, req Request, mode string, added, failed int, cachedAt time.Time) *Result {
	var cutoff models.Date
	if req.WindowDays > 0 {
		cutoff = e.today().AddDays(-req.WindowDays)
	}

	target := e.target(req)
	selected := make(map[string]struct{})
	out := make([]models.TransactionRecord, 0, len(records))
	for _, r := range records {
		if !cutoff.IsZero() && r.TransactionDate.Before(cutoff) {
			continue
		}
		if req.HidePlanned && r.IsPlanned {
			continue
		}
		k := r.InsiderKey()
		if _, ok := selected[k]; !ok && !req.AllInsiders {
			if len(selected) >= target {
				continue
			}
			selected[k] = struct{}{}
		}
		out = append(out, r)
	}

	return &Result{
		Transactions:  out,
		Mode:          mode,
		NewCount:      added,
		FailedFilings: failed,
		CachedAt:      cachedAt,
	}
}
