package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/trogers1052/form4-tracker/internal/cache"
)

// CacheBackend stores cache entries in the cache_entries table.
// It satisfies cache.Backend.
type CacheBackend struct {
	db *DB
}

// NewCacheBackend returns a cache backend over db
func NewCacheBackend(db *DB) *CacheBackend {
	return &CacheBackend{db: db}
}

// cacheEntryMeta is the subset of the payload mirrored into indexed columns
type cacheEntryMeta struct {
	CacheTimestamp time.Time `json:"cache_timestamp"`
	SyncWindowDays int       `json:"sync_window_days"`
}

// Get returns the stored payload for key
func (b *CacheBackend) Get(ctx context.Context, key string) ([]byte, error) {
	var payload []byte
	err := b.db.conn.QueryRowContext(ctx,
		`SELECT payload FROM cache_entries WHERE key = $1`, key,
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, cache.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cache entry %s: %w", key, err)
	}
	return payload, nil
}

// Put upserts the payload for key
func (b *CacheBackend) Put(ctx context.Context, key string, data []byte) error {
	var meta cacheEntryMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("cache entry %s is not valid JSON: %w", key, err)
	}
	if meta.CacheTimestamp.IsZero() {
		meta.CacheTimestamp = time.Now().UTC()
	}

	query := `
		INSERT INTO cache_entries (key, payload, cache_timestamp, sync_window_days, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (key) DO UPDATE SET
			payload = EXCLUDED.payload,
			cache_timestamp = EXCLUDED.cache_timestamp,
			sync_window_days = EXCLUDED.sync_window_days,
			updated_at = NOW()
	`
	if _, err := b.db.conn.ExecContext(ctx, query, key, data, meta.CacheTimestamp, meta.SyncWindowDays); err != nil {
		return fmt.Errorf("failed to put cache entry %s: %w", key, err)
	}
	return nil
}

// Delete removes key
func (b *CacheBackend) Delete(ctx context.Context, key string) error {
	result, err := b.db.conn.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = $1`, key)
	if err != nil {
		return fmt.Errorf("failed to delete cache entry %s: %w", key, err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return cache.ErrNotFound
	}
	return nil
}
