package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// DefaultCacheTTL is how long cached API responses stay fresh.
const DefaultCacheTTL = 24 * time.Hour

// ResponseCache stores raw API response bodies keyed by request. Entries older
// than the TTL are treated as misses.
type ResponseCache struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// NewResponseCache creates a response cache. A non-positive ttl selects
// DefaultCacheTTL.
func NewResponseCache(db *DB, ttl time.Duration) *ResponseCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &ResponseCache{db: db.Conn(), ttl: ttl, now: time.Now}
}

// Get returns the cached body for key if present and fresh.
func (c *ResponseCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var (
		body      []byte
		fetchedAt int64
	)
	err := c.db.QueryRowContext(ctx,
		"SELECT body, fetched_at FROM response_cache WHERE cache_key = ?", key,
	).Scan(&body, &fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cached response: %w", err)
	}
	if c.now().Sub(time.Unix(0, fetchedAt)) > c.ttl {
		return nil, false, nil
	}
	return body, true, nil
}

// Put stores body under key, replacing any previous entry.
func (c *ResponseCache) Put(ctx context.Context, key string, body []byte) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO response_cache (cache_key, body, fetched_at) VALUES (?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET body = excluded.body, fetched_at = excluded.fetched_at
	`, key, body, c.now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to cache response: %w", err)
	}
	return nil
}

// Purge deletes expired entries and returns how many were removed.
func (c *ResponseCache) Purge(ctx context.Context) (int64, error) {
	cutoff := c.now().Add(-c.ttl).UnixNano()
	res, err := c.db.ExecContext(ctx, "DELETE FROM response_cache WHERE fetched_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge response cache: %w", err)
	}
	return res.RowsAffected()
}

// Clear deletes every entry.
func (c *ResponseCache) Clear(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, "DELETE FROM response_cache"); err != nil {
		return fmt.Errorf("failed to clear response cache: %w", err)
	}
	return nil
}

// Len returns the number of stored entries, fresh or not.
func (c *ResponseCache) Len(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM response_cache").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count cached responses: %w", err)
	}
	return n, nil
}
