package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"
)

// CacheEntry is the conditional-fetch state for one feed: validator tags for
// If-None-Match / If-Modified-Since, bookkeeping timestamps, and the last
// successfully fetched body.
type CacheEntry struct {
	FeedKey      string
	ETag         string
	LastModified string
	LastSuccess  time.Time
	NextPlanned  time.Time
	Body         []byte
}

// FeedCache persists one CacheEntry per feed key. Access is serialized per
// repository; reads observe the repository's own prior writes.
type FeedCache struct {
	db *DB
	mu sync.Mutex
}

// NewFeedCache creates the feed cache repository.
func NewFeedCache(db *DB) *FeedCache {
	return &FeedCache{db: db}
}

// Get returns the entry for feedKey, or ErrNotFound.
func (c *FeedCache) Get(ctx context.Context, feedKey string) (CacheEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var (
		entry                    CacheEntry
		lastSuccess, nextPlanned sql.NullInt64
	)
	err := c.db.conn.QueryRowContext(ctx, `
	SELECT feed_key, etag, last_modified, last_success, next_planned, body
	FROM feed_cache WHERE feed_key = ?`, feedKey,
	).Scan(&entry.FeedKey, &entry.ETag, &entry.LastModified, &lastSuccess, &nextPlanned, &entry.Body)
	if err == sql.ErrNoRows {
		return CacheEntry{}, ErrNotFound
	}
	if err != nil {
		return CacheEntry{}, fmt.Errorf("feed cache get %s: %w", feedKey, err)
	}
	if lastSuccess.Valid {
		entry.LastSuccess = time.Unix(lastSuccess.Int64, 0).UTC()
	}
	if nextPlanned.Valid {
		entry.NextPlanned = time.Unix(nextPlanned.Int64, 0).UTC()
	}
	return entry, nil
}

// Put upserts the entry. Called after every fetch attempt regardless of
// whether content changed.
func (c *FeedCache) Put(ctx context.Context, entry CacheEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var lastSuccess, nextPlanned sql.NullInt64
	if !entry.LastSuccess.IsZero() {
		lastSuccess = sql.NullInt64{Int64: entry.LastSuccess.Unix(), Valid: true}
	}
	if !entry.NextPlanned.IsZero() {
		nextPlanned = sql.NullInt64{Int64: entry.NextPlanned.Unix(), Valid: true}
	}

	_, err := c.db.conn.ExecContext(ctx, `
	INSERT INTO feed_cache (feed_key, etag, last_modified, last_success, next_planned, body)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(feed_key) DO UPDATE SET
		etag = excluded.etag,
		last_modified = excluded.last_modified,
		last_success = excluded.last_success,
		next_planned = excluded.next_planned,
		body = excluded.body`,
		entry.FeedKey, entry.ETag, entry.LastModified, lastSuccess, nextPlanned, entry.Body)
	if err != nil {
		return fmt.Errorf("feed cache put %s: %w", entry.FeedKey, err)
	}
	return nil
}
