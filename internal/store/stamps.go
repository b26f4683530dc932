package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"
)

// StampRepo persists the per-kind notification dedup stamps consulted by the
// pipeline gate. One row per notification kind.
type StampRepo struct {
	db *DB
	mu sync.Mutex
}

// NewStampRepo creates the stamp repository.
func NewStampRepo(db *DB) *StampRepo {
	return &StampRepo{db: db}
}

// Get returns the stored dedup key for kind, or "" when none exists.
func (s *StampRepo) Get(ctx context.Context, kind string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var key string
	err := s.db.conn.QueryRowContext(ctx,
		`SELECT dedup_key FROM notify_stamps WHERE kind = ?`, kind).Scan(&key)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("stamp get %s: %w", kind, err)
	}
	return key, nil
}

// Set records dedupKey as the last-sent stamp for kind. The gate persists
// the stamp before approving so a rapid re-invocation cannot double-send.
func (s *StampRepo) Set(ctx context.Context, kind, dedupKey string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.conn.ExecContext(ctx, `
	INSERT INTO notify_stamps (kind, dedup_key, stamped_at) VALUES (?, ?, ?)
	ON CONFLICT(kind) DO UPDATE SET
		dedup_key = excluded.dedup_key,
		stamped_at = excluded.stamped_at`,
		kind, dedupKey, at.Unix())
	if err != nil {
		return fmt.Errorf("stamp set %s: %w", kind, err)
	}
	return nil
}
