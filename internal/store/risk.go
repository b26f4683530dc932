package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/couchcryptid/severe-alert-service/internal/domain"
)

// purgeBatchSize bounds how many expired rows one purge transaction touches,
// keeping memory flat regardless of backlog size.
const purgeBatchSize = 50

// RiskRepo persists one record family. All operations are serialized by the
// repository's own lock, so upsert, purge, and query calls against the same
// family never interleave; different families proceed independently.
type RiskRepo struct {
	db     *DB
	family domain.Family
	table  string
	mu     sync.Mutex
}

// NewRiskRepo creates (and migrates) the repository for one record family.
func NewRiskRepo(db *DB, family domain.Family) (*RiskRepo, error) {
	table := "risk_" + string(family)
	if _, err := db.conn.Exec(fmt.Sprintf(riskTableSchema, table)); err != nil {
		return nil, fmt.Errorf("create %s: %w", table, err)
	}
	return &RiskRepo{db: db, family: family, table: table}, nil
}

// Family returns the record family this repository owns.
func (r *RiskRepo) Family() domain.Family { return r.family }

// Upsert inserts or replaces each record by identity key inside one
// transaction. On commit failure none of the batch is applied; the caller
// retries the whole batch on the next cycle.
func (r *RiskRepo) Upsert(ctx context.Context, records []domain.Record) error {
	if len(records) == 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("upsert %s: begin: %w", r.table, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	query := fmt.Sprintf(`
	INSERT INTO %s (key, issued, valid_start, valid_end, min_lat, min_lon, max_lat, max_lon, payload)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET
		issued = excluded.issued,
		valid_start = excluded.valid_start,
		valid_end = excluded.valid_end,
		min_lat = excluded.min_lat,
		min_lon = excluded.min_lon,
		max_lat = excluded.max_lat,
		max_lon = excluded.max_lon,
		payload = excluded.payload
	`, r.table)

	for _, rec := range records {
		payload, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("upsert %s: marshal %s: %w", r.table, rec.Key, err)
		}

		var minLat, minLon, maxLat, maxLon sql.NullFloat64
		if lo1, lo2, hi1, hi2, ok := rec.Bounds(); ok {
			minLat = sql.NullFloat64{Float64: lo1, Valid: true}
			minLon = sql.NullFloat64{Float64: lo2, Valid: true}
			maxLat = sql.NullFloat64{Float64: hi1, Valid: true}
			maxLon = sql.NullFloat64{Float64: hi2, Valid: true}
		}

		if _, err := tx.ExecContext(ctx, query,
			rec.Key,
			rec.Issued.Unix(),
			rec.ValidStart.Unix(),
			rec.ValidEnd.Unix(),
			minLat, minLon, maxLat, maxLon,
			string(payload),
		); err != nil {
			return fmt.Errorf("upsert %s: %s: %w", r.table, rec.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("upsert %s: commit: %w", r.table, err)
	}
	return nil
}

// Purge deletes records whose valid window ended strictly before cutoff
// (a record expiring exactly at the cutoff is retained). Rows are deleted
// in fixed-size batches, each in its own committed transaction, until none
// match. Returns the number of rows deleted.
func (r *RiskRepo) Purge(ctx context.Context, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	total := 0
	for {
		n, err := r.purgeBatch(ctx, cutoff)
		if err != nil {
			return total, err
		}
		total += n
		if n < purgeBatchSize {
			return total, nil
		}
	}
}

func (r *RiskRepo) purgeBatch(ctx context.Context, cutoff time.Time) (int, error) {
	tx, err := r.db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("purge %s: begin: %w", r.table, err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, fmt.Sprintf(`
	DELETE FROM %[1]s WHERE key IN (
		SELECT key FROM %[1]s WHERE valid_end < ? LIMIT ?
	)`, r.table), cutoff.Unix(), purgeBatchSize)
	if err != nil {
		return 0, fmt.Errorf("purge %s: %w", r.table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge %s: rows affected: %w", r.table, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("purge %s: commit: %w", r.table, err)
	}
	return int(n), nil
}

// Latest returns the most recently issued record, or ErrNotFound when the
// family has no rows.
func (r *RiskRepo) Latest(ctx context.Context) (domain.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var payload string
	err := r.db.conn.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT payload FROM %s ORDER BY issued DESC LIMIT 1`, r.table),
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return domain.Record{}, ErrNotFound
	}
	if err != nil {
		return domain.Record{}, fmt.Errorf("latest %s: %w", r.table, err)
	}
	return decodeRecord(payload)
}

// Active returns every record whose valid window contains at and whose
// polygon contains near. A coarse SQL prefilter on the stored bounding box
// and window discards most rows; rows without bounds are excluded outright
// (a record that never had a polygon cannot match). Survivors get the exact
// ray-cast containment test. Matches are returned unordered; priority among
// simultaneous hits is the caller's policy.
func (r *RiskRepo) Active(ctx context.Context, at time.Time, near domain.Coordinate) ([]domain.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows, err := r.db.conn.QueryContext(ctx, fmt.Sprintf(`
	SELECT payload FROM %s
	WHERE min_lat IS NOT NULL
	  AND min_lat <= ? AND max_lat >= ?
	  AND min_lon <= ? AND max_lon >= ?
	  AND valid_start <= ? AND valid_end >= ?`, r.table),
		near.Lat, near.Lat, near.Lon, near.Lon, at.Unix(), at.Unix())
	if err != nil {
		return nil, fmt.Errorf("active %s: %w", r.table, err)
	}
	defer rows.Close()

	var matches []domain.Record
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("active %s: scan: %w", r.table, err)
		}
		rec, err := decodeRecord(payload)
		if err != nil {
			return nil, err
		}
		if len(rec.Rings) == 0 {
			continue
		}
		if rec.Contains(near) {
			matches = append(matches, rec)
		}
	}
	return matches, rows.Err()
}

// Count returns the number of stored rows. Test and ops helper.
func (r *RiskRepo) Count(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int
	err := r.db.conn.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT COUNT(*) FROM %s`, r.table)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", r.table, err)
	}
	return n, nil
}

func decodeRecord(payload string) (domain.Record, error) {
	var rec domain.Record
	if err := json.Unmarshal([]byte(payload), &rec); err != nil {
		return domain.Record{}, fmt.Errorf("decode record: %w", err)
	}
	return rec, nil
}
