package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"
)

// RunSnapshot is one append-only audit entry for a background run.
type RunSnapshot struct {
	RunID            string
	StartedAt        time.Time
	EndedAt          time.Time
	Outcome          string
	Notified         bool
	Reason           string
	NextScheduled    time.Time
	Cadence          time.Duration
	CadenceRationale string
	ActiveDuration   time.Duration
}

// RunLog stores background run snapshots and prunes old ones.
type RunLog struct {
	db *DB
	mu sync.Mutex
}

// NewRunLog creates the run log repository.
func NewRunLog(db *DB) *RunLog {
	return &RunLog{db: db}
}

// Append writes one snapshot. Snapshots are never updated.
func (l *RunLog) Append(ctx context.Context, snap RunSnapshot) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var ended, next sql.NullInt64
	if !snap.EndedAt.IsZero() {
		ended = sql.NullInt64{Int64: snap.EndedAt.Unix(), Valid: true}
	}
	if !snap.NextScheduled.IsZero() {
		next = sql.NullInt64{Int64: snap.NextScheduled.Unix(), Valid: true}
	}

	_, err := l.db.conn.ExecContext(ctx, `
	INSERT INTO run_log (run_id, started_at, ended_at, outcome, notified, reason,
		next_scheduled, cadence_seconds, cadence_rationale, active_ms)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.RunID, snap.StartedAt.Unix(), ended, snap.Outcome,
		snap.Notified, snap.Reason, next,
		int64(snap.Cadence.Seconds()), snap.CadenceRationale,
		snap.ActiveDuration.Milliseconds())
	if err != nil {
		return fmt.Errorf("run log append %s: %w", snap.RunID, err)
	}
	return nil
}

// Prune keeps the keep most-recent snapshots and deletes anything older than
// both that count and the retention window.
func (l *RunLog) Prune(ctx context.Context, keep int, olderThan time.Time) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	res, err := l.db.conn.ExecContext(ctx, `
	DELETE FROM run_log
	WHERE started_at < ?
	  AND run_id NOT IN (
		SELECT run_id FROM run_log ORDER BY started_at DESC LIMIT ?
	  )`, olderThan.Unix(), keep)
	if err != nil {
		return 0, fmt.Errorf("run log prune: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("run log prune: rows affected: %w", err)
	}
	return int(n), nil
}

// Recent returns up to limit snapshots, newest first. Ops helper.
func (l *RunLog) Recent(ctx context.Context, limit int) ([]RunSnapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rows, err := l.db.conn.QueryContext(ctx, `
	SELECT run_id, started_at, ended_at, outcome, notified, reason,
		next_scheduled, cadence_seconds, cadence_rationale, active_ms
	FROM run_log ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("run log recent: %w", err)
	}
	defer rows.Close()

	var snaps []RunSnapshot
	for rows.Next() {
		var (
			snap           RunSnapshot
			started        int64
			ended, next    sql.NullInt64
			cadenceSeconds int64
			activeMS       int64
		)
		if err := rows.Scan(&snap.RunID, &started, &ended, &snap.Outcome,
			&snap.Notified, &snap.Reason, &next, &cadenceSeconds,
			&snap.CadenceRationale, &activeMS); err != nil {
			return nil, fmt.Errorf("run log recent: scan: %w", err)
		}
		snap.StartedAt = time.Unix(started, 0).UTC()
		if ended.Valid {
			snap.EndedAt = time.Unix(ended.Int64, 0).UTC()
		}
		if next.Valid {
			snap.NextScheduled = time.Unix(next.Int64, 0).UTC()
		}
		snap.Cadence = time.Duration(cadenceSeconds) * time.Second
		snap.ActiveDuration = time.Duration(activeMS) * time.Millisecond
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}
