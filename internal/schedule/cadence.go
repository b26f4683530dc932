// Package schedule decides when the next background refresh should run and
// reconciles that decision with whatever run is already pending, replacing
// it only when the new time is meaningfully earlier.
package schedule

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/couchcryptid/severe-alert-service/internal/config"
	"github.com/couchcryptid/severe-alert-service/internal/domain"
	"github.com/couchcryptid/severe-alert-service/internal/observability"
)

// RiskState is the policy input for one cadence decision.
type RiskState struct {
	Tier        domain.RiskLevel
	MDNearby    bool
	WatchActive bool
	QuietHours  bool
	LowPower    bool
}

// PendingRun describes a run already submitted to the scheduling layer.
// Immediate runs (no earliest-begin time) are never replaced.
type PendingRun struct {
	At        time.Time
	Immediate bool
}

// Runner is the OS-level scheduling boundary: at most one pending run.
type Runner interface {
	Pending() (PendingRun, bool)
	Submit(at time.Time) error
	Cancel()
}

// Interval selects the refresh interval for a risk state from the table and
// returns the rationale for the audit log. Threat pressure shortens the
// interval; quiet hours floor it; low power stretches whatever was chosen.
func Interval(t config.CadenceTable, s RiskState) (time.Duration, string) {
	var (
		d   time.Duration
		why string
	)
	switch {
	case s.MDNearby:
		d, why = t.MDNearby, "mesoscale discussion nearby"
	case s.WatchActive || s.Tier >= domain.RiskModerate:
		d, why = t.High, "high risk"
	case s.Tier >= domain.RiskSlight:
		d, why = t.Elevated, "elevated risk"
	default:
		d, why = t.Normal, "baseline"
	}
	if s.QuietHours && t.Quiet > d {
		d, why = t.Quiet, "quiet hours"
	}
	if s.LowPower {
		d = time.Duration(float64(d) * t.LowPower)
		why += ", low power"
	}
	return d, why
}

// Scheduler reconciles desired run times against the pending run.
type Scheduler struct {
	runner  Runner
	table   config.CadenceTable
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewScheduler creates a scheduler over the given runner and interval table.
func NewScheduler(runner Runner, table config.CadenceTable, logger *slog.Logger, metrics *observability.Metrics) *Scheduler {
	return &Scheduler{runner: runner, table: table, logger: logger, metrics: metrics}
}

// EnsureScheduled computes the desired next-run time for state and
// reconciles it with the pending run. Returns the effective next-run time
// and the cadence rationale for the audit snapshot.
//
// Replacement happens only when the desired time beats the pending one by
// more than the minimum advance; minor recomputation noise never thrashes
// the scheduling layer. If resubmission fails the previous pending time is
// restored so a run is never lost.
func (s *Scheduler) EnsureScheduled(state RiskState, now time.Time) (time.Time, string, error) {
	interval, rationale := Interval(s.table, state)
	desired := now.Add(interval)

	pending, ok := s.runner.Pending()
	if !ok {
		if err := s.runner.Submit(desired); err != nil {
			return time.Time{}, rationale, fmt.Errorf("submit run: %w", err)
		}
		s.metrics.ScheduleDecisions.WithLabelValues("submit").Inc()
		s.logger.Debug("run scheduled", "at", desired, "rationale", rationale)
		return desired, rationale, nil
	}

	if pending.Immediate {
		// A run that wants to start now is about to fire; leave it alone.
		s.metrics.ScheduleDecisions.WithLabelValues("keep").Inc()
		return now, rationale, nil
	}

	if !desired.Add(s.table.MinimumAdvance).Before(pending.At) {
		s.metrics.ScheduleDecisions.WithLabelValues("keep").Inc()
		return pending.At, rationale, nil
	}

	s.runner.Cancel()
	if err := s.runner.Submit(desired); err != nil {
		s.logger.Error("replacement submit failed, restoring previous run", "error", err)
		if restoreErr := s.runner.Submit(pending.At); restoreErr != nil {
			return time.Time{}, rationale, fmt.Errorf("submit run: %w (restore also failed: %v)", err, restoreErr)
		}
		s.metrics.ScheduleDecisions.WithLabelValues("restore").Inc()
		return pending.At, rationale, nil
	}

	s.metrics.ScheduleDecisions.WithLabelValues("replace").Inc()
	s.logger.Debug("run replaced", "was", pending.At, "now", desired, "rationale", rationale)
	return desired, rationale, nil
}
