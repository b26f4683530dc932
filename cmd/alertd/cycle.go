package main

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/severe-alert-service/internal/adapter/mapbox"
	"github.com/couchcryptid/severe-alert-service/internal/config"
	"github.com/couchcryptid/severe-alert-service/internal/domain"
	"github.com/couchcryptid/severe-alert-service/internal/ingest"
	"github.com/couchcryptid/severe-alert-service/internal/location"
	"github.com/couchcryptid/severe-alert-service/internal/notify"
	"github.com/couchcryptid/severe-alert-service/internal/observability"
	"github.com/couchcryptid/severe-alert-service/internal/schedule"
	"github.com/couchcryptid/severe-alert-service/internal/store"
)

const runLogKeep = 200

// app ties one background cycle together: sync the feeds, evaluate the
// notification rules at the monitored point, reschedule, and record an
// audit snapshot.
type app struct {
	cfg          *config.Config
	loc          *time.Location
	clock        clockwork.Clock
	orchestrator *ingest.Orchestrator
	repos        ingest.Repos
	driver       *notify.Driver
	scheduler    *schedule.Scheduler
	runLog       *store.RunLog
	tracker      *location.Tracker
	labeler      mapbox.Labeler // nil when geocoding is disabled
	logger       *slog.Logger
	metrics      *observability.Metrics

	running atomic.Bool
}

// runCycle executes one full background cycle. Cycles never overlap; a
// trigger arriving while one is in flight is dropped; the running cycle
// will reschedule on its own.
func (a *app) runCycle(ctx context.Context) {
	if !a.running.CompareAndSwap(false, true) {
		a.logger.Debug("cycle already running, trigger dropped")
		return
	}
	defer a.running.Store(false)

	runID := uuid.NewString()
	started := a.clock.Now()
	a.logger.Info("cycle started", "run_id", runID)

	syncErr := a.orchestrator.Sync(ctx)
	if syncErr != nil {
		a.logger.Warn("sync completed with failures", "run_id", runID, "error", syncErr)
	}

	now := a.clock.Now()
	home := a.home()
	label := a.locationLabel(ctx, home)

	notified, reason := a.evaluate(ctx, now, home, label)

	state := a.riskState(ctx, now, home)
	next, rationale, schedErr := a.scheduler.EnsureScheduled(state, now)
	if schedErr != nil {
		a.logger.Error("scheduling failed", "run_id", runID, "error", schedErr)
	}

	outcome := "ok"
	if syncErr != nil || schedErr != nil {
		outcome = "partial"
	}
	ended := a.clock.Now()
	snap := store.RunSnapshot{
		RunID:            runID,
		StartedAt:        started,
		EndedAt:          ended,
		Outcome:          outcome,
		Notified:         notified,
		Reason:           reason,
		NextScheduled:    next,
		Cadence:          next.Sub(now),
		CadenceRationale: rationale,
		ActiveDuration:   ended.Sub(started),
	}
	if err := a.runLog.Append(ctx, snap); err != nil {
		a.logger.Error("run log append failed", "run_id", runID, "error", err)
	}
	if _, err := a.runLog.Prune(ctx, runLogKeep, now.Add(-a.retention())); err != nil {
		a.logger.Error("run log prune failed", "run_id", runID, "error", err)
	}

	a.logger.Info("cycle finished", "run_id", runID, "outcome", outcome,
		"notified", notified, "next_run", next, "rationale", rationale)
}

// evaluate runs the three notification rules against the current state.
// Watch first: it is the most urgent and ignores quiet hours.
func (a *app) evaluate(ctx context.Context, now time.Time, home domain.Coordinate, label string) (bool, string) {
	checkHour, checkMinute, _ := a.cfg.MorningCheckTime()

	latestWatch := a.latest(ctx, a.repos.Watch)
	activeMDs := a.active(ctx, a.repos.Meso, now, home)
	activeThreats := a.active(ctx, a.repos.Threat, now, home)
	activeStorm := a.active(ctx, a.repos.Storm, now, home)

	outlookSummary := ""
	if outlook := a.latest(ctx, a.repos.Outlook); outlook != nil {
		outlookSummary = outlook.Summary
	}

	rules := []notify.Rule{
		notify.WatchRule{Ctx: notify.WatchContext{
			Now:           now,
			LatestWatch:   latestWatch,
			LocationLabel: label,
		}},
		notify.MesoRule{Ctx: notify.MesoContext{
			Now:            now,
			Location:       a.loc,
			QuietStartHour: a.cfg.QuietStartHour,
			QuietEndHour:   a.cfg.QuietEndHour,
			ActiveMDs:      activeMDs,
			ActiveThreats:  activeThreats,
			LocationLabel:  label,
		}},
		notify.MorningOutlookRule{Ctx: notify.MorningContext{
			Now:            now,
			Location:       a.loc,
			CheckHour:      checkHour,
			CheckMinute:    checkMinute,
			QuietStartHour: a.cfg.QuietStartHour,
			QuietEndHour:   a.cfg.QuietEndHour,
			TodayRisk:      maxRisk(activeStorm),
			OutlookSummary: outlookSummary,
			LocationLabel:  label,
		}},
	}

	notified := false
	var reasons []string
	for _, rule := range rules {
		sent, reason, err := a.driver.Process(ctx, rule)
		if err != nil {
			a.logger.Error("notification pipeline error", "kind", rule.Kind(), "error", err)
		}
		if sent {
			notified = true
			reasons = append(reasons, string(rule.Kind()))
		} else if reason != "" {
			a.logger.Debug("notification withheld", "kind", rule.Kind(), "reason", reason)
		}
	}
	if !notified {
		return false, "no notification warranted"
	}
	return true, "sent: " + strings.Join(reasons, ", ")
}

// riskState summarizes the stored risk picture at the monitored point for
// the cadence decision.
func (a *app) riskState(ctx context.Context, now time.Time, home domain.Coordinate) schedule.RiskState {
	activeStorm := a.active(ctx, a.repos.Storm, now, home)
	activeMDs := a.active(ctx, a.repos.Meso, now, home)

	watchActive := false
	if w := a.latest(ctx, a.repos.Watch); w != nil && w.ActiveAt(now) {
		watchActive = true
	}

	return schedule.RiskState{
		Tier:        maxRisk(activeStorm),
		MDNearby:    len(activeMDs) > 0,
		WatchActive: watchActive,
		QuietHours:  notify.QuietHours(now.In(a.loc), a.cfg.QuietStartHour, a.cfg.QuietEndHour),
		LowPower:    a.cfg.LowPowerMode,
	}
}

// home returns the monitored coordinate, preferring a live location fix
// over the configured one.
func (a *app) home() domain.Coordinate {
	if snap, ok := a.tracker.Latest(); ok {
		return snap.Coordinate
	}
	return domain.Coordinate{Lat: a.cfg.HomeLat, Lon: a.cfg.HomeLon}
}

func (a *app) locationLabel(ctx context.Context, home domain.Coordinate) string {
	if a.cfg.LocationLabel != "" {
		return a.cfg.LocationLabel
	}
	if a.labeler == nil {
		return ""
	}
	label, err := a.labeler.Label(ctx, home.Lat, home.Lon)
	if err != nil {
		a.logger.Warn("reverse geocoding failed", "error", err)
		return ""
	}
	return label
}

func (a *app) latest(ctx context.Context, repo *store.RiskRepo) *domain.Record {
	rec, err := repo.Latest(ctx)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			a.logger.Error("latest query failed", "family", repo.Family(), "error", err)
		}
		return nil
	}
	return &rec
}

func (a *app) active(ctx context.Context, repo *store.RiskRepo, at time.Time, near domain.Coordinate) []domain.Record {
	start := a.clock.Now()
	recs, err := repo.Active(ctx, at, near)
	a.metrics.ActiveQueryDuration.Observe(a.clock.Since(start).Seconds())
	if err != nil {
		a.logger.Error("active query failed", "family", repo.Family(), "error", err)
		return nil
	}
	return recs
}

func (a *app) retention() time.Duration {
	return time.Duration(a.cfg.RetentionDays) * 24 * time.Hour
}

func maxRisk(records []domain.Record) domain.RiskLevel {
	top := domain.RiskNone
	for _, rec := range records {
		if rec.Risk > top {
			top = rec.Risk
		}
	}
	return top
}
