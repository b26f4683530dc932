package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/robfig/cron/v3"

	httpadapter "github.com/couchcryptid/severe-alert-service/internal/adapter/http"
	"github.com/couchcryptid/severe-alert-service/internal/adapter/mapbox"
	"github.com/couchcryptid/severe-alert-service/internal/adapter/spc"
	"github.com/couchcryptid/severe-alert-service/internal/adapter/telegram"
	"github.com/couchcryptid/severe-alert-service/internal/config"
	"github.com/couchcryptid/severe-alert-service/internal/domain"
	"github.com/couchcryptid/severe-alert-service/internal/ingest"
	"github.com/couchcryptid/severe-alert-service/internal/location"
	"github.com/couchcryptid/severe-alert-service/internal/notify"
	"github.com/couchcryptid/severe-alert-service/internal/observability"
	"github.com/couchcryptid/severe-alert-service/internal/schedule"
	"github.com/couchcryptid/severe-alert-service/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()
	clk := clockwork.NewRealClock()

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Error("failed to load timezone", "error", err)
		os.Exit(1)
	}

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	repos, err := openRepos(db)
	if err != nil {
		logger.Error("failed to initialize repositories", "error", err)
		os.Exit(1)
	}
	feedCache := store.NewFeedCache(db)
	stamps := store.NewStampRepo(db)
	runLog := store.NewRunLog(db)

	// Initialize geocoder (feature-flagged via MAPBOX_ENABLED / MAPBOX_TOKEN).
	var labeler mapbox.Labeler
	if cfg.MapboxEnabled {
		client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, logger)
		labeler = mapbox.NewCachedLabeler(client, cfg.MapboxCacheSize)
		logger.Info("mapbox labeling enabled", "cache_size", cfg.MapboxCacheSize, "timeout", cfg.MapboxTimeout)
	} else {
		logger.Info("mapbox labeling disabled")
	}

	var sender notify.Sender
	if cfg.TelegramToken != "" {
		tg, err := telegram.NewSender(cfg.TelegramToken, cfg.TelegramChatID, logger)
		if err != nil {
			logger.Error("failed to initialize telegram sender", "error", err)
			os.Exit(1)
		}
		sender = tg
		logger.Info("telegram delivery enabled", "chat_id", cfg.TelegramChatID)
	} else {
		sender = &notify.LogSender{Logger: logger}
		logger.Info("telegram delivery disabled, logging notifications")
	}

	fetcher := spc.NewClient(cfg.FetchTimeout, cfg.FetchPerMinute, cfg.MaxBodyBytes, logger)
	broadcaster := ingest.NewBroadcaster()
	orchestrator := ingest.New(fetcher, feedCache, repos, ingest.FeedURLs{
		Outlook:          cfg.OutlookFeedURL,
		Meso:             cfg.MesoFeedURL,
		Watch:            cfg.WatchFeedURL,
		ThreatURLPattern: cfg.ThreatURLPattern,
		StormRisk:        cfg.StormRiskURL,
	}, broadcaster, time.Duration(cfg.RetentionDays)*24*time.Hour, clk, logger, metrics)

	driver := notify.NewDriver(notify.NewStampGate(stamps, clk), sender, logger, metrics)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tracker := &location.Tracker{}
	go tracker.Run(ctx, location.StaticSource{
		Coordinate: domain.Coordinate{Lat: cfg.HomeLat, Lon: cfg.HomeLon},
		Clock:      clk,
	})

	a := &app{
		cfg:          cfg,
		loc:          loc,
		clock:        clk,
		orchestrator: orchestrator,
		repos:        repos,
		driver:       driver,
		runLog:       runLog,
		tracker:      tracker,
		labeler:      labeler,
		logger:       logger,
		metrics:      metrics,
	}

	runner := schedule.NewTimerRunner(clk, func() { a.runCycle(ctx) })
	a.scheduler = schedule.NewScheduler(runner, cfg.Cadence, logger, metrics)

	// Morning outlook evaluation at a fixed local time, independent of the
	// cadence timer.
	checkHour, checkMinute, _ := cfg.MorningCheckTime()
	morningCron := cron.New(cron.WithLocation(loc))
	if _, err := morningCron.AddFunc(fmt.Sprintf("%d %d * * *", checkMinute, checkHour), func() {
		a.runCycle(ctx)
	}); err != nil {
		logger.Error("failed to schedule morning check", "error", err)
		os.Exit(1)
	}
	morningCron.Start()

	go logFreshness(ctx, broadcaster, logger)

	srv := httpadapter.NewServer(cfg.HTTPAddr, orchestrator, runLog, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// First cycle immediately; the scheduler takes over from there.
	go a.runCycle(ctx)

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	<-morningCron.Stop().Done()
	runner.Cancel()

	logger.Info("shutdown complete")
}

func openRepos(db *store.DB) (ingest.Repos, error) {
	var (
		r   ingest.Repos
		err error
	)
	if r.Outlook, err = store.NewRiskRepo(db, domain.FamilyOutlook); err != nil {
		return r, err
	}
	if r.Meso, err = store.NewRiskRepo(db, domain.FamilyMeso); err != nil {
		return r, err
	}
	if r.Watch, err = store.NewRiskRepo(db, domain.FamilyWatch); err != nil {
		return r, err
	}
	if r.Threat, err = store.NewRiskRepo(db, domain.FamilyThreat); err != nil {
		return r, err
	}
	if r.Storm, err = store.NewRiskRepo(db, domain.FamilyStorm); err != nil {
		return r, err
	}
	return r, nil
}

func logFreshness(ctx context.Context, b *ingest.Broadcaster, logger *slog.Logger) {
	ch, cancel := b.Subscribe()
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-ch:
			if !ok {
				return
			}
			logger.Debug("feed freshness updated", "family", f.Family, "key", f.Key, "issued", f.Issued)
		}
	}
}
