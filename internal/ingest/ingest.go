// Package ingest orchestrates one sync cycle: fetch each feed with
// conditional-request validators, parse, normalize, upsert, purge, and
// publish freshness. A failure on one feed never aborts the others.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/severe-alert-service/internal/adapter/spc"
	"github.com/couchcryptid/severe-alert-service/internal/domain"
	"github.com/couchcryptid/severe-alert-service/internal/feed"
	"github.com/couchcryptid/severe-alert-service/internal/observability"
	"github.com/couchcryptid/severe-alert-service/internal/store"
)

// Fetcher retrieves raw feed bytes with conditional-request validators.
type Fetcher interface {
	Fetch(ctx context.Context, url, etag, lastModified string) (spc.Result, error)
}

// FeedURLs names the five SPC endpoints one cycle touches.
type FeedURLs struct {
	Outlook          string
	Meso             string
	Watch            string
	ThreatURLPattern string // %s is the layer: torn, wind, hail
	StormRisk        string
}

// Repos is the per-family repository set the orchestrator writes to.
type Repos struct {
	Outlook *store.RiskRepo
	Meso    *store.RiskRepo
	Watch   *store.RiskRepo
	Threat  *store.RiskRepo
	Storm   *store.RiskRepo
}

// Orchestrator runs sync cycles. Text products (outlook, MD, watch) complete
// before shape products are attempted; there is no ordering requirement
// beyond that.
type Orchestrator struct {
	fetcher   Fetcher
	cache     *store.FeedCache
	repos     Repos
	urls      FeedURLs
	broadcast *Broadcaster
	retention time.Duration
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   *observability.Metrics
	ready     atomic.Bool
}

// New creates an orchestrator. retention bounds how long expired records
// stay before purge.
func New(fetcher Fetcher, cache *store.FeedCache, repos Repos, urls FeedURLs,
	broadcast *Broadcaster, retention time.Duration, clock clockwork.Clock,
	logger *slog.Logger, metrics *observability.Metrics) *Orchestrator {
	return &Orchestrator{
		fetcher:   fetcher,
		cache:     cache,
		repos:     repos,
		urls:      urls,
		broadcast: broadcast,
		retention: retention,
		clock:     clock,
		logger:    logger,
		metrics:   metrics,
	}
}

// CheckReadiness returns nil once at least one sync cycle has completed.
func (o *Orchestrator) CheckReadiness(_ context.Context) error {
	if !o.ready.Load() {
		return errors.New("no sync cycle has completed yet")
	}
	return nil
}

// Sync runs one full ingestion cycle. Per-family failures are logged and
// counted but only reported in aggregate; the cycle always runs to the end.
func (o *Orchestrator) Sync(ctx context.Context) error {
	start := o.clock.Now()
	o.metrics.SyncRunning.Set(1)
	defer o.metrics.SyncRunning.Set(0)

	failed := 0

	// Text products first, concurrently among themselves.
	var wg sync.WaitGroup
	var mu sync.Mutex
	textFeeds := []struct {
		key       string
		url       string
		repo      *store.RiskRepo
		normalize func(feed.Item) *domain.Record
	}{
		{"outlook", o.urls.Outlook, o.repos.Outlook, domain.NormalizeOutlook},
		{"meso", o.urls.Meso, o.repos.Meso, domain.NormalizeMeso},
		{"watch", o.urls.Watch, o.repos.Watch, domain.NormalizeWatch},
	}
	for _, tf := range textFeeds {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := o.syncTextFeed(ctx, tf.key, tf.url, tf.repo, tf.normalize); err != nil {
				o.logger.Error("feed sync failed", "feed", tf.key, "error", err)
				mu.Lock()
				failed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	// Then shape products.
	for _, layer := range []domain.ThreatType{domain.ThreatTornado, domain.ThreatWind, domain.ThreatHail} {
		url := fmt.Sprintf(o.urls.ThreatURLPattern, layer)
		if err := o.syncThreatFeed(ctx, string(layer), url, layer); err != nil {
			o.logger.Error("feed sync failed", "feed", layer, "error", err)
			failed++
		}
	}
	if err := o.syncStormRiskFeed(ctx, "storm_risk", o.urls.StormRisk); err != nil {
		o.logger.Error("feed sync failed", "feed", "storm_risk", "error", err)
		failed++
	}

	o.purgeAll(ctx)
	o.publishFreshness(ctx)

	o.metrics.SyncDuration.Observe(o.clock.Since(start).Seconds())
	o.ready.Store(true)

	if failed > 0 {
		return fmt.Errorf("sync: %d feed(s) failed", failed)
	}
	return nil
}

// syncTextFeed runs the fetch-parse-normalize-upsert path for one RSS feed.
func (o *Orchestrator) syncTextFeed(ctx context.Context, feedKey, url string,
	repo *store.RiskRepo, normalize func(feed.Item) *domain.Record) error {

	body, entry, fresh, err := o.fetchBody(ctx, feedKey, url)
	if err != nil {
		return err
	}
	if !fresh {
		// Server validated the cached representation; nothing to re-parse.
		return nil
	}

	ch, err := feed.ParseRSS(feedKey, body)
	if err != nil {
		o.metrics.ParseErrors.WithLabelValues(feedKey).Inc()
		// Leave the cache untouched: the previous body and validators
		// stay current, so the next cycle retries against the broken
		// representation instead of validating it away with a 304.
		return err
	}

	records := make([]domain.Record, 0, len(ch.Items))
	for _, item := range ch.Items {
		if rec := normalize(item); rec != nil {
			records = append(records, *rec)
		}
	}

	if err := repo.Upsert(ctx, records); err != nil {
		return err
	}
	o.metrics.RecordsUpserted.WithLabelValues(string(repo.Family())).Add(float64(len(records)))

	return o.storeSuccess(ctx, entry, body)
}

// syncThreatFeed ingests one severe-threat probability layer.
func (o *Orchestrator) syncThreatFeed(ctx context.Context, feedKey, url string, layer domain.ThreatType) error {
	body, entry, fresh, err := o.fetchBody(ctx, feedKey, url)
	if err != nil {
		return err
	}
	if !fresh {
		return nil
	}

	fc, err := feed.DecodeGeoJSON(feedKey, body)
	if err != nil {
		o.metrics.ParseErrors.WithLabelValues(feedKey).Inc()
		o.logger.Warn("shape decode failed, treating feed as empty", "feed", feedKey, "error", err)
		fc = feed.FeatureCollection{Product: feedKey}
	}

	records := domain.NormalizeThreats(layer, fc)
	if err := o.repos.Threat.Upsert(ctx, records); err != nil {
		return err
	}
	o.metrics.RecordsUpserted.WithLabelValues(string(domain.FamilyThreat)).Add(float64(len(records)))

	return o.storeSuccess(ctx, entry, body)
}

// syncStormRiskFeed ingests the categorical storm-risk contours.
func (o *Orchestrator) syncStormRiskFeed(ctx context.Context, feedKey, url string) error {
	body, entry, fresh, err := o.fetchBody(ctx, feedKey, url)
	if err != nil {
		return err
	}
	if !fresh {
		return nil
	}

	fc, err := feed.DecodeGeoJSON(feedKey, body)
	if err != nil {
		o.metrics.ParseErrors.WithLabelValues(feedKey).Inc()
		o.logger.Warn("shape decode failed, treating feed as empty", "feed", feedKey, "error", err)
		fc = feed.FeatureCollection{Product: feedKey}
	}

	records := domain.NormalizeStormRisk(fc)
	if err := o.repos.Storm.Upsert(ctx, records); err != nil {
		return err
	}
	o.metrics.RecordsUpserted.WithLabelValues(string(domain.FamilyStorm)).Add(float64(len(records)))

	return o.storeSuccess(ctx, entry, body)
}

// fetchBody reads the cache entry, performs the conditional fetch, and
// reports whether a fresh body needs parsing. On a 304 the cache entry's
// last-success time is refreshed and the cached body left alone.
func (o *Orchestrator) fetchBody(ctx context.Context, feedKey, url string) ([]byte, store.CacheEntry, bool, error) {
	entry, err := o.cache.Get(ctx, feedKey)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, store.CacheEntry{}, false, err
	}
	entry.FeedKey = feedKey

	res, err := o.fetcher.Fetch(ctx, url, entry.ETag, entry.LastModified)
	if err != nil {
		o.metrics.FetchRequests.WithLabelValues(feedKey, "error").Inc()
		return nil, entry, false, err
	}

	if res.NotModified {
		o.metrics.FetchRequests.WithLabelValues(feedKey, "not_modified").Inc()
		entry.LastSuccess = o.clock.Now().UTC()
		if err := o.cache.Put(ctx, entry); err != nil {
			o.logger.Warn("feed cache update failed", "feed", feedKey, "error", err)
		}
		return nil, entry, false, nil
	}

	o.metrics.FetchRequests.WithLabelValues(feedKey, "ok").Inc()
	if res.ETag != "" {
		entry.ETag = res.ETag
	}
	if res.LastModified != "" {
		entry.LastModified = res.LastModified
	}
	return res.Body, entry, true, nil
}

// storeSuccess records a successful parse cycle in the feed cache.
func (o *Orchestrator) storeSuccess(ctx context.Context, entry store.CacheEntry, body []byte) error {
	entry.Body = body
	entry.LastSuccess = o.clock.Now().UTC()
	if err := o.cache.Put(ctx, entry); err != nil {
		return fmt.Errorf("feed cache: %w", err)
	}
	return nil
}

// purgeAll removes expired records from every family. Purge failures are
// logged; stale rows are a cosmetic problem, not a correctness one.
func (o *Orchestrator) purgeAll(ctx context.Context) {
	cutoff := o.clock.Now().Add(-o.retention)
	for _, repo := range []*store.RiskRepo{
		o.repos.Outlook, o.repos.Meso, o.repos.Watch, o.repos.Threat, o.repos.Storm,
	} {
		n, err := repo.Purge(ctx, cutoff)
		if err != nil {
			o.logger.Error("purge failed", "family", repo.Family(), "error", err)
			continue
		}
		if n > 0 {
			o.metrics.RecordsPurged.WithLabelValues(string(repo.Family())).Add(float64(n))
			o.logger.Debug("purged expired records", "family", repo.Family(), "count", n)
		}
	}
}

// publishFreshness broadcasts the most recently issued bulletin per family.
func (o *Orchestrator) publishFreshness(ctx context.Context) {
	if o.broadcast == nil {
		return
	}
	var latest Freshness
	for _, repo := range []*store.RiskRepo{
		o.repos.Outlook, o.repos.Meso, o.repos.Watch, o.repos.Threat, o.repos.Storm,
	} {
		rec, err := repo.Latest(ctx)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			o.logger.Warn("latest lookup failed", "family", repo.Family(), "error", err)
			continue
		}
		if rec.Issued.After(latest.Issued) {
			latest = Freshness{Family: rec.Family, Key: rec.Key, Issued: rec.Issued}
		}
	}
	if !latest.Issued.IsZero() {
		o.broadcast.Publish(latest)
	}
}
