package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the
// ingestion, query, notification, and scheduling paths.
type Metrics struct {
	FetchRequests   *prometheus.CounterVec // labels: feed, outcome={ok,not_modified,error}
	ParseErrors     *prometheus.CounterVec // labels: feed
	RecordsUpserted *prometheus.CounterVec // labels: family
	RecordsPurged   *prometheus.CounterVec // labels: family
	SyncDuration    prometheus.Histogram
	SyncRunning     prometheus.Gauge

	ActiveQueryDuration prometheus.Histogram

	Notifications *prometheus.CounterVec // labels: kind, outcome={sent,gated,error}

	ScheduleDecisions *prometheus.CounterVec // labels: action={submit,replace,keep,restore}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.FetchRequests,
		m.ParseErrors,
		m.RecordsUpserted,
		m.RecordsPurged,
		m.SyncDuration,
		m.SyncRunning,
		m.ActiveQueryDuration,
		m.Notifications,
		m.ScheduleDecisions,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		FetchRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "severe_alerts",
			Name:      "fetch_requests_total",
			Help:      "Feed fetch attempts by feed and outcome.",
		}, []string{"feed", "outcome"}),
		ParseErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "severe_alerts",
			Name:      "parse_errors_total",
			Help:      "Structurally broken feed payloads by feed.",
		}, []string{"feed"}),
		RecordsUpserted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "severe_alerts",
			Name:      "records_upserted_total",
			Help:      "Risk records written by family.",
		}, []string{"family"}),
		RecordsPurged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "severe_alerts",
			Name:      "records_purged_total",
			Help:      "Expired risk records deleted by family.",
		}, []string{"family"}),
		SyncDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "severe_alerts",
			Name:      "sync_duration_seconds",
			Help:      "Duration of a complete ingestion cycle.",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30},
		}),
		SyncRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "severe_alerts",
			Name:      "sync_running",
			Help:      "1 while an ingestion cycle is in progress.",
		}),
		ActiveQueryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "severe_alerts",
			Name:      "active_query_duration_seconds",
			Help:      "Duration of point-in-polygon active-risk queries.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "severe_alerts",
			Name:      "notifications_total",
			Help:      "Notification pipeline evaluations by kind and outcome.",
		}, []string{"kind", "outcome"}),
		ScheduleDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "severe_alerts",
			Name:      "schedule_decisions_total",
			Help:      "Cadence scheduler reconciliation outcomes.",
		}, []string{"action"}),
	}
}
