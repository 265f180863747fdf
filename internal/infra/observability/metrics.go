package observability

import (
	"time"

	"github.com/boddenberg/mkt-demandas-bfa-go/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the BFA.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration   *prometheus.HistogramVec
	externalErrors    *prometheus.CounterVec
	cacheHits         *prometheus.CounterVec
	cacheMisses       *prometheus.CounterVec
	transitions       *prometheus.CounterVec
	productionSeconds prometheus.Counter
	drifts            prometheus.Counter
	permissionChecks  *prometheus.CounterVec
	backfilledRows    prometheus.Counter
	autosaveFlushes   *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bfa_request_duration_seconds",
				Help:    "Duration of service operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bfa_external_errors_total",
				Help: "Total errors from external services.",
			},
			[]string{"service"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bfa_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bfa_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		transitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bfa_status_transitions_total",
				Help: "Status transitions by outcome notice.",
			},
			[]string{"notice"},
		),
		productionSeconds: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "bfa_production_seconds_total",
				Help: "Production seconds recorded when timers stop.",
			},
		),
		drifts: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "bfa_reconciliation_drift_total",
				Help: "Post-write reads that disagreed with the requested status.",
			},
		),
		permissionChecks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bfa_permission_checks_total",
				Help: "Permission checks by result.",
			},
			[]string{"result"},
		),
		backfilledRows: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "bfa_permission_backfill_rows_total",
				Help: "Default-deny permission rows requested by backfill.",
			},
		),
		autosaveFlushes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bfa_autosave_flushes_total",
				Help: "Debounced field saves by result.",
			},
			[]string{"result"},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrExternalError increments the external error counter.
func (m *Metrics) IncrExternalError(service string) {
	m.externalErrors.WithLabelValues(service).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// RecordTransition counts a status transition and the seconds it recorded.
func (m *Metrics) RecordTransition(notice string, recordedSeconds int64) {
	m.transitions.WithLabelValues(notice).Inc()
	if recordedSeconds > 0 {
		m.productionSeconds.Add(float64(recordedSeconds))
	}
}

// IncrDrift counts a reconciliation correction.
func (m *Metrics) IncrDrift() {
	m.drifts.Inc()
}

// RecordPermissionCheck counts an allow/deny decision.
func (m *Metrics) RecordPermissionCheck(allowed bool) {
	if allowed {
		m.permissionChecks.WithLabelValues("allow").Inc()
		return
	}
	m.permissionChecks.WithLabelValues("deny").Inc()
}

// AddBackfilledRows counts permission rows sent by the backfill.
func (m *Metrics) AddBackfilledRows(n int) {
	m.backfilledRows.Add(float64(n))
}

// IncrAutosave counts a debounced flush (saved, stale, error).
func (m *Metrics) IncrAutosave(result string) {
	m.autosaveFlushes.WithLabelValues(result).Inc()
}

// Snapshot returns the operational counters for GET /v1/metrics/ops.
func (m *Metrics) Snapshot() *domain.OpsMetrics {
	started := getCounterValue(m.transitions, "timer_started")
	stopped := getCounterValue(m.transitions, "timer_stopped")
	updated := getCounterValue(m.transitions, "status_updated")

	hits := getCounterValue(m.cacheHits, "permissions") + getCounterValue(m.cacheHits, "lookups")
	misses := getCounterValue(m.cacheMisses, "permissions") + getCounterValue(m.cacheMisses, "lookups")
	hitRate := float64(0)
	if hits+misses > 0 {
		hitRate = hits / (hits + misses)
	}

	return &domain.OpsMetrics{
		Transitions:          int64(started + stopped + updated),
		TimersStarted:        int64(started),
		TimersStopped:        int64(stopped),
		ProductionSeconds:    int64(readCounter(m.productionSeconds)),
		ReconciliationDrifts: int64(readCounter(m.drifts)),
		PermissionDenials:    int64(getCounterValue(m.permissionChecks, "deny")),
		BackfilledRows:       int64(readCounter(m.backfilledRows)),
		CacheHitRate:         hitRate,
		Period:               "all_time",
	}
}

// getCounterValue extracts the current float64 value from a CounterVec for a given label.
func getCounterValue(cv *prometheus.CounterVec, label string) float64 {
	return readCounter(cv.WithLabelValues(label))
}

func readCounter(c prometheus.Counter) float64 {
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
