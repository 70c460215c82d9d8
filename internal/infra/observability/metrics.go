package observability

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the dashboard BFA.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration     *prometheus.HistogramVec
	providerErrors      *prometheus.CounterVec
	cacheHits           *prometheus.CounterVec
	cacheMisses         *prometheus.CounterVec
	unclassified        *prometheus.CounterVec
	institutionFailures prometheus.Counter
	dashboards          *prometheus.CounterVec

	// type labels already handed to unclassified
	mu         sync.Mutex
	typeLabels map[string]struct{}
}

// Bounds on the unclassified type label. Provider tags are free-form, so
// anything odd collapses into a fixed label instead of a new series.
const (
	maxTypeLabelLen   = 32
	maxTypeLabels     = 20
	typeLabelInvalid  = "invalid"
	typeLabelOverflow = "overflow"
)

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
				Name:    "cashy_request_duration_seconds",
				Help:    "Duration of operations.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		providerErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cashy_provider_errors_total",
				Help: "Total errors from the aggregation provider.",
			},
			[]string{"operation"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cashy_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cashy_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		unclassified: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cashy_unclassified_accounts_total",
				Help: "Accounts whose provider type is not a known category.",
			},
			[]string{"type"},
		),
		institutionFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "cashy_institution_failures_total",
				Help: "Institutions whose accounts could not be fetched for a dashboard.",
			},
		),
		dashboards: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cashy_dashboards_total",
				Help: "Dashboards built, by outcome.",
			},
			[]string{"status"},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrProviderError increments the provider error counter.
func (m *Metrics) IncrProviderError(operation string) {
	m.providerErrors.WithLabelValues(operation).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// IncrUnclassified counts an account with an unknown provider type.
func (m *Metrics) IncrUnclassified(rawType string) {
	m.unclassified.WithLabelValues(m.typeLabel(rawType)).Inc()
}

func (m *Metrics) typeLabel(rawType string) string {
	label := strings.ToLower(strings.TrimSpace(rawType))
	if !validTypeLabel(label) {
		return typeLabelInvalid
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.typeLabels == nil {
		m.typeLabels = make(map[string]struct{}, maxTypeLabels)
	}
	if _, ok := m.typeLabels[label]; ok {
		return label
	}
	if len(m.typeLabels) >= maxTypeLabels {
		return typeLabelOverflow
	}
	m.typeLabels[label] = struct{}{}
	return label
}

func validTypeLabel(s string) bool {
	if s == "" || len(s) > maxTypeLabelLen {
		return false
	}
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '_' && r != '-' {
			return false
		}
	}
	return true
}

// IncrInstitutionFailure counts an institution dropped from a dashboard.
func (m *Metrics) IncrInstitutionFailure() {
	m.institutionFailures.Inc()
}

// IncrDashboard counts a dashboard build with status complete, partial or error.
func (m *Metrics) IncrDashboard(status string) {
	m.dashboards.WithLabelValues(status).Inc()
}

// CounterValue reads the current value of a labelled counter. Unknown
// metric names or labels read as zero.
func (m *Metrics) CounterValue(name string, labels ...string) float64 {
	var c prometheus.Collector
	switch name {
	case "provider_errors":
		c = m.providerErrors
	case "cache_hits":
		c = m.cacheHits
	case "cache_misses":
		c = m.cacheMisses
	case "unclassified":
		c = m.unclassified
	case "institution_failures":
		return metricValue(m.institutionFailures)
	case "dashboards":
		c = m.dashboards
	default:
		return 0
	}

	vec, ok := c.(*prometheus.CounterVec)
	if !ok {
		return 0
	}
	counter, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		return 0
	}
	return metricValue(counter)
}

func metricValue(metric prometheus.Metric) float64 {
	m := &dto.Metric{}
	if err := metric.Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
