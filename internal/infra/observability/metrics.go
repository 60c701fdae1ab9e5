package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"

	"github.com/obraprime/propostas-api/internal/domain"
)

// Metrics holds all Prometheus metrics for the proposals service.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	externalErrors  *prometheus.CounterVec
	cacheHits       *prometheus.CounterVec
	cacheMisses     *prometheus.CounterVec
	takeoffsTotal   *prometheus.CounterVec
	takeoffLines    prometheus.Histogram
	recalculations  *prometheus.CounterVec
	auditFindings   prometheus.Counter
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
				Name:    "propostas_request_duration_seconds",
				Help:    "Duration of requests by operation.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "propostas_external_errors_total",
				Help: "Total errors from external services.",
			},
			[]string{"service"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "propostas_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "propostas_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		takeoffsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "propostas_takeoffs_total",
				Help: "Total takeoff computations by proposal type and status.",
			},
			[]string{"proposal_type", "status"},
		),
		takeoffLines: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "propostas_takeoff_line_items",
				Help:    "Line items produced per takeoff.",
				Buckets: []float64{5, 10, 20, 40, 80, 160},
			},
		),
		recalculations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "propostas_recalculations_total",
				Help: "Total cached-total recalculations by outcome.",
			},
			[]string{"outcome"},
		),
		auditFindings: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "propostas_audit_findings_total",
				Help: "Total cached-total divergences detected by the price audit.",
			},
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

// RecordTakeoff records one takeoff computation and its line-item count.
func (m *Metrics) RecordTakeoff(proposalType, status string, lines int) {
	m.takeoffsTotal.WithLabelValues(proposalType, status).Inc()
	if status == "success" {
		m.takeoffLines.Observe(float64(lines))
	}
}

// IncrRecalculation increments the recalculation counter.
// Outcome is "success", "conflict" or "error".
func (m *Metrics) IncrRecalculation(outcome string) {
	m.recalculations.WithLabelValues(outcome).Inc()
}

// IncrAuditFinding increments the price-audit divergence counter.
func (m *Metrics) IncrAuditFinding() {
	m.auditFindings.Inc()
}

// GetEngineSnapshot returns a snapshot of engine metrics suitable for the
// GET /v1/metrics/engine endpoint.
func (m *Metrics) GetEngineSnapshot() *domain.EngineMetrics {
	// Prometheus counters expose cumulative values.
	successTakeoffs := getCounterVecTotal(m.takeoffsTotal, "status", "success")
	failedTakeoffs := getCounterVecTotal(m.takeoffsTotal, "status", "error")
	recalcOK := getCounterValue(m.recalculations, "success")
	recalcConflicts := getCounterValue(m.recalculations, "conflict")
	cacheHits := getCounterVecTotal(m.cacheHits, "", "")
	cacheMisses := getCounterVecTotal(m.cacheMisses, "", "")

	total := successTakeoffs + failedTakeoffs
	errorRate := float64(0)
	if total > 0 {
		errorRate = failedTakeoffs / total
	}
	cacheHitRate := float64(0)
	if cacheHits+cacheMisses > 0 {
		cacheHitRate = cacheHits / (cacheHits + cacheMisses)
	}

	return &domain.EngineMetrics{
		TotalTakeoffs:        int64(total),
		FailedTakeoffs:       int64(failedTakeoffs),
		ErrorRate:            errorRate,
		Recalculations:       int64(recalcOK),
		RecalculationRetries: int64(recalcConflicts),
		AuditFindings:        int64(getSingleCounterValue(m.auditFindings)),
		CacheHitRate:         cacheHitRate,
		Period:               "all_time",
	}
}

// getCounterValue extracts the current float64 value from a CounterVec for a given label.
func getCounterValue(cv *prometheus.CounterVec, label string) float64 {
	counter := cv.WithLabelValues(label)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}

// getCounterVecTotal sums a CounterVec across all label sets, optionally
// restricted to those where labelName carries labelValue.
func getCounterVecTotal(cv *prometheus.CounterVec, labelName, labelValue string) float64 {
	ch := make(chan prometheus.Metric, 64)
	go func() {
		cv.Collect(ch)
		close(ch)
	}()

	var total float64
	for metric := range ch {
		m := &dto.Metric{}
		if err := metric.Write(m); err != nil {
			continue
		}
		if labelName != "" {
			matched := false
			for _, lp := range m.Label {
				if lp.GetName() == labelName && lp.GetValue() == labelValue {
					matched = true
					break
				}
			}
			if !matched {
				continue
			}
		}
		if m.Counter != nil && m.Counter.Value != nil {
			total += *m.Counter.Value
		}
	}
	return total
}

func getSingleCounterValue(c prometheus.Counter) float64 {
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
