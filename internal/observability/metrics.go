package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the gateway.
type Metrics struct {
	// Decide request metrics
	DecideRequestsTotal *prometheus.CounterVec
	DecideDuration      *prometheus.HistogramVec
	DecideInFlight      prometheus.Gauge

	// Decision outcome metrics
	Decisions       *prometheus.CounterVec
	PolicyCacheHits   prometheus.Counter
	PolicyCacheMisses prometheus.Counter

	// Quota metrics
	QuotaChecks    *prometheus.CounterVec
	QuotaRollbacks prometheus.Counter

	// Infrastructure metrics
	InfraFaults  *prometheus.CounterVec
	FailClosedTrips prometheus.Counter

	// Audit metrics
	AuditRecordsWritten prometheus.Counter
	AuditRecordsDropped prometheus.Counter
	AuditBufferSize     prometheus.Gauge
	AuditFlushes        prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "gateway"
	}

	return &Metrics{
		DecideRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "decide_requests_total",
				Help:      "Total number of Decide calls by simulated flag",
			},
			[]string{"simulated"},
		),
		DecideDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "decide_duration_seconds",
				Help:      "Decide call duration in seconds",
				Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"simulated"},
		),
		DecideInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "decide_requests_in_flight",
				Help:      "Number of Decide calls currently being processed",
			},
		),

		Decisions: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "decisions_total",
				Help:      "Total decisions by outcome and project",
			},
			[]string{"allowed", "project_id"},
		),
		PolicyCacheHits: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "policy_cache_hits_total",
				Help:      "Number of policy cache hits",
			},
		),
		PolicyCacheMisses: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "policy_cache_misses_total",
				Help:      "Number of policy cache misses",
			},
		),

		QuotaChecks: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "quota_checks_total",
				Help:      "Total quota checks by kind and admission result",
			},
			[]string{"kind", "admitted"}, // kind: request, aggregate
		),
		QuotaRollbacks: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "quota_rollbacks_total",
				Help:      "Total request-counter rollbacks due to a refused aggregate check",
			},
		),

		InfraFaults: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "infra_faults_total",
				Help:      "Total infrastructure faults by component",
			},
			[]string{"component"},
		),
		FailClosedTrips: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "fail_closed_trips_total",
				Help:      "Total Decide calls blocked by fail-closed handling",
			},
		),

		AuditRecordsWritten: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "audit_records_written_total",
				Help:      "Total audit records written to storage",
			},
		),
		AuditRecordsDropped: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "audit_records_dropped_total",
				Help:      "Total audit records dropped due to buffer overflow or sink errors",
			},
		),
		AuditBufferSize: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "audit_buffer_size",
				Help:      "Current number of records in the audit buffer",
			},
		),
		AuditFlushes: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "audit_flushes_total",
				Help:      "Total number of audit buffer flushes",
			},
		),
	}
}

// RecordDecide records metrics for a completed Decide call.
func (m *Metrics) RecordDecide(simulated bool, durationSeconds float64) {
	s := boolLabel(simulated)
	m.DecideRequestsTotal.WithLabelValues(s).Inc()
	m.DecideDuration.WithLabelValues(s).Observe(durationSeconds)
}

// RecordDecision records a decision outcome.
func (m *Metrics) RecordDecision(allowed bool, projectID string) {
	m.Decisions.WithLabelValues(boolLabel(allowed), projectID).Inc()
}

// RecordQuotaCheck records a quota check's admission result.
func (m *Metrics) RecordQuotaCheck(kind string, admitted bool) {
	m.QuotaChecks.WithLabelValues(kind, boolLabel(admitted)).Inc()
}

// RecordInfraFault records a fault attributed to component.
func (m *Metrics) RecordInfraFault(component string) {
	m.InfraFaults.WithLabelValues(component).Inc()
}

// IncrementAuditWritten increments the audit records written counter.
func (m *Metrics) IncrementAuditWritten(count int) {
	m.AuditRecordsWritten.Add(float64(count))
}

// IncrementAuditDropped increments the audit records dropped counter.
func (m *Metrics) IncrementAuditDropped(count int) {
	m.AuditRecordsDropped.Add(float64(count))
}

// IncrementAuditFlushes increments the audit flushes counter.
func (m *Metrics) IncrementAuditFlushes() {
	m.AuditFlushes.Inc()
}

// UpdateAuditBufferSize sets the audit buffer size gauge.
func (m *Metrics) UpdateAuditBufferSize(size int) {
	m.AuditBufferSize.Set(float64(size))
}

func boolLabel(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
