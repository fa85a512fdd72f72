package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rickgao/reits-ledger/internal/ledger"
)

const namespace = "reits"

// Result label values that are not ledger error names.
const (
	ResultOK       = "ok"
	ResultInternal = "internal"
)

// Metrics holds every collector, registered on its own registry.
type Metrics struct {
	registry *prometheus.Registry

	operations        *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec

	journalRows    prometheus.Counter
	journalErrors  prometheus.Counter
	journalBacklog prometheus.Gauge

	auditRuns     prometheus.Counter
	auditFailures prometheus.Counter
	vaultDeficit  *prometheus.GaugeVec

	httpRequests *prometheus.CounterVec
	wsClients    prometheus.Gauge
}

// New creates and registers all collectors, including the Go runtime and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		operations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "operations_total",
			Help:      "Ledger operations by outcome",
		}, []string{"op", "result"}),
		operationDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "operation_duration_seconds",
			Help:      "Ledger operation latency including the store commit",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"op"}),

		journalRows: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "journal",
			Name:      "rows_written_total",
			Help:      "Events written to the journal table",
		}),
		journalErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "journal",
			Name:      "flush_errors_total",
			Help:      "Failed journal batch flushes",
		}),
		journalBacklog: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "journal",
			Name:      "backlog",
			Help:      "Events waiting to be journaled",
		}),

		auditRuns: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "runs_total",
			Help:      "Completed vault reconciliation passes",
		}),
		auditFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "failures_total",
			Help:      "Reconciliation passes that could not complete",
		}),
		vaultDeficit: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "audit",
			Name:      "vault_deficit",
			Help:      "Smallest units by which a scheme vault falls short of funds raised",
		}, []string{"scheme"}),

		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route and status code",
		}, []string{"route", "code"}),
		wsClients: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "event_stream_clients",
			Help:      "Connected event stream clients",
		}),
	}
}

// Registry returns the registry the collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveOperation implements ledger.Recorder.
func (m *Metrics) ObserveOperation(op string, err error, elapsed time.Duration) {
	m.operations.WithLabelValues(op, Result(err)).Inc()
	m.operationDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}

// Result returns the result label for an operation error.
func Result(err error) string {
	if err == nil {
		return ResultOK
	}
	if e, ok := ledger.AsError(err); ok {
		return e.Name
	}
	return ResultInternal
}

// JournalFlushed records a successful journal flush of n rows.
func (m *Metrics) JournalFlushed(n int) {
	m.journalRows.Add(float64(n))
}

// JournalFailed records a failed journal flush.
func (m *Metrics) JournalFailed() {
	m.journalErrors.Inc()
}

// JournalBacklog records the journal's queued event count.
func (m *Metrics) JournalBacklog(n int) {
	m.journalBacklog.Set(float64(n))
}

// AuditCompleted records a finished reconciliation pass.
func (m *Metrics) AuditCompleted() {
	m.auditRuns.Inc()
}

// AuditFailed records a reconciliation pass that errored.
func (m *Metrics) AuditFailed() {
	m.auditFailures.Inc()
}

// VaultDeficit records a scheme's vault shortfall. Zero means balanced.
func (m *Metrics) VaultDeficit(scheme string, deficit uint64) {
	m.vaultDeficit.WithLabelValues(scheme).Set(float64(deficit))
}

// HTTPRequest records a served request.
func (m *Metrics) HTTPRequest(route, code string) {
	m.httpRequests.WithLabelValues(route, code).Inc()
}

// StreamClientConnected adjusts the event stream client gauge by delta.
func (m *Metrics) StreamClientConnected(delta int) {
	m.wsClients.Add(float64(delta))
}
