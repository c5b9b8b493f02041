package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Metrics holds all Prometheus metrics for the back office.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration      *prometheus.HistogramVec
	transfersTotal       *prometheus.CounterVec
	compensationFailures prometheus.Counter
	ledgerWriteFailures  prometheus.Counter
	storeErrors          *prometheus.CounterVec
	cacheHits            *prometheus.CounterVec
	cacheMisses          *prometheus.CounterVec
}

// TransferSnapshot is the operational counter snapshot served by the
// back-office metrics endpoint.
type TransferSnapshot struct {
	Completed            int64   `json:"completed"`
	Rejected             int64   `json:"rejected"`
	Failed               int64   `json:"failed"`
	FailureRate          float64 `json:"failure_rate"`
	CompensationFailures int64   `json:"compensation_failures"`
	LedgerWriteFailures  int64   `json:"ledger_write_failures"`
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
				Name:    "backoffice_request_duration_seconds",
				Help:    "Duration of requests by operation.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		transfersTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backoffice_transfers_total",
				Help: "Transfers by outcome (completed, rejected, failed).",
			},
			[]string{"outcome"},
		),
		compensationFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "backoffice_transfer_compensation_failures_total",
				Help: "Compensating writes that failed after a partial transfer; each one needs manual reconciliation.",
			},
		),
		ledgerWriteFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "backoffice_ledger_write_failures_total",
				Help: "Ledger leg inserts that failed after balances were committed.",
			},
		),
		storeErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backoffice_store_errors_total",
				Help: "Total errors from the hosted store.",
			},
			[]string{"operation"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backoffice_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backoffice_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrTransfer increments the transfer counter with an outcome label.
func (m *Metrics) IncrTransfer(outcome string) {
	m.transfersTotal.WithLabelValues(outcome).Inc()
}

// IncrCompensationFailure counts a failed compensating write.
func (m *Metrics) IncrCompensationFailure() {
	m.compensationFailures.Inc()
}

// IncrLedgerWriteFailure counts a failed ledger leg insert.
func (m *Metrics) IncrLedgerWriteFailure() {
	m.ledgerWriteFailures.Inc()
}

// IncrStoreError increments the store error counter.
func (m *Metrics) IncrStoreError(operation string) {
	m.storeErrors.WithLabelValues(operation).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// GetTransferSnapshot reads the current transfer counters for the
// operational metrics endpoint.
func (m *Metrics) GetTransferSnapshot() *TransferSnapshot {
	completed := getCounterVecValue(m.transfersTotal, "completed")
	rejected := getCounterVecValue(m.transfersTotal, "rejected")
	failed := getCounterVecValue(m.transfersTotal, "failed")

	total := completed + rejected + failed
	failureRate := 0.0
	if total > 0 {
		failureRate = failed / total
	}

	return &TransferSnapshot{
		Completed:            int64(completed),
		Rejected:             int64(rejected),
		Failed:               int64(failed),
		FailureRate:          failureRate,
		CompensationFailures: int64(getCounterValue(m.compensationFailures)),
		LedgerWriteFailures:  int64(getCounterValue(m.ledgerWriteFailures)),
	}
}

func getCounterVecValue(cv *prometheus.CounterVec, label string) float64 {
	return getCounterValue(cv.WithLabelValues(label))
}

func getCounterValue(c prometheus.Counter) float64 {
	m := &dto.Metric{}
	if err := c.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
