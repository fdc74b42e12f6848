package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the dry-run layer.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Records written by routing path ("virtual" or "real")
	RecordsWritten *prometheus.CounterVec

	// Savepoint manager pages by operation
	SavepointPages *prometheus.CounterVec

	// Savepoint manager operation latency by operation
	SavepointDuration *prometheus.HistogramVec

	// Ledger emulator rejections by error code
	LedgerRejections *prometheus.CounterVec
}

// New creates a Metrics instance registered on reg. A nil reg registers
// on the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		RecordsWritten: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dryrun_records_written_total",
			Help: "Total records written by the router, by routing path",
		}, []string{"path"}), // path: "virtual", "real"

		SavepointPages: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dryrun_savepoint_pages_total",
			Help: "Total record pages processed by savepoint operations",
		}, []string{"op"}), // op: "create", "restore", "clear", "system_mode"

		SavepointDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "dryrun_savepoint_duration_seconds",
			Help:    "Duration of whole savepoint operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}, []string{"op"}),

		LedgerRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dryrun_ledger_rejections_total",
			Help: "Total ledger emulator operations rejected, by error code",
		}, []string{"code"}),
	}
}

// AddRecordsWritten counts records written through path.
func (m *Metrics) AddRecordsWritten(path string, n int) {
	if m != nil && n > 0 {
		m.RecordsWritten.WithLabelValues(path).Add(float64(n))
	}
}

// IncrementSavepointPage counts one processed page.
func (m *Metrics) IncrementSavepointPage(op string) {
	if m != nil {
		m.SavepointPages.WithLabelValues(op).Inc()
	}
}

// ObserveSavepointDuration records the duration of a whole operation.
func (m *Metrics) ObserveSavepointDuration(op string, d time.Duration) {
	if m != nil {
		m.SavepointDuration.WithLabelValues(op).Observe(d.Seconds())
	}
}

// IncrementLedgerRejection counts a rejected ledger operation.
func (m *Metrics) IncrementLedgerRejection(code string) {
	if m != nil {
		m.LedgerRejections.WithLabelValues(code).Inc()
	}
}
