package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the issuance module.
type Metrics struct {
	CertificatesIssued *prometheus.CounterVec
	IssuanceRejected   *prometheus.CounterVec
	IssueDuration      prometheus.Histogram
}

// New creates a new Metrics instance with all issuance metrics registered.
func New() *Metrics {
	return &Metrics{
		CertificatesIssued: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "certledger_certificates_issued_total",
			Help: "Total number of certificates issued, by document mode",
		}, []string{"mode"}),
		IssuanceRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "certledger_issuance_rejected_total",
			Help: "Total number of rejected issuance requests, by cause",
		}, []string{"cause"}),
		IssueDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "certledger_issue_duration_seconds",
			Help:    "Duration of full issuance including rendering and ledger append",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
	}
}

// IncrementIssued records a successful issuance for the given document mode.
func (m *Metrics) IncrementIssued(mode string) {
	if m == nil {
		return
	}
	m.CertificatesIssued.WithLabelValues(mode).Inc()
}

// IncrementRejected records an issuance rejected before the ledger append.
func (m *Metrics) IncrementRejected(cause string) {
	if m == nil {
		return
	}
	m.IssuanceRejected.WithLabelValues(cause).Inc()
}

// ObserveIssue records the duration of an Issue operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveIssue(start time.Time) {
	if m == nil {
		return
	}
	m.IssueDuration.Observe(time.Since(start).Seconds())
}
