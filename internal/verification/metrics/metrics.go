package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the verification module.
type Metrics struct {
	Verdicts       *prometheus.CounterVec
	CheckFailures  *prometheus.CounterVec
	VerifyDuration prometheus.Histogram
}

// New creates a new Metrics instance with all verification metrics registered.
func New() *Metrics {
	return &Metrics{
		Verdicts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "certledger_verification_verdicts_total",
			Help: "Total number of verification verdicts, by verdict",
		}, []string{"verdict"}),
		CheckFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "certledger_verification_check_failures_total",
			Help: "Total number of failed verification checks, by check",
		}, []string{"check"}),
		VerifyDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "certledger_verify_duration_seconds",
			Help:    "Duration of full document verification including text extraction",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
	}
}

// IncrementVerdict records a completed verification by its verdict.
func (m *Metrics) IncrementVerdict(verdict string) {
	if m == nil {
		return
	}
	m.Verdicts.WithLabelValues(verdict).Inc()
}

// IncrementCheckFailure records one failed check of a completed verification.
func (m *Metrics) IncrementCheckFailure(check string) {
	if m == nil {
		return
	}
	m.CheckFailures.WithLabelValues(check).Inc()
}

// ObserveVerify records the duration of a VerifyDocument operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveVerify(start time.Time) {
	if m == nil {
		return
	}
	m.VerifyDuration.Observe(time.Since(start).Seconds())
}
