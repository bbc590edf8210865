package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the registration module.
type Metrics struct {
	Submitted      prometheus.Counter
	Audited        *prometheus.CounterVec
	Cancelled      prometheus.Counter
	SubmitDuration prometheus.Histogram
}

// New creates a new Metrics instance with all registration module metrics
// registered.
func New() *Metrics {
	return &Metrics{
		Submitted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "examreg_registrations_submitted_total",
			Help: "Total number of registrations submitted",
		}),
		Audited: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "examreg_registrations_audited_total",
			Help: "Total number of registration audit decisions",
		}, []string{"decision"}),
		Cancelled: promauto.NewCounter(prometheus.CounterOpts{
			Name: "examreg_registrations_cancelled_total",
			Help: "Total number of registrations cancelled by candidates",
		}),
		SubmitDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "examreg_registration_submit_duration_seconds",
			Help:    "Duration of Submit operations (capacity critical path)",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// IncrementSubmitted records a successful registration submission.
func (m *Metrics) IncrementSubmitted() {
	m.Submitted.Inc()
}

// IncrementAudited records an audit decision by outcome.
func (m *Metrics) IncrementAudited(decision string) {
	m.Audited.WithLabelValues(decision).Inc()
}

// IncrementCancelled records a candidate cancellation.
func (m *Metrics) IncrementCancelled() {
	m.Cancelled.Inc()
}

// ObserveSubmit records the duration of a Submit operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveSubmit(start time.Time) {
	m.SubmitDuration.Observe(time.Since(start).Seconds())
}
