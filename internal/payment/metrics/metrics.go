package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the payment module.
type Metrics struct {
	OrdersCreated prometheus.Counter
	Payments      prometheus.Counter
	Refunds       prometheus.Counter
	OrdersClosed  prometheus.Counter
	SweepRuns     prometheus.Counter
	PayDuration   prometheus.Histogram
}

// New creates a new Metrics instance with all payment module metrics
// registered.
func New() *Metrics {
	return &Metrics{
		OrdersCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "examreg_payment_orders_created_total",
			Help: "Total number of payment orders created",
		}),
		Payments: promauto.NewCounter(prometheus.CounterOpts{
			Name: "examreg_payments_total",
			Help: "Total number of successful payments",
		}),
		Refunds: promauto.NewCounter(prometheus.CounterOpts{
			Name: "examreg_refunds_total",
			Help: "Total number of refunds",
		}),
		OrdersClosed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "examreg_payment_orders_closed_total",
			Help: "Total number of orders closed by expiry",
		}),
		SweepRuns: promauto.NewCounter(prometheus.CounterOpts{
			Name: "examreg_payment_sweep_runs_total",
			Help: "Total number of expiry sweep runs",
		}),
		PayDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "examreg_payment_pay_duration_seconds",
			Help:    "Duration of Pay operations (payment critical path)",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// IncrementOrdersCreated records a new payment order.
func (m *Metrics) IncrementOrdersCreated() {
	m.OrdersCreated.Inc()
}

// IncrementPayments records a successful payment.
func (m *Metrics) IncrementPayments() {
	m.Payments.Inc()
}

// IncrementRefunds records a refund.
func (m *Metrics) IncrementRefunds() {
	m.Refunds.Inc()
}

// AddOrdersClosed records orders closed by the expiry sweep.
func (m *Metrics) AddOrdersClosed(n int) {
	m.OrdersClosed.Add(float64(n))
}

// IncrementSweepRuns records one expiry sweep run.
func (m *Metrics) IncrementSweepRuns() {
	m.SweepRuns.Inc()
}

// ObservePay records the duration of a Pay operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObservePay(start time.Time) {
	m.PayDuration.Observe(time.Since(start).Seconds())
}
