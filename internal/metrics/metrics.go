package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for registrations and draws.
type Metrics struct {
	Registrations      prometheus.Counter
	ReRegistrations    prometheus.Counter
	PoolExhausted      prometheus.Counter
	Draws              prometheus.Counter
	EmptyDraws         prometheus.Counter
	InconsistentStates prometheus.Counter
	TxConflicts        *prometheus.CounterVec
	ContentionExceeded *prometheus.CounterVec
	TxDuration         *prometheus.HistogramVec
}

// New registers all collectors on reg. Passing nil uses the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		Registrations: f.NewCounter(prometheus.CounterOpts{
			Name: "luckydraw_registrations_total",
			Help: "Participants created with a freshly allocated number",
		}),
		ReRegistrations: f.NewCounter(prometheus.CounterOpts{
			Name: "luckydraw_reregistrations_total",
			Help: "Register calls answered with an existing participant",
		}),
		PoolExhausted: f.NewCounter(prometheus.CounterOpts{
			Name: "luckydraw_pool_exhausted_total",
			Help: "Register calls rejected because the number pool is empty",
		}),
		Draws: f.NewCounter(prometheus.CounterOpts{
			Name: "luckydraw_draws_total",
			Help: "Winners recorded",
		}),
		EmptyDraws: f.NewCounter(prometheus.CounterOpts{
			Name: "luckydraw_empty_draws_total",
			Help: "Draw calls that found no available number",
		}),
		InconsistentStates: f.NewCounter(prometheus.CounterOpts{
			Name: "luckydraw_inconsistent_state_total",
			Help: "Draws where an available number had no owning participant",
		}),
		TxConflicts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "luckydraw_tx_conflicts_total",
			Help: "Transaction attempts aborted by a write conflict",
		}, []string{"op"}),
		ContentionExceeded: f.NewCounterVec(prometheus.CounterOpts{
			Name: "luckydraw_contention_exceeded_total",
			Help: "Operations that ran out of transaction attempts",
		}, []string{"op"}),
		TxDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "luckydraw_tx_duration_seconds",
			Help:    "Duration of mutating operations including retries",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"op"}),
	}
}

// ObserveTx records the duration of op. Call with time.Now() at the start.
func (m *Metrics) ObserveTx(op string, start time.Time) {
	m.TxDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncConflict(op string) {
	m.TxConflicts.WithLabelValues(op).Inc()
}

func (m *Metrics) IncContentionExceeded(op string) {
	m.ContentionExceeded.WithLabelValues(op).Inc()
}
