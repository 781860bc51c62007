package event

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MetricRegistrations counts registration attempts by action and outcome.
const MetricRegistrations = "event_registrations_total"

// Registration outcomes.
const (
	OutcomeSuccess     = "success"
	OutcomeNotEligible = "not_eligible"
	OutcomeError       = "error"
)

// Metrics contains Prometheus metrics for event registration.
type Metrics struct {
	registrations *prometheus.CounterVec
}

// NewMetrics creates unregistered registration metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		registrations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricRegistrations,
				Help: "Total number of event registration attempts by action and outcome",
			},
			[]string{"action", "outcome"},
		),
	}
}

// Register registers the metrics with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	return reg.Register(m.registrations)
}

func (m *Metrics) observe(action Action, outcome string) {
	if m == nil {
		return
	}
	m.registrations.WithLabelValues(string(action), outcome).Inc()
}
