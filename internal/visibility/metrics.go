package visibility

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MetricSchemaDrift counts diagnostics by kind, field and reason.
const MetricSchemaDrift = "visibility_schema_drift_total"

// Metrics contains Prometheus metrics for visibility filtering.
type Metrics struct {
	drift *prometheus.CounterVec
}

// NewMetrics creates unregistered visibility metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		drift: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: MetricSchemaDrift,
				Help: "Total number of fields left unfiltered because record, settings and classification disagree",
			},
			[]string{"kind", "field", "reason"},
		),
	}
}

// Register registers the metrics with reg.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	return reg.Register(m.drift)
}

// IncDrift counts one diagnostic.
func (m *Metrics) IncDrift(d Diagnostic) {
	m.drift.WithLabelValues(string(d.Kind), d.Field, d.Reason).Inc()
}
