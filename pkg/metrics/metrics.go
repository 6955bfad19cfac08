// Package metrics exposes Prometheus counters for statement imports.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the import counters. A nil *Metrics is a no-op, so callers
// can run without a registry in tests.
type Metrics struct {
	imports           *prometheus.CounterVec
	rows              *prometheus.CounterVec
	inferenceFailures prometheus.Counter
}

// New registers the import metrics with the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		imports: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "statement_imports_total",
			Help: "Completed, blocked, and failed statement imports by resolution tier.",
		}, []string{"tier", "state"}),
		rows: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "statement_rows_total",
			Help: "Processed statement rows by outcome.",
		}, []string{"outcome"}),
		inferenceFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "statement_inference_failures_total",
			Help: "Column-mapping inference calls that returned unavailable.",
		}),
	}
}

// ObserveImport records one finished import run.
func (m *Metrics) ObserveImport(tier, state string) {
	if m == nil {
		return
	}
	m.imports.WithLabelValues(tier, state).Inc()
}

// ObserveRows records row outcomes for one run.
func (m *Metrics) ObserveRows(outcome string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.rows.WithLabelValues(outcome).Add(float64(n))
}

// ObserveInferenceFailure records an unavailable inference call.
func (m *Metrics) ObserveInferenceFailure() {
	if m == nil {
		return
	}
	m.inferenceFailures.Inc()
}
