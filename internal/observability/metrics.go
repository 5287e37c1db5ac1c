package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xkilldash9x/formsmith/api/schemas"
)

// Metrics holds the run counters. A nil *Metrics is valid and records nothing, so the
// engine can run without a registry.
type Metrics struct {
	registry *prometheus.Registry

	ResolutionsTotal *prometheus.CounterVec
	FormsTotal       *prometheus.CounterVec
	RepairsTotal     *prometheus.CounterVec
	AnomalyWaits     *prometheus.CounterVec
	AccountsTotal    *prometheus.CounterVec
	AccountDuration  prometheus.Histogram
}

// NewMetrics registers every metric on a fresh registry under namespace.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "formsmith"
	}
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		ResolutionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "field_resolutions_total",
				Help:      "Field resolution attempts by intent, winning strategy and outcome",
			},
			[]string{"intent", "strategy", "outcome"},
		),
		FormsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "forms_total",
				Help:      "Completed form runs by terminal state",
			},
			[]string{"state"},
		),
		RepairsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "field_repairs_total",
				Help:      "Repair attempts by intent and outcome",
			},
			[]string{"intent", "outcome"},
		),
		AnomalyWaits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "anomaly_waits_total",
				Help:      "Challenge page waits by outcome",
			},
			[]string{"outcome"},
		),
		AccountsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "accounts_total",
				Help:      "Processed accounts by status",
			},
			[]string{"status"},
		),
		AccountDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "account_duration_seconds",
				Help:      "Wall time spent on one account",
				Buckets:   []float64{1, 2.5, 5, 10, 20, 30, 60, 120, 300},
			},
		),
	}
}

func outcomeLabel(ok bool) string {
	if ok {
		return "matched"
	}
	return "no_match"
}

// RecordResolution counts one resolver chain run.
func (m *Metrics) RecordResolution(intent schemas.FieldIntent, res schemas.ResolutionResult) {
	if m == nil {
		return
	}
	m.ResolutionsTotal.WithLabelValues(string(intent), string(res.Strategy), outcomeLabel(res.Matched)).Inc()
}

// RecordRepair counts one aggressive retry of a failing field.
func (m *Metrics) RecordRepair(intent schemas.FieldIntent, matched bool) {
	if m == nil {
		return
	}
	m.RepairsTotal.WithLabelValues(string(intent), outcomeLabel(matched)).Inc()
}

// RecordForm counts a finished orchestration.
func (m *Metrics) RecordForm(state schemas.FormState) {
	if m == nil {
		return
	}
	m.FormsTotal.WithLabelValues(string(state)).Inc()
}

// RecordAnomaly counts one challenge wait.
func (m *Metrics) RecordAnomaly(outcome schemas.AnomalyOutcome) {
	if m == nil {
		return
	}
	m.AnomalyWaits.WithLabelValues(string(outcome)).Inc()
}

// RecordAccount counts a finished account and observes its duration.
func (m *Metrics) RecordAccount(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.AccountsTotal.WithLabelValues(status).Inc()
	m.AccountDuration.Observe(d.Seconds())
}

// Registry exposes the underlying registry for tests and custom exporters.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
