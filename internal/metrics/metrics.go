// Package metrics exposes run counters for the evaluator.
//
// A run is a one-shot process with no scrape endpoint, so the registry is
// written to a node-exporter textfile at the end of the run when requested.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder holds the evaluator's collectors on a private registry.
// A nil *Recorder is valid and records nothing.
type Recorder struct {
	registry *prometheus.Registry

	evaluations    *prometheus.CounterVec
	resourceErrors *prometheus.CounterVec
	reportFailures *prometheus.CounterVec
	runDuration    prometheus.Histogram
}

// NewRecorder registers the collectors on a fresh registry.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		evaluations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ruleset",
				Name:      "evaluations_total",
				Help:      "Evaluation records reported, by rule and compliance type.",
			},
			[]string{"rule", "compliance"},
		),
		resourceErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ruleset",
				Name:      "resource_errors_total",
				Help:      "Resources skipped because they could not be described, by rule and reason.",
			},
			[]string{"rule", "reason"},
		),
		reportFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ruleset",
				Name:      "report_failures_total",
				Help:      "Evaluation records the sink did not accept, by rule.",
			},
			[]string{"rule"},
		),
		runDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "ruleset",
				Name:      "run_duration_seconds",
				Help:      "Wall time of one invocation.",
				Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 900},
			},
		),
	}
}

// Evaluation counts one reported record.
func (r *Recorder) Evaluation(rule, compliance string) {
	if r == nil {
		return
	}
	r.evaluations.WithLabelValues(rule, compliance).Inc()
}

// ResourceError counts one skipped resource. reason is "not_found" or
// "describe".
func (r *Recorder) ResourceError(rule, reason string) {
	if r == nil {
		return
	}
	r.resourceErrors.WithLabelValues(rule, reason).Inc()
}

// ReportFailure counts one record the sink did not accept.
func (r *Recorder) ReportFailure(rule string) {
	if r == nil {
		return
	}
	r.reportFailures.WithLabelValues(rule).Inc()
}

// RunFinished observes the run's duration.
func (r *Recorder) RunFinished(d time.Duration) {
	if r == nil {
		return
	}
	r.runDuration.Observe(d.Seconds())
}

// Registry exposes the underlying registry for tests and custom exporters.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// WriteTextfile writes every collector to path in the text exposition
// format. An empty path is a no-op.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, r.registry)
}
