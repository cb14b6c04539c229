// Package metrics exposes Prometheus collectors shared across components.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RequestsTotal counts HTTP requests by method, path and status.
	RequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kestrel_http_requests_total",
		Help: "Total HTTP requests processed.",
	}, []string{"method", "path", "status"})

	// RequestDuration observes HTTP request latency.
	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "kestrel_http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path"})

	// PipelineRuns counts pipeline fits by tenant and outcome.
	PipelineRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kestrel_pipeline_runs_total",
		Help: "Pipeline runs by outcome.",
	}, []string{"tenant", "outcome"})

	// PipelineDuration observes end-to-end pipeline fit duration.
	PipelineDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "kestrel_pipeline_duration_seconds",
		Help:    "End-to-end pipeline fit duration.",
		Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300},
	})

	// ScoresTotal counts scoring calls by tenant.
	ScoresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kestrel_scores_total",
		Help: "Scoring calls by tenant.",
	}, []string{"tenant"})

	// QualityViolations counts quality rule violations by rule.
	QualityViolations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kestrel_quality_violations_total",
		Help: "Quality rule violations by rule id.",
	}, []string{"rule"})
)
