// burstguard - Spam Burst Detection and Mitigation
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/burstguard

// Package metrics exposes the Prometheus instrumentation for burstguard.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Detection Metrics
	ActionsObserved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burstguard_actions_observed_total",
			Help: "Total number of actions offered to the engine",
		},
		[]string{"type", "result"}, // result: "enqueued", "skipped", "rejected"
	)

	DetectionEvaluations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burstguard_detection_evaluations_total",
			Help: "Total number of burst evaluations",
		},
		[]string{"type", "tripped"},
	)

	DetectionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "burstguard_detection_duration_seconds",
			Help:    "Duration of a serialized detection pass including mitigation",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Mitigation Metrics
	MitigationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burstguard_mitigations_total",
			Help: "Total number of mitigation passes",
		},
		[]string{"type"},
	)

	MitigationStepFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burstguard_mitigation_step_failures_total",
			Help: "Failures of individual mitigation steps",
		},
		[]string{"step"}, // "restrict", "sweep", "remove", "archive", "incident", "audit"
	)

	ActionsRemoved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "burstguard_actions_removed_total",
			Help: "Total number of actions submitted for removal",
		},
	)

	// Scope Queue Metrics
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "burstguard_queue_depth",
			Help: "Number of pending work items across all scope queues",
		},
	)

	QueueWorkers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "burstguard_queue_workers",
			Help: "Number of live per-scope workers",
		},
	)

	QueueItemFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burstguard_queue_item_failures_total",
			Help: "Work items that returned an error or panicked",
		},
		[]string{"kind"}, // "error", "panic"
	)

	// Collaborator Metrics
	CollaboratorCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "burstguard_collaborator_call_duration_seconds",
			Help:    "Duration of calls to external collaborators",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"collaborator"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Intake Metrics
	IntakeMessages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burstguard_intake_messages_total",
			Help: "Messages received by the intake",
		},
		[]string{"source", "result"}, // result: "processed", "parse_failed", "invalid"
	)

	// Storage Metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duckdb_query_duration_seconds",
			Help:    "Duration of DuckDB queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duckdb_query_errors_total",
			Help: "Total number of DuckDB query errors",
		},
		[]string{"operation", "table"},
	)

	// API Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)
)

// RecordDBQuery records a DuckDB query duration and error.
func RecordDBQuery(operation, table string, duration time.Duration, err error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
	if err != nil {
		DBQueryErrors.WithLabelValues(operation, table).Inc()
	}
}

// RecordAPIRequest records an API request.
func RecordAPIRequest(method, endpoint, status string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordEvaluation records one detector evaluation.
func RecordEvaluation(actionType string, tripped bool) {
	label := "false"
	if tripped {
		label = "true"
	}
	DetectionEvaluations.WithLabelValues(actionType, label).Inc()
}

// RecordStepFailure records a failed mitigation step.
func RecordStepFailure(step string) {
	MitigationStepFailures.WithLabelValues(step).Inc()
}

// ObserveCollaborator records the duration of a collaborator call.
func ObserveCollaborator(name string, start time.Time) {
	CollaboratorCallDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
}

// RecordCircuitBreakerTransition records a breaker state change.
// States are encoded as 0=closed, 1=half-open, 2=open.
func RecordCircuitBreakerTransition(name, from, to string, toValue float64) {
	CircuitBreakerState.WithLabelValues(name).Set(toValue)
	CircuitBreakerTransitions.WithLabelValues(name, from, to).Inc()
}
