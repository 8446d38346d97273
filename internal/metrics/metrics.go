// Bunkr - Attendance Reconciliation and Sync Service
// Copyright 2026 devakesu
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/devakesu/bunkr

// Package metrics exposes Prometheus instrumentation for the sync engine:
// batch and per-user sync outcomes, circuit breaker state, provider call
// latency, store query timing, and API request counters.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Sync metrics
	SyncBatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sync_batch_duration_seconds",
			Help:    "Duration of one batch sync run in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
		},
	)

	SyncUsersProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_users_processed_total",
			Help: "Total users processed by sync batches",
		},
		[]string{"outcome"}, // "success", "error"
	)

	SyncBatchOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_batch_outcomes_total",
			Help: "Total batch runs by overall status",
		},
		[]string{"status"}, // "success", "partial", "failed"
	)

	SyncEntriesDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sync_entries_deleted_total",
			Help: "Tracked entries deleted by reconciliation",
		},
	)

	SyncConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sync_conflicts_total",
			Help: "Extra entries escalated to corrections",
		},
	)

	// Circuit breaker metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "from", "to"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Requests through the circuit breaker by result",
		},
		[]string{"name", "result"}, // "success", "failure", "rejected"
	)

	// Provider metrics
	ProviderRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "provider_request_duration_seconds",
			Help:    "External attendance portal request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	// Store metrics
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "store_query_duration_seconds",
			Help:    "Duration of record store queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	DBQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "store_query_errors_total",
			Help: "Total record store query errors",
		},
		[]string{"operation", "table"},
	)

	// API metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	// Notification metrics
	NotificationsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_dispatched_total",
			Help: "Notifications and emails dispatched by channel and result",
		},
		[]string{"channel", "result"}, // channel: "inapp", "email"
	)
)

// TrackDBQuery records the duration (and error, if any) of a store query.
// Use with defer:
//
//	defer metrics.TrackDBQuery("select", "tracked_entries", time.Now(), &err)
func TrackDBQuery(operation, table string, start time.Time, errp *error) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
	if errp != nil && *errp != nil {
		DBQueryErrors.WithLabelValues(operation, table).Inc()
	}
}
