// Vigia - Presence and Geo-Distribution Telemetry for PlenaVideo
// Copyright 2026 Plena Video
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/plenavideo/vigia

// Package metrics provides Prometheus instrumentation for the presence
// engine: heartbeat writes, aggregation cycles, reap cycles, and location
// provider lookups.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Heartbeat metrics
	HeartbeatsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigia_heartbeats_total",
			Help: "Total number of presence heartbeat writes",
		},
		[]string{"result"}, // "success", "failure"
	)

	HeartbeatsSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vigia_heartbeats_skipped_total",
			Help: "Heartbeat ticks skipped because the previous write was still in flight",
		},
	)

	HeartbeatDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vigia_heartbeat_duration_seconds",
			Help:    "Duration of presence heartbeat writes in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Aggregation metrics
	AggregationCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigia_aggregation_cycles_total",
			Help: "Total number of aggregation cycles",
		},
		[]string{"result"}, // "success", "failure"
	)

	AggregationSkipped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigia_aggregation_skipped_total",
			Help: "Aggregation triggers rejected by the overlap/spacing gate",
		},
		[]string{"trigger"}, // "timer", "manual"
	)

	AggregationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vigia_aggregation_duration_seconds",
			Help:    "Duration of aggregation cycles in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
	)

	OnlineTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vigia_online_total",
			Help: "Online client count from the last published snapshot",
		},
	)

	OnlineRegions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "vigia_online_regions",
			Help: "Distinct region count from the last published snapshot",
		},
	)

	// Reaper metrics
	ReapCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigia_reap_cycles_total",
			Help: "Total number of stale-record reap cycles",
		},
		[]string{"result"}, // "success", "failure"
	)

	ReapedPresences = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vigia_reaped_presences_total",
			Help: "Presence records demoted to offline by the reaper",
		},
	)

	ReapedSessions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vigia_reaped_sessions_total",
			Help: "Session records demoted to inactive by the reaper",
		},
	)

	// Location provider metrics
	GeoLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigia_geo_lookups_total",
			Help: "Location provider lookups by provider and result",
		},
		[]string{"provider", "result"}, // result: "success", "failure", "rejected"
	)

	GeoFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vigia_geo_fallbacks_total",
			Help: "Resolutions that exhausted every provider and used the default location",
		},
	)

	// Circuit breaker metrics
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vigia_geo_breaker_state",
			Help: "Circuit breaker state per provider (0=closed, 1=half-open, 2=open)",
		},
		[]string{"provider"},
	)

	// Store metrics
	StoreQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vigia_store_query_errors_total",
			Help: "Presence store query errors by operation",
		},
		[]string{"operation"},
	)
)
