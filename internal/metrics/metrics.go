// Package metrics holds the Prometheus collectors for the sync layer.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ObservationRequestsTotal counts per-station observation requests
	ObservationRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wss_observation_requests_total",
			Help: "Per-station observation requests issued by the coordinator",
		},
		[]string{"outcome"}, // success, error
	)

	// DedupSkippedTotal counts element requests suppressed within a run
	DedupSkippedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wss_dedup_skipped_elements_total",
			Help: "Elements not requested because the same element and window was already requested in the run",
		},
	)

	// RunsTotal counts coordinator runs by how they ended
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wss_coordinator_runs_total",
			Help: "Coordinator runs by result",
		},
		[]string{"result"}, // published, stale, abandoned
	)

	// RunDuration measures how long a full coordinator run took
	RunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "wss_coordinator_run_duration_seconds",
			Help:    "Time spent fetching all stations of one run",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		},
	)

	// MarkersPlacedTotal counts ABSENT -> PLACED transitions
	MarkersPlacedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wss_markers_placed_total",
			Help: "Station markers created",
		},
	)

	// MarkerRebuildsTotal counts full marker rebuilds caused by a new station set
	MarkerRebuildsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wss_marker_rebuilds_total",
			Help: "Full station marker rebuilds",
		},
	)

	// PopupUpsertsTotal counts location popup upserts
	PopupUpsertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wss_popup_upserts_total",
			Help: "Location popup upserts by transition",
		},
		[]string{"transition"}, // create, update
	)

	// SeriesCacheTotal counts aggregator memo lookups
	SeriesCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wss_series_cache_total",
			Help: "Chart series memo lookups",
		},
		[]string{"result"}, // hit, miss
	)

	// ProviderRequestsTotal counts outbound HTTP calls per provider
	ProviderRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wss_provider_requests_total",
			Help: "Outbound provider HTTP requests",
		},
		[]string{"provider", "status"}, // status: ok, retry, error, circuit_open
	)

	// HTTPRequestDuration measures view binding latency by path
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wss_http_request_duration_seconds",
			Help:    "View binding request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestsTotal counts view binding requests
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wss_http_requests_total",
			Help: "View binding requests",
		},
		[]string{"method", "path", "status"},
	)

	// SSEClients tracks connected event stream clients
	SSEClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "wss_sse_clients",
			Help: "Connected event stream clients",
		},
	)
)
