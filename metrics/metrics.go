// Package metrics holds the Prometheus collectors of the service.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Refresh cycle metrics
	RefreshRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_refresh_runs_total",
			Help: "Total number of refresh attempts by final state",
		},
		[]string{"state"}, // "completed", "retry_scheduled", "failed", "unauthorized"
	)

	RefreshDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "events_refresh_duration_seconds",
			Help:    "Duration of refresh attempts in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	RefreshLastSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "events_refresh_last_success_timestamp",
			Help: "Unix timestamp of the last completed refresh",
		},
	)

	RefreshEvents = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "events_refresh_events",
			Help: "Number of events in the last completed snapshot",
		},
	)

	RefreshGeoPoints = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "events_refresh_geo_points",
			Help: "Number of geo points in the last completed snapshot",
		},
	)

	// Geo index metrics
	GeoWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_geo_writes_total",
			Help: "Total number of geo index point writes by result",
		},
		[]string{"result"}, // "ok", "failed"
	)

	GeoPrunedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "events_geo_pruned_total",
			Help: "Total number of stale geo index members removed",
		},
	)

	// Source metrics
	SourceQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "events_source_query_duration_seconds",
			Help:    "Duration of event source queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	SourceQueryErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_source_query_errors_total",
			Help: "Total number of failed event source queries",
		},
		[]string{"source"},
	)

	SourceBreakerState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "events_source_breaker_state",
			Help: "Circuit breaker state of the event source (0=closed, 1=half-open, 2=open)",
		},
	)

	// Cache read path metrics
	CacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_cache_lookups_total",
			Help: "Total number of snapshot lookups by result",
		},
		[]string{"result"}, // "hit", "miss", "error"
	)

	FallbackRecomputesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_fallback_recomputes_total",
			Help: "Total number of cache-miss recomputes by result",
		},
		[]string{"result"}, // "ok", "failed", "rate_limited"
	)

	// HTTP metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "events_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "events_api_request_duration_seconds",
			Help:    "Duration of API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// RecordRefresh records the outcome of one refresh attempt.
func RecordRefresh(state string, duration time.Duration, events, geoPoints int) {
	RefreshRunsTotal.WithLabelValues(state).Inc()
	RefreshDuration.Observe(duration.Seconds())
	if state == "completed" {
		RefreshLastSuccess.Set(float64(time.Now().Unix()))
		RefreshEvents.Set(float64(events))
		RefreshGeoPoints.Set(float64(geoPoints))
	}
}

// RecordGeoWrites adds a batch outcome to the geo write counters.
func RecordGeoWrites(succeeded, failed, pruned int) {
	GeoWritesTotal.WithLabelValues("ok").Add(float64(succeeded))
	GeoWritesTotal.WithLabelValues("failed").Add(float64(failed))
	GeoPrunedTotal.Add(float64(pruned))
}

// RecordSourceQuery records an event source query.
func RecordSourceQuery(source string, duration time.Duration, err error) {
	SourceQueryDuration.WithLabelValues(source).Observe(duration.Seconds())
	if err != nil {
		SourceQueryErrors.WithLabelValues(source).Inc()
	}
}

// RecordAPIRequest records an API request metric
func RecordAPIRequest(method, route string, status int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
