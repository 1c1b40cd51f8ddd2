package services

import (
	"context"
	"time"

	"events-cache/apperrors"
	"events-cache/config"
	"events-cache/dao/redis"
	"events-cache/logging"
	"events-cache/metrics"
	"events-cache/models"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// ErrRateLimited is returned when a cache miss cannot be recomputed right now.
var ErrRateLimited = apperrors.CacheUnavailable("cache miss recompute rate limited", nil)

// EventsService serves cached snapshots to consumers, recomputing on a miss.
type EventsService struct {
	source  EventSource
	cache   EventCache
	cfg     config.RefreshConfig
	loc     *time.Location
	limiter *rate.Limiter
	group   singleflight.Group
	now     func() time.Time
}

func NewEventsService(
	source EventSource,
	cache EventCache,
	cfg config.RefreshConfig,
	fallback config.FallbackConfig,
	loc *time.Location,
) *EventsService {
	if loc == nil {
		loc = time.UTC
	}
	perSecond := rate.Limit(fallback.RatePerMinute / 60)
	return &EventsService{
		source:  source,
		cache:   cache,
		cfg:     cfg,
		loc:     loc,
		limiter: rate.NewLimiter(perSecond, fallback.Burst),
		now:     time.Now,
	}
}

func (es *EventsService) currentWindow() models.RefreshWindow {
	return ComputeRefreshWindow(es.now(), es.cfg.BoundaryHour, es.loc)
}

// GetDailyEvents returns the snapshot of the current window. On a miss the
// snapshot is recomputed from the source without any status bookkeeping and
// written back best-effort. Concurrent misses share one recompute.
func (es *EventsService) GetDailyEvents(ctx context.Context) (*models.Snapshot, error) {
	window := es.currentWindow()
	key := redis.SnapshotKey(window.Date())

	snapshot, err := es.cache.ReadSnapshot(ctx, key)
	switch {
	case err != nil:
		metrics.CacheLookupsTotal.WithLabelValues("error").Inc()
		logging.Warn().Err(err).Str("key", key).Msg("[EventsService] cache read failed, recomputing")
	case snapshot != nil:
		metrics.CacheLookupsTotal.WithLabelValues("hit").Inc()
		return snapshot, nil
	default:
		metrics.CacheLookupsTotal.WithLabelValues("miss").Inc()
	}

	v, err, _ := es.group.Do(key, func() (interface{}, error) {
		return es.recompute(ctx, window)
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.Snapshot), nil
}

func (es *EventsService) recompute(ctx context.Context, window models.RefreshWindow) (*models.Snapshot, error) {
	if !es.limiter.Allow() {
		metrics.FallbackRecomputesTotal.WithLabelValues("rate_limited").Inc()
		return nil, ErrRateLimited
	}

	records, err := es.source.FetchEvents(ctx, window)
	if err != nil {
		metrics.FallbackRecomputesTotal.WithLabelValues("failed").Inc()
		return nil, err
	}
	events, err := NormalizeEvents(ctx, records)
	if err != nil {
		metrics.FallbackRecomputesTotal.WithLabelValues("failed").Inc()
		return nil, apperrors.Internal("normalization interrupted", err)
	}
	snapshot := models.NewSnapshot(window, events, es.now())
	metrics.FallbackRecomputesTotal.WithLabelValues("ok").Inc()

	date := window.Date()
	if err := es.cache.WriteSnapshot(ctx, redis.SnapshotKey(date), snapshot, es.cfg.SnapshotTTL); err != nil {
		logging.Warn().Err(err).Str("window", date).Msg("[EventsService] could not write back recomputed snapshot")
	}
	return &snapshot, nil
}

// GetWeeklyEvents reads the current calendar week straight from the source.
func (es *EventsService) GetWeeklyEvents(ctx context.Context) (models.RefreshWindow, []models.NormalizedEvent, error) {
	window := ComputeWeekWindow(es.now(), es.loc)
	records, err := es.source.FetchEvents(ctx, window)
	if err != nil {
		return window, nil, err
	}
	events, err := NormalizeEvents(ctx, records)
	if err != nil {
		return window, nil, apperrors.Internal("normalization interrupted", err)
	}
	return window, events, nil
}

// GetNearbyEvents returns today's indexed events within radiusKm of (lat, lon).
func (es *EventsService) GetNearbyEvents(ctx context.Context, lat, lon, radiusKm float64) ([]models.NearbyEvent, error) {
	date := es.currentWindow().Date()

	snapshot, err := es.cache.ReadSnapshot(ctx, redis.SnapshotKey(date))
	if err != nil {
		return nil, err
	}
	return es.cache.Nearby(ctx, redis.GeoKey(date), snapshot, lat, lon, radiusKm)
}

// GetGeoPoints returns the geo index of the current window.
func (es *EventsService) GetGeoPoints(ctx context.Context) (string, []models.GeoPoint, error) {
	date := es.currentWindow().Date()
	points, err := es.cache.GeoPoints(ctx, redis.GeoKey(date))
	return date, points, err
}

// Health pings the source and the cache; nil entries are healthy.
func (es *EventsService) Health(ctx context.Context) map[string]error {
	return map[string]error{
		"source": es.source.Ping(ctx),
		"cache":  es.cache.Ping(ctx),
	}
}
