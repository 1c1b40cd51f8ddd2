package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"events-cache/apperrors"
	"events-cache/db"
	"events-cache/logging"
	"events-cache/metrics"
	"events-cache/models"

	"github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"
)

const EVENTS_SNAPSHOT_KEY_FORMAT = "events:%s"
const EVENTS_GEO_KEY_FORMAT = "geo:events:%s"

// SnapshotKey is the snapshot key of a window date (YYYY-MM-DD).
func SnapshotKey(date string) string {
	return fmt.Sprintf(EVENTS_SNAPSHOT_KEY_FORMAT, date)
}

// GeoKey is the geo index key of a window date (YYYY-MM-DD).
func GeoKey(date string) string {
	return fmt.Sprintf(EVENTS_GEO_KEY_FORMAT, date)
}

// RedisEventDAO writes and reads event snapshots and geo indexes.
type RedisEventDAO struct {
	provider       db.RedisProvider
	geoConcurrency int
	opTimeout      time.Duration
}

// NewRedisEventDAO initializes a RedisEventDAO. geoConcurrency bounds the
// number of in-flight point writes; opTimeout applies to every cache call.
func NewRedisEventDAO(provider db.RedisProvider, geoConcurrency int, opTimeout time.Duration) *RedisEventDAO {
	if geoConcurrency < 1 {
		geoConcurrency = 1
	}
	return &RedisEventDAO{provider: provider, geoConcurrency: geoConcurrency, opTimeout: opTimeout}
}

func (dao *RedisEventDAO) withClient(ctx context.Context, fn func(client db.RedisClient) error) error {
	client, err := dao.provider.Acquire(ctx)
	if err != nil {
		return apperrors.CacheUnavailable("cache connection unavailable", err)
	}
	err = fn(client)
	dao.provider.Release(client, err)
	return err
}

func (dao *RedisEventDAO) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if dao.opTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, dao.opTimeout)
}

// WriteGeoIndex upserts every point into geoKey, then removes members that
// are not part of points and sets ttl on the key. Every point is attempted;
// per-point failures land in the outcome. Pruning and expiry are best-effort.
// The returned error is only set when the cache cannot be reached at all.
func (dao *RedisEventDAO) WriteGeoIndex(ctx context.Context, geoKey string, points []models.GeoPoint, ttl time.Duration) (models.GeoWriteOutcome, error) {
	outcome := models.GeoWriteOutcome{
		Succeeded: []string{},
		Failed:    []models.GeoWriteFailure{},
	}

	err := dao.withClient(ctx, func(client db.RedisClient) error {
		errs := make([]error, len(points))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(dao.geoConcurrency)
		for i, p := range points {
			g.Go(func() error {
				opCtx, cancel := dao.opContext(gctx)
				defer cancel()
				errs[i] = client.GeoAdd(opCtx, geoKey, p.ID, p.Lon, p.Lat)
				return nil
			})
		}
		_ = g.Wait()

		keep := make(map[string]struct{}, len(points))
		var connErr error
		for i, p := range points {
			keep[p.ID] = struct{}{}
			if errs[i] == nil {
				outcome.Succeeded = append(outcome.Succeeded, p.ID)
				continue
			}
			failure := apperrors.GeoWriteFailed(p.ID, errs[i])
			logging.Warn().Err(failure).Str("key", geoKey).Str("event_id", p.ID).Msg("[RedisEventDAO] geo write failed")
			outcome.Failed = append(outcome.Failed, models.GeoWriteFailure{ID: p.ID, Reason: errs[i].Error()})
			if connErr == nil && db.IsConnectionError(errs[i]) {
				connErr = errs[i]
			}
		}

		outcome.Pruned = dao.prune(ctx, client, geoKey, keep)
		dao.expire(ctx, client, geoKey, ttl)

		// handed to Release so a broken connection gets replaced
		return connErr
	})

	metrics.RecordGeoWrites(len(outcome.Succeeded), len(outcome.Failed), len(outcome.Pruned))

	if err != nil && apperrors.Is(err, apperrors.KindCacheUnavailable) {
		return outcome, err
	}
	return outcome, nil
}

func (dao *RedisEventDAO) prune(ctx context.Context, client db.RedisClient, geoKey string, keep map[string]struct{}) []string {
	opCtx, cancel := dao.opContext(ctx)
	defer cancel()

	members, err := client.GeoMembers(opCtx, geoKey)
	if err != nil {
		logging.Warn().Err(err).Str("key", geoKey).Msg("[RedisEventDAO] could not list geo members for pruning")
		return nil
	}
	var stale []string
	for _, m := range members {
		if _, ok := keep[m]; !ok {
			stale = append(stale, m)
		}
	}
	if len(stale) == 0 {
		return nil
	}
	if err := client.GeoRemove(opCtx, geoKey, stale...); err != nil {
		logging.Warn().Err(err).Str("key", geoKey).Int("stale", len(stale)).Msg("[RedisEventDAO] could not prune geo members")
		return nil
	}
	logging.Info().Str("key", geoKey).Int("pruned", len(stale)).Msg("[RedisEventDAO] pruned stale geo members")
	return stale
}

func (dao *RedisEventDAO) expire(ctx context.Context, client db.RedisClient, key string, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	opCtx, cancel := dao.opContext(ctx)
	defer cancel()
	if err := client.Expire(opCtx, key, ttl); err != nil {
		logging.Warn().Err(err).Str("key", key).Msg("[RedisEventDAO] could not set expiry")
	}
}

// WriteSnapshot stores the serialized snapshot under key with ttl.
func (dao *RedisEventDAO) WriteSnapshot(ctx context.Context, key string, snapshot models.Snapshot, ttl time.Duration) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return apperrors.Internal("failed to marshal snapshot", err)
	}

	return dao.withClient(ctx, func(client db.RedisClient) error {
		opCtx, cancel := dao.opContext(ctx)
		defer cancel()
		if err := client.Set(opCtx, key, string(data), ttl); err != nil {
			return apperrors.CacheUnavailable(fmt.Sprintf("failed to write snapshot %s", key), err)
		}
		return nil
	})
}

// ReadSnapshot returns the snapshot under key, or nil on a cache miss.
func (dao *RedisEventDAO) ReadSnapshot(ctx context.Context, key string) (*models.Snapshot, error) {
	var snapshot *models.Snapshot
	err := dao.withClient(ctx, func(client db.RedisClient) error {
		opCtx, cancel := dao.opContext(ctx)
		defer cancel()

		str, err := client.Get(opCtx, key)
		if errors.Is(err, db.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return apperrors.CacheUnavailable(fmt.Sprintf("failed to read snapshot %s", key), err)
		}
		var s models.Snapshot
		if err := json.Unmarshal([]byte(str), &s); err != nil {
			return apperrors.Internal(fmt.Sprintf("failed to unmarshal snapshot %s", key), err)
		}
		snapshot = &s
		return nil
	})
	return snapshot, err
}

// GeoPoints returns every point of the geo index under geoKey.
func (dao *RedisEventDAO) GeoPoints(ctx context.Context, geoKey string) ([]models.GeoPoint, error) {
	var points []models.GeoPoint
	err := dao.withClient(ctx, func(client db.RedisClient) error {
		opCtx, cancel := dao.opContext(ctx)
		defer cancel()

		members, err := client.GeoPositions(opCtx, geoKey)
		if err != nil {
			return apperrors.CacheUnavailable(fmt.Sprintf("failed to read geo index %s", geoKey), err)
		}
		points = make([]models.GeoPoint, 0, len(members))
		for _, m := range members {
			points = append(points, models.GeoPoint{ID: m.Name, Lon: m.Longitude, Lat: m.Latitude})
		}
		return nil
	})
	return points, err
}

// Nearby returns the members of geoKey within radiusKm of (lat, lon), nearest
// first, joined with the matching events of the snapshot. Members without a
// snapshot record are returned with a nil Event.
func (dao *RedisEventDAO) Nearby(ctx context.Context, geoKey string, snapshot *models.Snapshot, lat, lon, radiusKm float64) ([]models.NearbyEvent, error) {
	var hits []db.GeoMember
	err := dao.withClient(ctx, func(client db.RedisClient) error {
		opCtx, cancel := dao.opContext(ctx)
		defer cancel()

		var err error
		hits, err = client.GetLocationsWithinRadius(opCtx, geoKey, lon, lat, radiusKm)
		if err != nil {
			return apperrors.CacheUnavailable(fmt.Sprintf("failed to query geo index %s", geoKey), err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	byID := map[string]*models.NormalizedEvent{}
	if snapshot != nil {
		for i := range snapshot.Data {
			byID[snapshot.Data[i].ID] = &snapshot.Data[i]
		}
	}

	results := make([]models.NearbyEvent, 0, len(hits))
	for _, h := range hits {
		results = append(results, models.NearbyEvent{ID: h.Name, DistanceKm: h.DistanceKm, Event: byID[h.Name]})
	}
	return results, nil
}

// Ping checks cache connectivity.
func (dao *RedisEventDAO) Ping(ctx context.Context) error {
	return dao.withClient(ctx, func(client db.RedisClient) error {
		opCtx, cancel := dao.opContext(ctx)
		defer cancel()
		if err := client.Ping(opCtx); err != nil {
			return apperrors.CacheUnavailable("cache ping failed", err)
		}
		return nil
	})
}
