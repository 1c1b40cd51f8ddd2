package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// GeoRedisClient implements RedisClient over go-redis.
type GeoRedisClient struct {
	client *redis.Client
}

// NewGeoRedisClient wraps an existing go-redis client.
func NewGeoRedisClient(client *redis.Client) *GeoRedisClient {
	return &GeoRedisClient{client: client}
}

// Set sets a key-value pair; ttl 0 means no expiration.
func (r *GeoRedisClient) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

// Get retrieves the value for a key, ErrKeyNotFound when it is missing.
func (r *GeoRedisClient) Get(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrKeyNotFound
	}
	return val, err
}

func (r *GeoRedisClient) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return r.client.Del(ctx, keys...).Err()
}

func (r *GeoRedisClient) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return r.client.Expire(ctx, key, ttl).Err()
}

// GeoAdd stores a member position. GEOADD replaces the position of an
// existing member, so repeated calls are idempotent.
func (r *GeoRedisClient) GeoAdd(ctx context.Context, geoKey, member string, lon, lat float64) error {
	if err := r.client.GeoAdd(ctx, geoKey, &redis.GeoLocation{
		Name:      member,
		Longitude: lon,
		Latitude:  lat,
	}).Err(); err != nil {
		return fmt.Errorf("failed to add geolocation: %w", err)
	}
	return nil
}

// GeoMembers lists all members of a geo set (a geo set is a sorted set).
func (r *GeoRedisClient) GeoMembers(ctx context.Context, geoKey string) ([]string, error) {
	return r.client.ZRange(ctx, geoKey, 0, -1).Result()
}

func (r *GeoRedisClient) GeoRemove(ctx context.Context, geoKey string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	return r.client.ZRem(ctx, geoKey, args...).Err()
}

// GeoPositions returns every member with its position.
func (r *GeoRedisClient) GeoPositions(ctx context.Context, geoKey string) ([]GeoMember, error) {
	names, err := r.GeoMembers(ctx, geoKey)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, nil
	}
	positions, err := r.client.GeoPos(ctx, geoKey, names...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read geo positions: %w", err)
	}
	members := make([]GeoMember, 0, len(names))
	for i, pos := range positions {
		if pos == nil {
			continue
		}
		members = append(members, GeoMember{Name: names[i], Longitude: pos.Longitude, Latitude: pos.Latitude})
	}
	return members, nil
}

// GetLocationsWithinRadius finds members within radiusKm of (lon, lat), nearest first.
func (r *GeoRedisClient) GetLocationsWithinRadius(ctx context.Context, geoKey string, lon, lat, radiusKm float64) ([]GeoMember, error) {
	results, err := r.client.GeoRadius(ctx, geoKey, lon, lat, &redis.GeoRadiusQuery{
		Radius:    radiusKm,
		Unit:      "km",
		WithCoord: true,
		WithDist:  true,
		Sort:      "ASC",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get nearby locations: %w", err)
	}

	members := make([]GeoMember, 0, len(results))
	for _, loc := range results {
		members = append(members, GeoMember{
			Name:       loc.Name,
			Longitude:  loc.Longitude,
			Latitude:   loc.Latitude,
			DistanceKm: loc.Dist,
		})
	}
	return members, nil
}

// PushCapped prepends value to a list and trims it to max entries.
func (r *GeoRedisClient) PushCapped(ctx context.Context, key, value string, max int64) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, key, value)
		pipe.LTrim(ctx, key, 0, max-1)
		return nil
	})
	return err
}

func (r *GeoRedisClient) Range(ctx context.Context, key string, start, stop int64) ([]string, error) {
	return r.client.LRange(ctx, key, start, stop).Result()
}

func (r *GeoRedisClient) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *GeoRedisClient) Close() error {
	return r.client.Close()
}
