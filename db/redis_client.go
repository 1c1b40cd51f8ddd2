package db

import (
	"context"
	"errors"
	"time"
)

// ErrKeyNotFound is returned by Get when the key does not exist.
var ErrKeyNotFound = errors.New("key not found")

// GeoMember is a geo index member with its position and, for radius
// queries, its distance from the center in km.
type GeoMember struct {
	Name       string
	Longitude  float64
	Latitude   float64
	DistanceKm float64
}

// RedisClient defines the cache operations the application uses.
type RedisClient interface {
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	Expire(ctx context.Context, key string, ttl time.Duration) error
	GeoAdd(ctx context.Context, geoKey, member string, lon, lat float64) error
	GeoMembers(ctx context.Context, geoKey string) ([]string, error)
	GeoRemove(ctx context.Context, geoKey string, members ...string) error
	GeoPositions(ctx context.Context, geoKey string) ([]GeoMember, error)
	GetLocationsWithinRadius(ctx context.Context, geoKey string, lon, lat, radiusKm float64) ([]GeoMember, error)
	PushCapped(ctx context.Context, key, value string, max int64) error
	Range(ctx context.Context, key string, start, stop int64) ([]string, error)
	Ping(ctx context.Context) error
	Close() error
}
