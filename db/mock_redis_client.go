package db

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"
)

// MockRedisClient simulates a Redis client for testing purposes.
type MockRedisClient struct {
	data    map[string]string            // Key-value store
	expiry  map[string]time.Duration     // Last TTL set per key
	geoData map[string]map[string]GeoLoc // Geolocation data
	lists   map[string][]string
	mu      sync.RWMutex

	// failures injected by tests
	opErrors     map[string]error
	geoAddErrors map[string]error
	geoAddCalls  int
}

// GeoLoc represents a geolocation with latitude and longitude.
type GeoLoc struct {
	Latitude  float64
	Longitude float64
}

// NewMockRedisClient initializes a new MockRedisClient.
func NewMockRedisClient() *MockRedisClient {
	return &MockRedisClient{
		data:         make(map[string]string),
		expiry:       make(map[string]time.Duration),
		geoData:      make(map[string]map[string]GeoLoc),
		lists:        make(map[string][]string),
		opErrors:     make(map[string]error),
		geoAddErrors: make(map[string]error),
	}
}

// FailOperation makes every call of op ("Set", "Get", "GeoAdd", ...) return err.
// A nil err clears the failure.
func (m *MockRedisClient) FailOperation(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.opErrors, op)
		return
	}
	m.opErrors[op] = err
}

// FailGeoAdd makes GeoAdd fail for a single member.
func (m *MockRedisClient) FailGeoAdd(member string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.geoAddErrors[member] = err
}

// GeoAddCalls returns how many GeoAdd calls were made.
func (m *MockRedisClient) GeoAddCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.geoAddCalls
}

// TTL returns the last expiration set for key.
func (m *MockRedisClient) TTL(key string) time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.expiry[key]
}

// must be called with mu held
func (m *MockRedisClient) opErr(op string) error {
	return m.opErrors[op]
}

func (m *MockRedisClient) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.opErr("Set"); err != nil {
		return err
	}
	m.data[key] = value
	m.expiry[key] = ttl
	return nil
}

func (m *MockRedisClient) Get(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.opErr("Get"); err != nil {
		return "", err
	}
	value, exists := m.data[key]
	if !exists {
		return "", ErrKeyNotFound
	}
	return value, nil
}

func (m *MockRedisClient) Del(ctx context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.opErr("Del"); err != nil {
		return err
	}
	for _, k := range keys {
		delete(m.data, k)
		delete(m.geoData, k)
		delete(m.lists, k)
		delete(m.expiry, k)
	}
	return nil
}

func (m *MockRedisClient) Expire(ctx context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.opErr("Expire"); err != nil {
		return err
	}
	m.expiry[key] = ttl
	return nil
}

func (m *MockRedisClient) GeoAdd(ctx context.Context, geoKey, member string, lon, lat float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.geoAddCalls++
	if err := m.opErr("GeoAdd"); err != nil {
		return err
	}
	if err := m.geoAddErrors[member]; err != nil {
		return err
	}
	if _, exists := m.geoData[geoKey]; !exists {
		m.geoData[geoKey] = make(map[string]GeoLoc)
	}
	m.geoData[geoKey][member] = GeoLoc{Latitude: lat, Longitude: lon}
	return nil
}

func (m *MockRedisClient) GeoMembers(ctx context.Context, geoKey string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.opErr("GeoMembers"); err != nil {
		return nil, err
	}
	members := make([]string, 0, len(m.geoData[geoKey]))
	for name := range m.geoData[geoKey] {
		members = append(members, name)
	}
	sort.Strings(members)
	return members, nil
}

func (m *MockRedisClient) GeoRemove(ctx context.Context, geoKey string, members ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.opErr("GeoRemove"); err != nil {
		return err
	}
	for _, name := range members {
		delete(m.geoData[geoKey], name)
	}
	return nil
}

func (m *MockRedisClient) GeoPositions(ctx context.Context, geoKey string) ([]GeoMember, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.opErr("GeoPositions"); err != nil {
		return nil, err
	}
	out := make([]GeoMember, 0, len(m.geoData[geoKey]))
	for name, loc := range m.geoData[geoKey] {
		out = append(out, GeoMember{Name: name, Longitude: loc.Longitude, Latitude: loc.Latitude})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// GetLocationsWithinRadius filters members by great-circle distance.
func (m *MockRedisClient) GetLocationsWithinRadius(ctx context.Context, geoKey string, lon, lat, radiusKm float64) ([]GeoMember, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.opErr("GetLocationsWithinRadius"); err != nil {
		return nil, err
	}
	var results []GeoMember
	for name, loc := range m.geoData[geoKey] {
		d := haversineKm(lat, lon, loc.Latitude, loc.Longitude)
		if d <= radiusKm {
			results = append(results, GeoMember{Name: name, Longitude: loc.Longitude, Latitude: loc.Latitude, DistanceKm: d})
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].DistanceKm < results[j].DistanceKm })
	return results, nil
}

func (m *MockRedisClient) PushCapped(ctx context.Context, key, value string, max int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.opErr("PushCapped"); err != nil {
		return err
	}
	list := append([]string{value}, m.lists[key]...)
	if int64(len(list)) > max {
		list = list[:max]
	}
	m.lists[key] = list
	return nil
}

func (m *MockRedisClient) Range(ctx context.Context, key string, start, stop int64) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.opErr("Range"); err != nil {
		return nil, err
	}
	list := m.lists[key]
	n := int64(len(list))
	if stop < 0 || stop >= n {
		stop = n - 1
	}
	if start >= n || start > stop {
		return []string{}, nil
	}
	return append([]string(nil), list[start:stop+1]...), nil
}

// Ping simulates a Redis Ping operation.
func (m *MockRedisClient) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.opErr("Ping")
}

func (m *MockRedisClient) Close() error {
	return nil
}

const earthRadiusKm = 6372.797560856

func haversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(a))
}
