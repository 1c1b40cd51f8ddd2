package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"events-cache/config"
	"events-cache/dao/redis"
	"events-cache/db"
	"events-cache/models"
)

// fakeSource hands out a fixed set of records or a fixed error.
type fakeSource struct {
	mu      sync.Mutex
	records []models.EventRecord
	err     error
	delay   time.Duration
	calls   atomic.Int32
	pingErr error
}

func (f *fakeSource) FetchEvents(ctx context.Context, window models.RefreshWindow) ([]models.EventRecord, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]models.EventRecord(nil), f.records...), nil
}

func (f *fakeSource) Ping(ctx context.Context) error {
	return f.pingErr
}

func (f *fakeSource) set(records []models.EventRecord, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = records
	f.err = err
}

var testNow = time.Date(2024, 3, 10, 10, 0, 0, 0, time.UTC)

func testRefreshConfig() config.RefreshConfig {
	return config.RefreshConfig{
		CronSecret:          "s3cret",
		BoundaryHour:        4,
		Timezone:            "UTC",
		MaxRetries:          3,
		RetryDelay:          30 * time.Second,
		SnapshotTTL:         24 * time.Hour,
		AttemptTimeout:      time.Minute,
		GeoWriteConcurrency: 4,
	}
}

func sampleRecords() []models.EventRecord {
	return []models.EventRecord{
		{ID: "a", Title: "Gig", Latitude: models.NumberScalar(51.5), Longitude: models.TextScalar("-0.12")},
		{ID: "b", Title: "Talk", Latitude: models.Scalar{}, Longitude: models.TextScalar("-0.10")},
	}
}

type testHarness struct {
	source      *fakeSource
	cacheClient *db.MockRedisClient
	cacheProv   *db.StaticProvider
	statusStore *redis.RedisStatusDAO
	statusRaw   *db.MockRedisClient
	cache       *redis.RedisEventDAO
	tracker     *RunStatusTracker
	refresher   *EventsRefresherService
	sleeps      []time.Duration
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	h := &testHarness{
		source:      &fakeSource{records: sampleRecords()},
		cacheClient: db.NewMockRedisClient(),
		statusRaw:   db.NewMockRedisClient(),
	}
	h.cacheProv = db.NewStaticProvider(h.cacheClient)
	h.cache = redis.NewRedisEventDAO(h.cacheProv, 4, time.Second)
	h.statusStore = redis.NewRedisStatusDAO(db.NewStaticProvider(h.statusRaw), 10, time.Second)
	h.tracker = NewRunStatusTracker(h.statusStore)
	h.tracker.now = func() time.Time { return testNow }

	h.refresher = NewEventsRefresherService(h.source, h.cache, h.tracker, testRefreshConfig(), time.UTC)
	h.refresher.now = func() time.Time { return testNow }
	h.refresher.sleep = func(ctx context.Context, d time.Duration) error {
		h.sleeps = append(h.sleeps, d)
		return nil
	}
	return h
}

// useStatusStore rebuilds the tracker and refresher on top of store.
func (h *testHarness) useStatusStore(store StatusStore) {
	h.tracker = NewRunStatusTracker(store)
	h.tracker.now = func() time.Time { return testNow }
	sleep := h.refresher.sleep
	h.refresher = NewEventsRefresherService(h.source, h.cache, h.tracker, testRefreshConfig(), time.UTC)
	h.refresher.now = func() time.Time { return testNow }
	h.refresher.sleep = sleep
}

// rejectingStatusStore refuses writes of one particular state.
type rejectingStatusStore struct {
	StatusStore
	reject models.RunState
}

func (s *rejectingStatusStore) WriteStatus(ctx context.Context, status models.RunStatus) error {
	if status.Status == s.reject {
		return errors.New("OOM command not allowed")
	}
	return s.StatusStore.WriteStatus(ctx, status)
}

// forgetfulStatusStore accepts every write and keeps none of them.
type forgetfulStatusStore struct {
	writes int
}

func (s *forgetfulStatusStore) ReadStatus(ctx context.Context) (*models.RunStatus, error) {
	return nil, nil
}

func (s *forgetfulStatusStore) WriteStatus(ctx context.Context, status models.RunStatus) error {
	s.writes++
	return nil
}

func (s *forgetfulStatusStore) ListHistory(ctx context.Context, limit int) ([]models.RunStatus, error) {
	return nil, nil
}

func (s *forgetfulStatusStore) ReadSchedule(ctx context.Context) (*models.Schedule, error) {
	return nil, nil
}

func (s *forgetfulStatusStore) WriteSchedule(ctx context.Context, schedule models.Schedule) error {
	return nil
}
