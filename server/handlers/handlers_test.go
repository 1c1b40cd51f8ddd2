package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"events-cache/apperrors"
	"events-cache/config"
	"events-cache/dao/redis"
	"events-cache/db"
	"events-cache/models"
	services "events-cache/service"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSource struct {
	mu      sync.Mutex
	records []models.EventRecord
	err     error
}

func (s *stubSource) FetchEvents(ctx context.Context, window models.RefreshWindow) ([]models.EventRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records, s.err
}

func (s *stubSource) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *stubSource) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

type testEnv struct {
	source    *stubSource
	client    *db.MockRedisClient
	provider  *db.StaticProvider
	tracker   *services.RunStatusTracker
	refresh   *RefreshHandler
	status    *StatusHandler
	events    *EventsHandler
	health    *HealthHandler
	refresher *services.EventsRefresherService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg := config.RefreshConfig{
		CronSecret:          "s3cret",
		BoundaryHour:        4,
		Timezone:            "UTC",
		MaxRetries:          3,
		RetryDelay:          30 * time.Second,
		SnapshotTTL:         24 * time.Hour,
		AttemptTimeout:      time.Minute,
		GeoWriteConcurrency: 2,
	}
	env := &testEnv{
		source: &stubSource{records: []models.EventRecord{
			{ID: "a", Title: "Gig", Latitude: models.NumberScalar(51.5), Longitude: models.TextScalar("-0.12")},
			{ID: "b", Title: "Talk", Longitude: models.TextScalar("-0.10")},
		}},
		client: db.NewMockRedisClient(),
	}
	env.provider = db.NewStaticProvider(env.client)
	cache := redis.NewRedisEventDAO(env.provider, 2, time.Second)
	store := redis.NewRedisStatusDAO(env.provider, 10, time.Second)

	env.tracker = services.NewRunStatusTracker(store)
	env.refresher = services.NewEventsRefresherService(env.source, cache, env.tracker, cfg, time.UTC)
	eventsService := services.NewEventsService(env.source, cache, cfg, config.FallbackConfig{RatePerMinute: 600, Burst: 10}, time.UTC)
	scheduleService := services.NewScheduleService(store, env.tracker, nil, cfg, time.UTC)

	env.refresh = NewRefreshHandler(env.refresher)
	env.status = NewStatusHandler(scheduleService, env.tracker)
	env.events = NewEventsHandler(eventsService)
	env.health = NewHealthHandler(eventsService)
	return env
}

func serve(h http.HandlerFunc, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	return out
}

func TestRefreshHandler_UpdateCache_Auth(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		status  int
		message string
	}{
		{"missing header", "", http.StatusUnauthorized, "Unauthorized"},
		{"wrong scheme", "Token s3cret", http.StatusUnauthorized, "Unauthorized"},
		{"wrong token", "Bearer nope", http.StatusUnauthorized, "Invalid token"},
		{"valid", "Bearer s3cret", http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			headers := map[string]string{}
			if tt.header != "" {
				headers["Authorization"] = tt.header
			}

			rr := serve(env.refresh.UpdateCache, http.MethodPost, "/api/cron/update-cache", "", headers)

			assert.Equal(t, tt.status, rr.Code)
			if tt.message != "" {
				assert.Equal(t, tt.message, decode(t, rr)["error"])
			}
		})
	}
}

func TestRefreshHandler_UpdateCache_UnauthorizedLeavesStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	require.NoError(t, env.tracker.MarkCompleted(ctx, "r0", "2024-03-09", 3))
	before, err := env.client.Get(ctx, redis.CRON_STATUS_KEY)
	require.NoError(t, err)

	rr := serve(env.refresh.UpdateCache, http.MethodPost, "/api/cron/update-cache", "", map[string]string{"Authorization": "Bearer bad"})
	require.Equal(t, http.StatusUnauthorized, rr.Code)

	after, err := env.client.Get(ctx, redis.CRON_STATUS_KEY)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestRefreshHandler_UpdateCache_Success(t *testing.T) {
	env := newTestEnv(t)

	rr := serve(env.refresh.UpdateCache, http.MethodPost, "/api/cron/update-cache", "", map[string]string{"Authorization": "Bearer s3cret"})

	require.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(2), body["eventsCount"])
	assert.Equal(t, float64(1), body["geoPoints"])
	assert.Equal(t, float64(0), body["geoFailures"])
}

func TestRefreshHandler_UpdateCache_HighLoad(t *testing.T) {
	env := newTestEnv(t)
	saturated := db.NewStaticProvider(db.NewMockRedisClient())
	saturated.AcquireErr = errors.New("ERR max number of clients reached")
	cfg := config.RefreshConfig{CronSecret: "s3cret", BoundaryHour: 4, MaxRetries: 3, RetryDelay: 30 * time.Second,
		SnapshotTTL: time.Hour, AttemptTimeout: time.Minute, GeoWriteConcurrency: 2}
	refresher := services.NewEventsRefresherService(env.source, redis.NewRedisEventDAO(saturated, 2, time.Second), env.tracker, cfg, time.UTC)

	rr := serve(NewRefreshHandler(refresher).UpdateCache, http.MethodPost, "/api/cron/update-cache", "",
		map[string]string{"Authorization": "Bearer s3cret"})

	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	body := decode(t, rr)
	assert.Equal(t, true, body["highLoad"])
	assert.Equal(t, float64(1), body["retryCount"])
}

func TestRefreshHandler_UpdateCache_RetryThenTerminal(t *testing.T) {
	env := newTestEnv(t)
	env.source.fail(apperrors.SourceUnavailable("connection refused", nil))
	auth := map[string]string{"Authorization": "Bearer s3cret"}

	for i := 1; i <= 3; i++ {
		rr := serve(env.refresh.UpdateCache, http.MethodPost, "/api/cron/update-cache", "", auth)
		require.Equal(t, http.StatusServiceUnavailable, rr.Code)
		assert.Equal(t, "30", rr.Header().Get("Retry-After"))
		body := decode(t, rr)
		assert.Equal(t, float64(i), body["retryCount"])
		assert.Equal(t, float64(3), body["maxRetries"])
		assert.Equal(t, false, body["highLoad"])
		assert.NotEmpty(t, body["nextRetry"])
	}

	rr := serve(env.refresh.UpdateCache, http.MethodPost, "/api/cron/update-cache", "", auth)
	require.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "Failed to cache events after all retries", decode(t, rr)["error"])
}

func TestStatusHandler_GetStatus_Default(t *testing.T) {
	env := newTestEnv(t)

	rr := serve(env.status.GetStatus, http.MethodGet, "/api/cron/status", "", nil)

	require.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	assert.Equal(t, "pending", body["status"])
	assert.Equal(t, "local", body["source"])
	assert.NotNil(t, body["nextRun"])
}

func TestStatusHandler_UpdateSchedule(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
	}{
		{"valid", `{"hour": 5, "minute": 30}`, http.StatusOK},
		{"hour out of range", `{"hour": 24, "minute": 0}`, http.StatusBadRequest},
		{"minute out of range", `{"hour": 1, "minute": 75}`, http.StatusBadRequest},
		{"missing field", `{"hour": 1}`, http.StatusBadRequest},
		{"malformed", `{"hour":`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)

			rr := serve(env.status.UpdateSchedule, http.MethodPost, "/api/cron/status", tt.body, nil)

			assert.Equal(t, tt.status, rr.Code)
			_, err := env.client.Get(context.Background(), redis.CRON_SCHEDULE_KEY)
			if tt.status == http.StatusOK {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, db.ErrKeyNotFound)
			}
		})
	}
}

func TestStatusHandler_GetHistory(t *testing.T) {
	env := newTestEnv(t)
	auth := map[string]string{"Authorization": "Bearer s3cret"}
	serve(env.refresh.UpdateCache, http.MethodPost, "/api/cron/update-cache", "", auth)

	rr := serve(env.status.GetHistory, http.MethodGet, "/api/cron/status/history?limit=1", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	history := decode(t, rr)["history"].([]interface{})
	require.Len(t, history, 1)
	assert.Equal(t, "completed", history[0].(map[string]interface{})["status"])

	rr = serve(env.status.GetHistory, http.MethodGet, "/api/cron/status/history?limit=abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestEventsHandler_GetDailyEvents(t *testing.T) {
	env := newTestEnv(t)

	rr := serve(env.events.GetDailyEvents, http.MethodGet, "/api/daily-events", "", nil)

	require.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	assert.Equal(t, true, body["success"])
	metadata := body["metadata"].(map[string]interface{})
	assert.Equal(t, float64(2), metadata["totalEvents"])
	assert.Equal(t, float64(1), metadata["totalGeoPoints"])
}

func TestEventsHandler_GetDailyEvents_SourceDown(t *testing.T) {
	env := newTestEnv(t)
	env.source.fail(apperrors.SourceUnavailable("down", nil))

	rr := serve(env.events.GetDailyEvents, http.MethodGet, "/api/daily-events", "", nil)

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "Failed to fetch events", decode(t, rr)["error"])
}

func TestEventsHandler_GetDailyEvents_RateLimited(t *testing.T) {
	env := newTestEnv(t)
	env.client.FailOperation("Set", errors.New("READONLY"))
	env.events = NewEventsHandler(services.NewEventsService(env.source,
		redis.NewRedisEventDAO(env.provider, 2, time.Second), config.RefreshConfig{BoundaryHour: 4},
		config.FallbackConfig{RatePerMinute: 1, Burst: 1}, time.UTC))

	rr := serve(env.events.GetDailyEvents, http.MethodGet, "/api/daily-events", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)

	rr = serve(env.events.GetDailyEvents, http.MethodGet, "/api/daily-events", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, "30", rr.Header().Get("Retry-After"))
}

func TestEventsHandler_GetWeeklyEvents(t *testing.T) {
	env := newTestEnv(t)

	rr := serve(env.events.GetWeeklyEvents, http.MethodGet, "/api/events/week", "", nil)

	require.Equal(t, http.StatusOK, rr.Code)
	body := decode(t, rr)
	assert.Len(t, body["data"], 2)
}

func TestEventsHandler_GetNearbyEvents(t *testing.T) {
	env := newTestEnv(t)
	env.refresher.RefreshOnce(context.Background())

	tests := []struct {
		name   string
		query  string
		status int
		count  float64
	}{
		{"hit", "?lat=51.5&lon=-0.12&radius=2", http.StatusOK, 1},
		{"default radius", "?lat=51.5&lon=-0.12", http.StatusOK, 1},
		{"miss", "?lat=40.7&lon=-74.0&radius=2", http.StatusOK, 0},
		{"missing lat", "?lon=-0.12", http.StatusBadRequest, 0},
		{"bad lon", "?lat=51.5&lon=west", http.StatusBadRequest, 0},
		{"lat out of range", "?lat=91&lon=0", http.StatusBadRequest, 0},
		{"zero radius", "?lat=51.5&lon=-0.12&radius=0", http.StatusBadRequest, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := serve(env.events.GetNearbyEvents, http.MethodGet, "/api/events/nearby"+tt.query, "", nil)

			require.Equal(t, tt.status, rr.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, tt.count, decode(t, rr)["count"])
			}
		})
	}
}

func TestEventsHandler_GetEventsMap(t *testing.T) {
	env := newTestEnv(t)
	env.refresher.RefreshOnce(context.Background())

	rr := serve(env.events.GetEventsMap, http.MethodGet, "/api/events/map", "", nil)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rr.Body.String(), "1 indexed events")
}

func TestHealthHandler(t *testing.T) {
	env := newTestEnv(t)

	rr := serve(env.health.Health, http.MethodGet, "/api/health", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", decode(t, rr)["status"])

	env.provider.AcquireErr = context.DeadlineExceeded
	rr = serve(env.health.Health, http.MethodGet, "/api/health", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	body := decode(t, rr)
	assert.Equal(t, "degraded", body["status"])
	components := body["components"].(map[string]interface{})
	assert.Equal(t, "ok", components["source"])
	assert.NotEqual(t, "ok", components["cache"])
}

func TestHealthHandler_Ping(t *testing.T) {
	env := newTestEnv(t)

	rr := serve(env.health.Ping, http.MethodGet, "/ping", "", nil)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "pong", decode(t, rr)["message"])
}
