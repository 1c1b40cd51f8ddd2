package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"
	"time"

	"events-cache/apperrors"
	"events-cache/config"
	"events-cache/dao/redis"
	"events-cache/logging"
	"events-cache/metrics"
	"events-cache/models"

	"github.com/google/uuid"
)

// EventSource reads the records of a refresh window from the system of record.
type EventSource interface {
	FetchEvents(ctx context.Context, window models.RefreshWindow) ([]models.EventRecord, error)
	Ping(ctx context.Context) error
}

// EventCache is the cache side of the pipeline: geo index and snapshots.
type EventCache interface {
	WriteGeoIndex(ctx context.Context, geoKey string, points []models.GeoPoint, ttl time.Duration) (models.GeoWriteOutcome, error)
	WriteSnapshot(ctx context.Context, key string, snapshot models.Snapshot, ttl time.Duration) error
	ReadSnapshot(ctx context.Context, key string) (*models.Snapshot, error)
	GeoPoints(ctx context.Context, geoKey string) ([]models.GeoPoint, error)
	Nearby(ctx context.Context, geoKey string, snapshot *models.Snapshot, lat, lon, radiusKm float64) ([]models.NearbyEvent, error)
	Ping(ctx context.Context) error
}

// RefreshState is the final state of one refresh attempt.
type RefreshState string

const (
	RefreshCompleted      RefreshState = "completed"
	RefreshRetryScheduled RefreshState = "retry_scheduled"
	RefreshFailed         RefreshState = "failed"
)

// RefreshResult describes one refresh attempt.
type RefreshResult struct {
	RunID       string
	Window      models.RefreshWindow
	State       RefreshState
	EventsCount int
	GeoPoints   int
	GeoOutcome  models.GeoWriteOutcome
	RetryCount  int
	MaxRetries  int
	// RetryAfter is the suggested wait before the next attempt.
	RetryAfter time.Duration
	Err        error
}

// EventsRefresherService runs the cache refresh cycle: fetch, normalize,
// index, snapshot, record status.
type EventsRefresherService struct {
	source  EventSource
	cache   EventCache
	tracker *RunStatusTracker
	cfg     config.RefreshConfig
	loc     *time.Location
	now     func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
}

// NewEventsRefresherService constructs a new refresher with its dependencies.
func NewEventsRefresherService(
	source EventSource,
	cache EventCache,
	tracker *RunStatusTracker,
	cfg config.RefreshConfig,
	loc *time.Location,
) *EventsRefresherService {
	if loc == nil {
		loc = time.UTC
	}
	return &EventsRefresherService{
		source:  source,
		cache:   cache,
		tracker: tracker,
		cfg:     cfg,
		loc:     loc,
		now:     time.Now,
		sleep:   sleepContext,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Authorize checks an Authorization header against the configured secret.
// An unset secret rejects every trigger.
func (er *EventsRefresherService) Authorize(header string) error {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		metrics.RefreshRunsTotal.WithLabelValues("unauthorized").Inc()
		return apperrors.Unauthorized("Unauthorized")
	}
	token := strings.TrimPrefix(header, prefix)
	if er.cfg.CronSecret == "" || subtle.ConstantTimeCompare([]byte(token), []byte(er.cfg.CronSecret)) != 1 {
		metrics.RefreshRunsTotal.WithLabelValues("unauthorized").Inc()
		return apperrors.Unauthorized("Invalid token")
	}
	return nil
}

// CurrentWindow is the window the refresh would operate on right now.
func (er *EventsRefresherService) CurrentWindow() models.RefreshWindow {
	return ComputeRefreshWindow(er.now(), er.cfg.BoundaryHour, er.loc)
}

// RefreshOnce performs a single attempt and records its outcome.
func (er *EventsRefresherService) RefreshOnce(ctx context.Context) RefreshResult {
	return er.refresh(ctx, 0)
}

// refresh runs one attempt. minRetry is the retry count the caller already
// knows about; the stored count can only raise it.
func (er *EventsRefresherService) refresh(ctx context.Context, minRetry int) RefreshResult {
	started := time.Now()
	result := RefreshResult{
		RunID:      uuid.NewString(),
		Window:     er.CurrentWindow(),
		MaxRetries: er.cfg.MaxRetries,
	}
	date := result.Window.Date()
	log := logging.With("EventsRefresherService").With().Str("run_id", result.RunID).Str("window", date).Logger()

	// Without the stored retry count a failure cannot be retried safely.
	retryable := true
	prior := 0
	if status, err := er.tracker.Read(ctx); err != nil {
		log.Warn().Err(err).Msg("[EventsRefresherService] could not read prior status, failures will not be retried")
		retryable = false
	} else {
		prior = status.RetryCount
	}
	prior = max(prior, minRetry)
	result.RetryCount = prior

	if err := er.tracker.MarkRunning(ctx, result.RunID, date, prior); err != nil {
		log.Warn().Err(err).Msg("[EventsRefresherService] could not record running status")
	}
	log.Info().Int("retry_count", prior).Msg("[EventsRefresherService] refresh started")

	attemptCtx, cancel := context.WithTimeout(ctx, er.cfg.AttemptTimeout)
	defer cancel()

	snapshot, outcome, err := er.run(attemptCtx, result.Window)
	if err == nil {
		if werr := er.tracker.MarkCompleted(ctx, result.RunID, date, snapshot.Metadata.TotalEvents); werr != nil {
			err = apperrors.CacheUnavailable("failed to record completed status", werr)
		}
	}
	if err != nil {
		result.GeoOutcome = outcome
		result = er.fail(ctx, result, err, retryable)
		metrics.RecordRefresh(string(result.State), time.Since(started), 0, 0)
		return result
	}

	result.State = RefreshCompleted
	result.EventsCount = snapshot.Metadata.TotalEvents
	result.GeoPoints = snapshot.Metadata.TotalGeoPoints
	result.GeoOutcome = outcome
	result.RetryCount = 0

	metrics.RecordRefresh(string(result.State), time.Since(started), result.EventsCount, result.GeoPoints)
	log.Info().
		Int("events", result.EventsCount).
		Int("geo_points", result.GeoPoints).
		Int("geo_failures", len(outcome.Failed)).
		Dur("elapsed", time.Since(started)).
		Msg("[EventsRefresherService] refresh completed")
	return result
}

// run is the pipeline proper; it writes the cache but never the status.
func (er *EventsRefresherService) run(ctx context.Context, window models.RefreshWindow) (models.Snapshot, models.GeoWriteOutcome, error) {
	records, err := er.source.FetchEvents(ctx, window)
	if err != nil {
		return models.Snapshot{}, models.GeoWriteOutcome{}, err
	}

	events, err := NormalizeEvents(ctx, records)
	if err != nil {
		return models.Snapshot{}, models.GeoWriteOutcome{}, apperrors.SourceUnavailable("normalization interrupted", err)
	}
	snapshot := models.NewSnapshot(window, events, er.now())

	date := window.Date()
	outcome, err := er.cache.WriteGeoIndex(ctx, redis.GeoKey(date), snapshot.GeoPoints(), er.cfg.SnapshotTTL)
	if err != nil {
		return models.Snapshot{}, outcome, err
	}

	if err := er.cache.WriteSnapshot(ctx, redis.SnapshotKey(date), snapshot, er.cfg.SnapshotTTL); err != nil {
		return models.Snapshot{}, outcome, err
	}
	return snapshot, outcome, nil
}

// fail decides between retry and terminal failure and records it. A retry
// is only scheduled once the status store has accepted its retry count.
func (er *EventsRefresherService) fail(ctx context.Context, result RefreshResult, err error, retryable bool) RefreshResult {
	date := result.Window.Date()
	log := logging.With("EventsRefresherService").With().Str("run_id", result.RunID).Str("window", date).Logger()

	if retryable && apperrors.IsTransient(err) && result.RetryCount < er.cfg.MaxRetries {
		next := result.RetryCount + 1
		werr := er.tracker.MarkRetryScheduled(ctx, result.RunID, date, next, er.cfg.MaxRetries, er.cfg.RetryDelay)
		if werr == nil {
			result.Err = err
			result.State = RefreshRetryScheduled
			result.RetryCount = next
			result.RetryAfter = er.cfg.RetryDelay
			log.Warn().Err(err).
				Int("retry_count", result.RetryCount).
				Int("max_retries", er.cfg.MaxRetries).
				Msg("[EventsRefresherService] refresh failed, retry scheduled")
			return result
		}
		log.Error().Err(werr).Msg("[EventsRefresherService] could not record retry status, not retrying")
		err = errors.Join(err, apperrors.CacheUnavailable("failed to record retry status", werr))
	}

	result.Err = err
	result.State = RefreshFailed
	result.RetryCount = 0
	if werr := er.tracker.MarkFailedTerminal(ctx, result.RunID, date); werr != nil {
		log.Warn().Err(werr).Msg("[EventsRefresherService] could not record failed status")
	}
	log.Error().Err(err).Msg("[EventsRefresherService] refresh failed after all retries")
	return result
}

// RunWithRetries repeats the refresh while a retry is scheduled, waiting
// RetryAfter between attempts. It returns the last result. Attempts are
// counted here as well, so a status store that loses writes cannot extend
// the cycle past MaxRetries.
func (er *EventsRefresherService) RunWithRetries(ctx context.Context) RefreshResult {
	attempts := 0
	for {
		result := er.refresh(ctx, attempts)
		if result.State != RefreshRetryScheduled {
			return result
		}
		attempts = result.RetryCount
		logging.Info().Dur("retry_after", result.RetryAfter).Int("retry_count", result.RetryCount).
			Msg("[EventsRefresherService] waiting before next attempt")
		if err := er.sleep(ctx, result.RetryAfter); err != nil {
			return result
		}
	}
}
