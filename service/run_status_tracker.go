package services

import (
	"context"
	"fmt"
	"time"

	"events-cache/logging"
	"events-cache/models"
)

// StatusStore persists the run status record, its history and the schedule.
// Read methods return nil without error when nothing was stored yet.
type StatusStore interface {
	ReadStatus(ctx context.Context) (*models.RunStatus, error)
	WriteStatus(ctx context.Context, status models.RunStatus) error
	ListHistory(ctx context.Context, limit int) ([]models.RunStatus, error)
	ReadSchedule(ctx context.Context) (*models.Schedule, error)
	WriteSchedule(ctx context.Context, schedule models.Schedule) error
}

const (
	msgRunning        = "Cache update in progress"
	msgCompleted      = "Successfully cached %d events"
	msgRetryScheduled = "Failed to cache events. Retry %d/%d in %s."
	msgFailedTerminal = "Failed to cache events after all retries"
)

// RunStatusTracker reads and writes the status record of the refresh job.
// Writes are last-write-wins.
type RunStatusTracker struct {
	store StatusStore
	now   func() time.Time
}

func NewRunStatusTracker(store StatusStore) *RunStatusTracker {
	return &RunStatusTracker{store: store, now: time.Now}
}

// Read returns the current record, creating and persisting the default
// pending record when none exists.
func (t *RunStatusTracker) Read(ctx context.Context) (models.RunStatus, error) {
	status, err := t.store.ReadStatus(ctx)
	if err != nil {
		return models.RunStatus{}, err
	}
	if status != nil {
		return *status, nil
	}

	def := models.DefaultRunStatus()
	if err := t.store.WriteStatus(ctx, def); err != nil {
		logging.Warn().Err(err).Msg("[RunStatusTracker] could not persist default status")
	}
	return def, nil
}

// Peek returns the current record without creating one.
func (t *RunStatusTracker) Peek(ctx context.Context) (*models.RunStatus, error) {
	return t.store.ReadStatus(ctx)
}

func (t *RunStatusTracker) Write(ctx context.Context, status models.RunStatus) error {
	return t.store.WriteStatus(ctx, status)
}

func (t *RunStatusTracker) History(ctx context.Context, limit int) ([]models.RunStatus, error) {
	return t.store.ListHistory(ctx, limit)
}

func (t *RunStatusTracker) stamp(status models.RunStatus) models.RunStatus {
	now := t.now()
	status.LastRun = &now
	return status
}

// MarkRunning records the start of an attempt, keeping the retry count.
func (t *RunStatusTracker) MarkRunning(ctx context.Context, runID, windowDate string, retryCount int) error {
	return t.Write(ctx, t.stamp(models.RunStatus{
		Status:     models.RunStateRunning,
		RetryCount: retryCount,
		Message:    msgRunning,
		RunID:      runID,
		WindowDate: windowDate,
	}))
}

// MarkCompleted records a successful attempt and resets the retry count.
func (t *RunStatusTracker) MarkCompleted(ctx context.Context, runID, windowDate string, eventsCount int) error {
	return t.Write(ctx, t.stamp(models.RunStatus{
		Status:      models.RunStateCompleted,
		EventsCount: eventsCount,
		Message:     fmt.Sprintf(msgCompleted, eventsCount),
		RunID:       runID,
		WindowDate:  windowDate,
	}))
}

// MarkRetryScheduled records a transient failure that will be retried as
// attempt retryCount of maxRetries.
func (t *RunStatusTracker) MarkRetryScheduled(ctx context.Context, runID, windowDate string, retryCount, maxRetries int, delay time.Duration) error {
	return t.Write(ctx, t.stamp(models.RunStatus{
		Status:     models.RunStateFailed,
		RetryCount: retryCount,
		Message:    fmt.Sprintf(msgRetryScheduled, retryCount, maxRetries, formatDelay(delay)),
		RunID:      runID,
		WindowDate: windowDate,
	}))
}

// MarkFailedTerminal records a failure with no retries left. The retry count
// resets so the next cycle starts fresh.
func (t *RunStatusTracker) MarkFailedTerminal(ctx context.Context, runID, windowDate string) error {
	return t.Write(ctx, t.stamp(models.RunStatus{
		Status:     models.RunStateFailed,
		Message:    msgFailedTerminal,
		RunID:      runID,
		WindowDate: windowDate,
	}))
}

// formatDelay renders whole seconds as "30s" and anything else via Duration.
func formatDelay(d time.Duration) string {
	if d%time.Second == 0 {
		return fmt.Sprintf("%ds", int(d/time.Second))
	}
	return d.String()
}
