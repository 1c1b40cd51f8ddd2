package services

import (
	"context"
	"fmt"
	"time"

	"events-cache/api/cronjob"
	"events-cache/apperrors"
	"events-cache/config"
	"events-cache/logging"
	"events-cache/models"
	cronjobmodels "events-cache/models/cronjob"

	"github.com/go-playground/validator/v10"
)

const (
	StatusSourceLocal   = "local"
	StatusSourceCronJob = "cron-job.org"
)

// ScheduleRequest is the body of a schedule update. Pointers tell a missing
// field apart from zero.
type ScheduleRequest struct {
	Hour   *int `json:"hour" validate:"required,min=0,max=23"`
	Minute *int `json:"minute" validate:"required,min=0,max=59"`
}

// ScheduleService owns the daily trigger schedule and the status view.
type ScheduleService struct {
	store    StatusStore
	tracker  *RunStatusTracker
	cronAPI  cronjob.CronJobAPI
	cfg      config.RefreshConfig
	loc      *time.Location
	validate *validator.Validate
	now      func() time.Time
}

// NewScheduleService builds the service; cronAPI may be nil when no external
// status source is configured.
func NewScheduleService(
	store StatusStore,
	tracker *RunStatusTracker,
	cronAPI cronjob.CronJobAPI,
	cfg config.RefreshConfig,
	loc *time.Location,
) *ScheduleService {
	if loc == nil {
		loc = time.UTC
	}
	return &ScheduleService{
		store:    store,
		tracker:  tracker,
		cronAPI:  cronAPI,
		cfg:      cfg,
		loc:      loc,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		now:      time.Now,
	}
}

// NextRun is the next hour:minute in loc strictly after now.
func NextRun(hour, minute int, now time.Time, loc *time.Location) time.Time {
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, hour, minute, 0, 0, loc)
	}
	return next
}

// GetSchedule returns the persisted schedule, or the boundary-hour default,
// with NextRun computed from the current time.
func (ss *ScheduleService) GetSchedule(ctx context.Context) (models.Schedule, error) {
	schedule, err := ss.store.ReadSchedule(ctx)
	if err != nil {
		return models.Schedule{}, err
	}
	if schedule == nil {
		schedule = &models.Schedule{Hour: ss.cfg.BoundaryHour, Minute: 0}
	}
	schedule.Timezone = ss.loc.String()
	schedule.NextRun = NextRun(schedule.Hour, schedule.Minute, ss.now(), ss.loc)
	return *schedule, nil
}

// UpdateSchedule validates and persists a new daily time. Invalid input
// leaves the stored schedule untouched.
func (ss *ScheduleService) UpdateSchedule(ctx context.Context, req ScheduleRequest) (models.Schedule, error) {
	if err := ss.validate.Struct(req); err != nil {
		return models.Schedule{}, apperrors.ValidationFailed("hour must be 0-23 and minute 0-59", err)
	}

	now := ss.now()
	schedule := models.Schedule{
		Hour:      *req.Hour,
		Minute:    *req.Minute,
		Timezone:  ss.loc.String(),
		NextRun:   NextRun(*req.Hour, *req.Minute, now, ss.loc),
		UpdatedAt: &now,
	}
	if err := ss.store.WriteSchedule(ctx, schedule); err != nil {
		return models.Schedule{}, err
	}
	logging.Info().Int("hour", schedule.Hour).Int("minute", schedule.Minute).Time("next_run", schedule.NextRun).
		Msg("[ScheduleService] schedule updated")
	return schedule, nil
}

// StatusView describes the refresh job for a polling client. The external
// cron source wins when it answers; otherwise the local status record is
// used. It never fails.
func (ss *ScheduleService) StatusView(ctx context.Context) models.StatusView {
	if ss.cronAPI != nil {
		job, err := ss.cronAPI.GetJob(ctx)
		if err == nil {
			return cronJobView(job)
		}
		logging.Warn().Err(err).Msg("[ScheduleService] cron-job.org unavailable, using local status")
	}
	return ss.localView(ctx)
}

func (ss *ScheduleService) localView(ctx context.Context) models.StatusView {
	view := models.StatusView{Source: StatusSourceLocal}

	if schedule, err := ss.GetSchedule(ctx); err == nil {
		next := schedule.NextRun
		view.NextRun = &next
	} else {
		next := NextRun(ss.cfg.BoundaryHour, 0, ss.now(), ss.loc)
		view.NextRun = &next
	}

	status, err := ss.tracker.Read(ctx)
	if err != nil {
		logging.Warn().Err(err).Msg("[ScheduleService] could not read run status")
		status = models.DefaultRunStatus()
		status.Message = "Run status is temporarily unavailable"
	}
	view.Status = string(status.Status)
	view.LastRun = status.LastRun
	view.Message = status.Message
	view.EventsCount = status.EventsCount
	view.RetryCount = status.RetryCount
	return view
}

func unixPtr(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}

func cronJobView(job *cronjobmodels.JobDetails) models.StatusView {
	view := models.StatusView{
		LastRun: unixPtr(job.LastExecution),
		NextRun: unixPtr(job.NextExecution),
		Source:  StatusSourceCronJob,
		JobDetails: &models.CronJobDetails{
			Enabled:         job.Enabled,
			Title:           job.Title,
			URL:             job.URL,
			Schedule:        models.CronJobSchedule(job.Schedule),
			LastStatus:      job.LastStatus,
			LastDuration:    job.LastDuration,
			NotifyOnFailure: job.Notification.OnFailure,
			NotifyOnSuccess: job.Notification.OnSuccess,
			SaveResponses:   job.SaveResponses,
		},
	}
	switch {
	case !job.Enabled:
		view.Status = "disabled"
		view.Message = "Job is currently disabled on cron-job.org"
	case job.LastStatus == cronjobmodels.LastStatusOK:
		view.Status = string(models.RunStateCompleted)
		view.Message = "Last run completed successfully"
	default:
		view.Status = string(models.RunStateFailed)
		view.Message = fmt.Sprintf("Last run failed with status %d", job.LastStatus)
	}
	return view
}
