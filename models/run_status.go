package models

import "time"

// RunState is the lifecycle state of a refresh attempt.
type RunState string

const (
	RunStatePending   RunState = "pending"
	RunStateRunning   RunState = "running"
	RunStateCompleted RunState = "completed"
	RunStateFailed    RunState = "failed"
)

// RunStatus is the current status record of the refresh job.
type RunStatus struct {
	Status      RunState   `json:"status"`
	LastRun     *time.Time `json:"lastRun"`
	EventsCount int        `json:"eventsCount"`
	RetryCount  int        `json:"retryCount"`
	Message     string     `json:"message"`
	RunID       string     `json:"runId,omitempty"`
	WindowDate  string     `json:"windowDate,omitempty"`
}

// DefaultRunStatus is the record synthesized when none exists yet.
func DefaultRunStatus() RunStatus {
	return RunStatus{
		Status:  RunStatePending,
		Message: "No refresh has run yet",
	}
}

// Schedule is the persisted daily trigger time.
type Schedule struct {
	Hour      int        `json:"hour"`
	Minute    int        `json:"minute"`
	Timezone  string     `json:"timezone"`
	NextRun   time.Time  `json:"nextRun"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty"`
}

// StatusView is what the status endpoint returns.
type StatusView struct {
	Status      string          `json:"status"`
	LastRun     *time.Time      `json:"lastRun"`
	NextRun     *time.Time      `json:"nextRun"`
	Message     string          `json:"message"`
	EventsCount int             `json:"eventsCount"`
	RetryCount  int             `json:"retryCount"`
	Source      string          `json:"source"`
	JobDetails  *CronJobDetails `json:"jobDetails,omitempty"`
}

// CronJobDetails mirrors the fields of an external cron job worth showing.
type CronJobDetails struct {
	Enabled         bool            `json:"enabled"`
	Title           string          `json:"title"`
	URL             string          `json:"url"`
	Schedule        CronJobSchedule `json:"schedule"`
	LastStatus      int             `json:"lastStatus"`
	LastDuration    int             `json:"lastDuration"`
	NotifyOnFailure bool            `json:"notifyOnFailure"`
	NotifyOnSuccess bool            `json:"notifyOnSuccess"`
	SaveResponses   bool            `json:"saveResponses"`
}

// CronJobSchedule is the job's matching values per field; -1 means every value.
type CronJobSchedule struct {
	Timezone string `json:"timezone"`
	Hours    []int  `json:"hours"`
	Minutes  []int  `json:"minutes"`
	MDays    []int  `json:"mdays"`
	Months   []int  `json:"months"`
	WDays    []int  `json:"wdays"`
}
