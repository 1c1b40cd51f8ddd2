package cronjob

import (
	"context"

	"events-cache/models/cronjob"
)

// CronJobAPI reads the external trigger job that drives the refresh.
type CronJobAPI interface {
	GetJob(ctx context.Context) (*cronjob.JobDetails, error)
}
