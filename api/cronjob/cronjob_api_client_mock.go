package cronjob

import (
	"context"

	"events-cache/models/cronjob"
)

// CronJobApiClientMock returns fixed job details, or Err when set.
type CronJobApiClientMock struct {
	Details *cronjob.JobDetails
	Err     error
	Calls   int
}

// NewCronJobApiClientMock creates a mock answering with details.
func NewCronJobApiClientMock(details *cronjob.JobDetails) *CronJobApiClientMock {
	return &CronJobApiClientMock{Details: details}
}

func (c *CronJobApiClientMock) GetJob(ctx context.Context) (*cronjob.JobDetails, error) {
	c.Calls++
	if c.Err != nil {
		return nil, c.Err
	}
	if c.Details == nil {
		return nil, ErrNoJobDetails
	}
	return c.Details, nil
}
