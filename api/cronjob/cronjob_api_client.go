package cronjob

import (
	"context"
	"errors"
	"fmt"

	"events-cache/api"
	"events-cache/models/cronjob"
)

// ErrNoJobDetails is returned when the API answers without job details.
var ErrNoJobDetails = errors.New("cron-job.org response has no job details")

// CronJobApiClient embeds the common HTTPClient
type CronJobApiClient struct {
	*api.HTTPClient
	apiKey string
	jobID  string
}

// NewCronJobApiClient creates a client for a single job.
func NewCronJobApiClient(httpClient *api.HTTPClient, apiKey, jobID string) *CronJobApiClient {
	return &CronJobApiClient{
		HTTPClient: httpClient,
		apiKey:     apiKey,
		jobID:      jobID,
	}
}

// GetJob retrieves the job details.
func (c *CronJobApiClient) GetJob(ctx context.Context) (*cronjob.JobDetails, error) {
	var response cronjob.JobResponse
	headers := map[string]string{"Authorization": "Bearer " + c.apiKey}
	if err := c.Request(ctx, "GET", "/jobs/"+c.jobID, headers, nil, &response); err != nil {
		return nil, fmt.Errorf("failed to get cron job %s: %w", c.jobID, err)
	}
	if response.JobDetails == nil {
		return nil, ErrNoJobDetails
	}
	return response.JobDetails, nil
}
