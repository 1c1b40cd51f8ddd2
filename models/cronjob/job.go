package cronjob

// JobResponse is the body of GET /jobs/{id} on the cron-job.org API.
type JobResponse struct {
	JobDetails *JobDetails `json:"jobDetails"`
}

// JobDetails holds the job fields the status endpoint uses.
type JobDetails struct {
	JobID         int64        `json:"jobId"`
	Enabled       bool         `json:"enabled"`
	Title         string       `json:"title"`
	URL           string       `json:"url"`
	SaveResponses bool         `json:"saveResponses"`
	LastStatus    int          `json:"lastStatus"`
	LastDuration  int          `json:"lastDuration"`
	LastExecution int64        `json:"lastExecution"`
	NextExecution int64        `json:"nextExecution"`
	Notification  Notification `json:"notification"`
	Schedule      Schedule     `json:"schedule"`
}

type Notification struct {
	OnFailure bool `json:"onFailure"`
	OnSuccess bool `json:"onSuccess"`
	OnDisable bool `json:"onDisable"`
}

// Schedule lists the matching values per field; -1 means every value.
type Schedule struct {
	Timezone string `json:"timezone"`
	Hours    []int  `json:"hours"`
	Minutes  []int  `json:"minutes"`
	MDays    []int  `json:"mdays"`
	Months   []int  `json:"months"`
	WDays    []int  `json:"wdays"`
}

// LastStatusOK is the lastStatus value the status endpoint treats as a
// successful run.
const LastStatusOK = 200
