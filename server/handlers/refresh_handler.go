package handlers

import (
	"net/http"
	"time"

	"events-cache/apperrors"
	services "events-cache/service"
)

type refreshSucceeded struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	EventsCount int    `json:"eventsCount"`
	GeoPoints   int    `json:"geoPoints"`
	GeoFailures int    `json:"geoFailures"`
}

type refreshRetry struct {
	Error      string    `json:"error"`
	RetryCount int       `json:"retryCount"`
	MaxRetries int       `json:"maxRetries"`
	NextRetry  time.Time `json:"nextRetry"`
	HighLoad   bool      `json:"highLoad"`
}

// RefreshHandler serves the cron trigger of the cache refresh.
type RefreshHandler struct {
	refresher *services.EventsRefresherService
}

func NewRefreshHandler(refresher *services.EventsRefresherService) *RefreshHandler {
	return &RefreshHandler{refresher: refresher}
}

// UpdateCache authorizes the caller and runs one refresh attempt.
func (h *RefreshHandler) UpdateCache(w http.ResponseWriter, r *http.Request) {
	if err := h.refresher.Authorize(r.Header.Get("Authorization")); err != nil {
		writeError(w, err)
		return
	}

	result := h.refresher.RefreshOnce(r.Context())

	switch result.State {
	case services.RefreshCompleted:
		writeJSON(w, http.StatusOK, refreshSucceeded{
			Success:     true,
			Message:     "Events cached successfully",
			EventsCount: result.EventsCount,
			GeoPoints:   result.GeoPoints,
			GeoFailures: len(result.GeoOutcome.Failed),
		})
	case services.RefreshRetryScheduled:
		setRetryAfter(w, result.RetryAfter)
		writeJSON(w, http.StatusServiceUnavailable, refreshRetry{
			Error:      "Cache update failed, will retry",
			RetryCount: result.RetryCount,
			MaxRetries: result.MaxRetries,
			NextRetry:  time.Now().Add(result.RetryAfter).UTC(),
			HighLoad:   apperrors.IsHighLoad(result.Err),
		})
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Failed to cache events after all retries"})
	}
}
