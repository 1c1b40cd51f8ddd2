package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"events-cache/apperrors"
	"events-cache/logging"

	"github.com/goccy/go-json"
)

// retryAfter is advertised on 503 responses that are not refresh retries.
const retryAfter = 30 * time.Second

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn().Err(err).Msg("[Handlers] error encoding response")
	}
}

func setRetryAfter(w http.ResponseWriter, d time.Duration) {
	w.Header().Set("Retry-After", strconv.Itoa(int(d.Round(time.Second)/time.Second)))
}

// writeError maps an error onto its HTTP status. Only the message of an
// AppError reaches the client.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperrors.AppError
	if !errors.As(err, &appErr) {
		logging.Error().Err(err).Msg("[Handlers] unexpected error")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Internal server error"})
		return
	}
	if appErr.HTTPStatus == http.StatusServiceUnavailable {
		setRetryAfter(w, retryAfter)
	}
	if appErr.HTTPStatus >= http.StatusInternalServerError {
		logging.Error().Err(err).Msg("[Handlers] request failed")
	}
	writeJSON(w, appErr.HTTPStatus, errorResponse{Error: appErr.Msg})
}
