package handlers

import (
	"net/http"
	"strconv"

	"events-cache/apperrors"
	services "events-cache/service"

	"github.com/goccy/go-json"
)

const (
	LIMIT_QUERY_ARG       = "limit"
	DEFAULT_HISTORY_LIMIT = 20
)

// StatusHandler exposes the refresh job status, its history and schedule.
type StatusHandler struct {
	schedule *services.ScheduleService
	tracker  *services.RunStatusTracker
}

func NewStatusHandler(schedule *services.ScheduleService, tracker *services.RunStatusTracker) *StatusHandler {
	return &StatusHandler{schedule: schedule, tracker: tracker}
}

// GetStatus always answers 200.
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.schedule.StatusView(r.Context()))
}

// UpdateSchedule expects {"hour": 0-23, "minute": 0-59}.
func (h *StatusHandler) UpdateSchedule(w http.ResponseWriter, r *http.Request) {
	var req services.ScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperrors.ValidationFailed("Invalid request body", err))
		return
	}

	schedule, err := h.schedule.UpdateSchedule(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"message":  "Schedule updated",
		"schedule": schedule,
	})
}

// GetHistory expects an optional ?limit={int}.
func (h *StatusHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	limit := DEFAULT_HISTORY_LIMIT
	if raw := r.URL.Query().Get(LIMIT_QUERY_ARG); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, apperrors.ValidationFailed("limit must be a positive integer", err))
			return
		}
		limit = n
	}

	history, err := h.tracker.History(r.Context(), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"history": history})
}
