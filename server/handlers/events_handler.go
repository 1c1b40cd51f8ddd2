package handlers

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"events-cache/apperrors"
	"events-cache/logging"
	"events-cache/models"
	services "events-cache/service"
	"events-cache/util"
)

const (
	LAT_QUERY_ARG    = "lat"
	LON_QUERY_ARG    = "lon"
	RADIUS_QUERY_ARG = "radius"

	DEFAULT_RADIUS_KM = 5.0
	MAX_RADIUS_KM     = 500.0
)

type weeklyEventsResponse struct {
	Success  bool                     `json:"success"`
	Data     []models.NormalizedEvent `json:"data"`
	Metadata struct {
		TimeRange   models.RefreshWindow `json:"timeRange"`
		TotalEvents int                  `json:"totalEvents"`
	} `json:"metadata"`
}

type nearbyEventsResponse struct {
	Success bool                 `json:"success"`
	Data    []models.NearbyEvent `json:"data"`
	Count   int                  `json:"count"`
}

// EventsHandler serves cached events to dashboard consumers.
type EventsHandler struct {
	events *services.EventsService
}

func NewEventsHandler(events *services.EventsService) *EventsHandler {
	return &EventsHandler{events: events}
}

func (h *EventsHandler) GetDailyEvents(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.events.GetDailyEvents(r.Context())
	if apperrors.Is(err, apperrors.KindSourceUnavailable) {
		logging.Error().Err(err).Msg("[EventsHandler] recompute on cache miss failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "Failed to fetch events"})
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (h *EventsHandler) GetWeeklyEvents(w http.ResponseWriter, r *http.Request) {
	window, events, err := h.events.GetWeeklyEvents(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	res := weeklyEventsResponse{Success: true, Data: events}
	if res.Data == nil {
		res.Data = []models.NormalizedEvent{}
	}
	res.Metadata.TimeRange = window
	res.Metadata.TotalEvents = len(res.Data)
	writeJSON(w, http.StatusOK, res)
}

// GetNearbyEvents expects ?lat={float}&lon={float}&radius={km, optional}.
func (h *EventsHandler) GetNearbyEvents(w http.ResponseWriter, r *http.Request) {
	lat, lon, radius, err := parseNearbyArgs(r.URL.Query())
	if err != nil {
		writeError(w, err)
		return
	}

	hits, err := h.events.GetNearbyEvents(r.Context(), lat, lon, radius)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nearbyEventsResponse{Success: true, Data: hits, Count: len(hits)})
}

// GetEventsMap renders today's geo index as an HTML page.
func (h *EventsHandler) GetEventsMap(w http.ResponseWriter, r *http.Request) {
	date, points, err := h.events.GetGeoPoints(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := util.RenderGeoIndexMap(w, date, points); err != nil {
		logging.Error().Err(err).Msg("[EventsHandler] error rendering map")
	}
}

func parseNearbyArgs(vals url.Values) (lat, lon, radius float64, err error) {
	lat, err = parseFloatArg(vals, LAT_QUERY_ARG, -90, 90)
	if err != nil {
		return 0, 0, 0, err
	}
	lon, err = parseFloatArg(vals, LON_QUERY_ARG, -180, 180)
	if err != nil {
		return 0, 0, 0, err
	}

	radius = DEFAULT_RADIUS_KM
	if vals.Get(RADIUS_QUERY_ARG) != "" {
		radius, err = parseFloatArg(vals, RADIUS_QUERY_ARG, 0, MAX_RADIUS_KM)
		if err != nil {
			return 0, 0, 0, err
		}
		if radius == 0 {
			return 0, 0, 0, apperrors.ValidationFailed("radius must be greater than 0", nil)
		}
	}
	return lat, lon, radius, nil
}

func parseFloatArg(vals url.Values, name string, min, max float64) (float64, error) {
	raw := vals.Get(name)
	if raw == "" {
		return 0, apperrors.ValidationFailed(fmt.Sprintf("missing %s parameter", name), nil)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, apperrors.ValidationFailed(fmt.Sprintf("invalid %s parameter", name), err)
	}
	if v < min || v > max {
		return 0, apperrors.ValidationFailed(fmt.Sprintf("%s must be between %g and %g", name, min, max), nil)
	}
	return v, nil
}
