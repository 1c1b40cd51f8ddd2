package handlers

import (
	"net/http"

	services "events-cache/service"
)

type healthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components"`
}

type HealthHandler struct {
	events *services.EventsService
}

func NewHealthHandler(events *services.EventsService) *HealthHandler {
	return &HealthHandler{events: events}
}

// Health pings the event source and the cache.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	checks := h.events.Health(r.Context())

	res := healthResponse{Status: "ok", Components: make(map[string]string, len(checks))}
	code := http.StatusOK
	for name, err := range checks {
		if err != nil {
			res.Components[name] = err.Error()
			res.Status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		res.Components[name] = "ok"
	}
	writeJSON(w, code, res)
}

func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "pong"})
}
