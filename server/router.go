package server

import (
	"net/http"

	"events-cache/server/handlers"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Router struct {
	refreshHandler *handlers.RefreshHandler
	statusHandler  *handlers.StatusHandler
	eventsHandler  *handlers.EventsHandler
	healthHandler  *handlers.HealthHandler
	router         *mux.Router
}

// NewRouter creates a router with the app's routes.
func NewRouter(
	refreshHandler *handlers.RefreshHandler,
	statusHandler *handlers.StatusHandler,
	eventsHandler *handlers.EventsHandler,
	healthHandler *handlers.HealthHandler,
	router *mux.Router) *Router {
	return &Router{
		refreshHandler: refreshHandler,
		statusHandler:  statusHandler,
		eventsHandler:  eventsHandler,
		healthHandler:  healthHandler,
		router:         router,
	}
}

func (r *Router) RegisterRoutes() {
	r.router.Use(metricsMiddleware)

	// expects Authorization: Bearer {cron secret}
	r.router.HandleFunc("/api/cron/update-cache", r.refreshHandler.UpdateCache).Methods(http.MethodPost)

	r.router.HandleFunc("/api/cron/status", r.statusHandler.GetStatus).Methods(http.MethodGet)
	// expects {"hour": int, "minute": int}
	r.router.HandleFunc("/api/cron/status", r.statusHandler.UpdateSchedule).Methods(http.MethodPost)
	// expects ?limit={int}
	r.router.HandleFunc("/api/cron/status/history", r.statusHandler.GetHistory).Methods(http.MethodGet)

	r.router.HandleFunc("/api/daily-events", r.eventsHandler.GetDailyEvents).Methods(http.MethodGet)
	r.router.HandleFunc("/api/events/week", r.eventsHandler.GetWeeklyEvents).Methods(http.MethodGet)
	// expects ?lat={latitude(float)}&lon={longitude(float)}&radius={km(float)}
	r.router.HandleFunc("/api/events/nearby", r.eventsHandler.GetNearbyEvents).Methods(http.MethodGet)
	r.router.HandleFunc("/api/events/map", r.eventsHandler.GetEventsMap).Methods(http.MethodGet)

	r.router.HandleFunc("/api/health", r.healthHandler.Health).Methods(http.MethodGet)
	r.router.HandleFunc("/ping", r.healthHandler.Ping).Methods(http.MethodGet)
	r.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
}

// Handler returns the underlying mux router.
func (r *Router) Handler() http.Handler {
	return r.router
}
