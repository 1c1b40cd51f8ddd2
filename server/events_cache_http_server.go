package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"events-cache/config"
	"events-cache/logging"
)

type EventsCacheHttpServer struct {
	router *Router
	cfg    config.ServerConfig
}

func NewEventsCacheHttpServer(router *Router, cfg config.ServerConfig) *EventsCacheHttpServer {
	router.RegisterRoutes()
	return &EventsCacheHttpServer{
		router: router,
		cfg:    cfg,
	}
}

// Serve listens until ctx is done, then shuts down gracefully within the
// configured timeout.
func (s *EventsCacheHttpServer) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.router.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", srv.Addr).Msg("[EventsCacheHttpServer] starting server")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logging.Info().Msg("[EventsCacheHttpServer] shutting down the server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	logging.Info().Msg("[EventsCacheHttpServer] server exiting")
	return ctx.Err()
}

func (s *EventsCacheHttpServer) String() string {
	return "http-server"
}
