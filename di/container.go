package di

import (
	"context"
	"fmt"
	"time"

	"events-cache/api"
	"events-cache/api/cronjob"
	"events-cache/config"
	"events-cache/dao/badger"
	"events-cache/dao/fixture"
	"events-cache/dao/postgres"
	"events-cache/dao/redis"
	"events-cache/db"
	"events-cache/logging"
	"events-cache/server"
	"events-cache/server/handlers"
	services "events-cache/service"
	"events-cache/supervisor"

	"github.com/gorilla/mux"
)

// Container holds all application dependencies.
type Container struct {
	Config                 *config.Config
	Location               *time.Location
	RedisProvider          *db.GoRedisProvider
	RedisEventDao          *redis.RedisEventDAO
	StatusStore            services.StatusStore
	EventSource            services.EventSource
	CronJobAPI             cronjob.CronJobAPI
	RunStatusTracker       *services.RunStatusTracker
	EventsRefresherService *services.EventsRefresherService
	EventsService          *services.EventsService
	ScheduleService        *services.ScheduleService
	MuxRouter              *mux.Router
	Router                 *server.Router
	EventsCacheHttpServer  *server.EventsCacheHttpServer

	closers []func()
}

// NewContainer initializes and wires up all dependencies. Nothing here
// dials Redis or Postgres; connections are made on first use.
func NewContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Caller: cfg.Logging.Caller})
	logging.Info().
		Str("source", cfg.Source.Kind).
		Str("status_store", cfg.Status.Store).
		Str("redis", cfg.Redis.Address()).
		Msg("[Container] initializing container")

	loc, err := cfg.Refresh.Location()
	if err != nil {
		return nil, err
	}
	c := &Container{Config: cfg, Location: loc}

	// Initialize Redis connection provider and event DAO
	c.RedisProvider = db.NewGoRedisProvider(cfg.Redis)
	c.closers = append(c.closers, func() { _ = c.RedisProvider.Close() })
	c.RedisEventDao = redis.NewRedisEventDAO(c.RedisProvider, cfg.Refresh.GeoWriteConcurrency, cfg.Redis.OpTimeout)

	// Initialize status store
	switch cfg.Status.Store {
	case config.STATUS_STORE_BADGER:
		store, err := badger.OpenBadgerStatusDAO(cfg.Status.BadgerPath, cfg.Status.HistorySize)
		if err != nil {
			c.Close()
			return nil, err
		}
		c.closers = append(c.closers, func() { _ = store.Close() })
		c.StatusStore = store
	default:
		c.StatusStore = redis.NewRedisStatusDAO(c.RedisProvider, cfg.Status.HistorySize, cfg.Redis.OpTimeout)
	}

	// Initialize event source
	switch cfg.Source.Kind {
	case config.SOURCE_KIND_FIXTURE:
		logging.Info().Str("path", cfg.Source.FixturePath).Msg("[Container] using fixture event source")
		c.EventSource = fixture.NewFixtureEventDAO(cfg.Source.FixturePath)
	default:
		source, err := postgres.OpenPostgresEventDAO(ctx, cfg.Source, loc)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("event source: %w", err)
		}
		c.closers = append(c.closers, source.Close)
		c.EventSource = source
	}

	// Initialize cron-job.org client, only when configured
	if cfg.CronJob.Enabled() {
		logging.Info().Str("job_id", cfg.CronJob.JobID).Msg("[Container] using cron-job.org status source")
		httpClient := api.NewHTTPClient(cfg.CronJob.BaseURL, cfg.CronJob.Timeout)
		c.CronJobAPI = cronjob.NewCronJobApiClient(httpClient, cfg.CronJob.APIKey, cfg.CronJob.JobID)
	}

	// Initialize service layer
	c.RunStatusTracker = services.NewRunStatusTracker(c.StatusStore)
	c.EventsRefresherService = services.NewEventsRefresherService(c.EventSource, c.RedisEventDao, c.RunStatusTracker, cfg.Refresh, loc)
	c.EventsService = services.NewEventsService(c.EventSource, c.RedisEventDao, cfg.Refresh, cfg.Fallback, loc)
	c.ScheduleService = services.NewScheduleService(c.StatusStore, c.RunStatusTracker, c.CronJobAPI, cfg.Refresh, loc)

	// Initialize handlers, router and server
	c.MuxRouter = mux.NewRouter()
	c.Router = server.NewRouter(
		handlers.NewRefreshHandler(c.EventsRefresherService),
		handlers.NewStatusHandler(c.ScheduleService, c.RunStatusTracker),
		handlers.NewEventsHandler(c.EventsService),
		handlers.NewHealthHandler(c.EventsService),
		c.MuxRouter,
	)
	c.EventsCacheHttpServer = server.NewEventsCacheHttpServer(c.Router, cfg.Server)

	return c, nil
}

// Supervisor builds the tree running the Redis provider and the HTTP server.
func (c *Container) Supervisor() *supervisor.SupervisorTree {
	tree := supervisor.NewSupervisorTree(supervisor.TreeConfig{ShutdownTimeout: c.Config.Server.ShutdownTimeout * 2})
	tree.AddDataService(c.RedisProvider)
	tree.AddAPIService(c.EventsCacheHttpServer)
	return tree
}

// Close releases every resource in reverse order of creation.
func (c *Container) Close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}
