// Package postgres reads the event records of a refresh window from the
// system of record.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"events-cache/apperrors"
	"events-cache/config"
	"events-cache/logging"
	"events-cache/metrics"
	"events-cache/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	gobreaker "github.com/sony/gobreaker/v2"
)

const sourceName = "postgres"

// breaker settings
const (
	breakerConsecutiveFailures = 5
	breakerOpenTimeout         = time.Minute
)

const selectEventsQuery = `SELECT id, title, category, venue_name, venue_address, start_local, end_local,
       lat, lon::text, phq_attendance::text, labels
  FROM %s
 WHERE start_local >= $1 AND start_local < $2
 ORDER BY start_local ASC`

// PostgresEventDAO fetches event records through a pgx pool guarded by a
// circuit breaker.
type PostgresEventDAO struct {
	pool         *pgxpool.Pool
	query        string
	loc          *time.Location
	queryTimeout time.Duration
	slowQuery    time.Duration
	cb           *gobreaker.CircuitBreaker[[]models.EventRecord]
}

// OpenPostgresEventDAO creates the pool. Connections are established lazily.
func OpenPostgresEventDAO(ctx context.Context, cfg config.SourceConfig, loc *time.Location) (*PostgresEventDAO, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = 2
	}
	poolCfg.MaxConns = int32(maxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	return NewPostgresEventDAO(pool, cfg, loc), nil
}

// NewPostgresEventDAO wraps an existing pool.
func NewPostgresEventDAO(pool *pgxpool.Pool, cfg config.SourceConfig, loc *time.Location) *PostgresEventDAO {
	if loc == nil {
		loc = time.UTC
	}
	metrics.SourceBreakerState.Set(0)

	cb := gobreaker.NewCircuitBreaker[[]models.EventRecord](gobreaker.Settings{
		Name:        "event-source",
		MaxRequests: 1,
		Timeout:     breakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerConsecutiveFailures
		},
		// a caller giving up is not a source failure
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().Str("from", from.String()).Str("to", to.String()).Msg("[PostgresEventDAO] circuit breaker state transition")
			metrics.SourceBreakerState.Set(float64(to))
		},
	})

	return &PostgresEventDAO{
		pool:         pool,
		query:        fmt.Sprintf(selectEventsQuery, pgx.Identifier{cfg.Table}.Sanitize()),
		loc:          loc,
		queryTimeout: cfg.QueryTimeout,
		slowQuery:    cfg.SlowQuery,
		cb:           cb,
	}
}

// FetchEvents returns every record whose start falls in the window, in
// ascending start order. Any failure yields SourceUnavailable and no records.
func (dao *PostgresEventDAO) FetchEvents(ctx context.Context, window models.RefreshWindow) ([]models.EventRecord, error) {
	started := time.Now()
	records, err := dao.cb.Execute(func() ([]models.EventRecord, error) {
		return dao.fetch(ctx, window)
	})
	elapsed := time.Since(started)
	metrics.RecordSourceQuery(sourceName, elapsed, err)

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			logging.Warn().Err(err).Msg("[PostgresEventDAO] request rejected by circuit breaker")
		}
		return nil, apperrors.SourceUnavailable("failed to fetch events", err)
	}

	if dao.slowQuery > 0 && elapsed > dao.slowQuery {
		logging.Warn().Dur("elapsed", elapsed).Int("rows", len(records)).Msg("[PostgresEventDAO] slow events query")
	}
	logging.Debug().Int("rows", len(records)).Str("window", window.Date()).Msg("[PostgresEventDAO] fetched events")
	return records, nil
}

func (dao *PostgresEventDAO) fetch(ctx context.Context, window models.RefreshWindow) ([]models.EventRecord, error) {
	if dao.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, dao.queryTimeout)
		defer cancel()
	}

	rows, err := dao.pool.Query(ctx, dao.query, wallClock(window.Start), wallClock(window.End))
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	records := []models.EventRecord{}
	for rows.Next() {
		var (
			rec        models.EventRecord
			start, end *time.Time
			lat        *float64
			lon        *string
			attendance *string
		)
		if err := rows.Scan(&rec.ID, &rec.Title, &rec.Category, &rec.VenueName, &rec.VenueAddress,
			&start, &end, &lat, &lon, &attendance, &rec.Labels); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		rec.StartLocal = dao.restamp(start)
		rec.EndLocal = dao.restamp(end)
		rec.Latitude = models.ScalarFromPtr(lat)
		rec.Longitude = models.ScalarFromPtr(lon)
		rec.Attendance = models.ScalarFromPtr(attendance)
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event rows: %w", err)
	}
	return records, nil
}

// restamp reads a zone-less timestamp as wall-clock time in the configured zone.
func (dao *PostgresEventDAO) restamp(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	local := time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), dao.loc)
	return &local
}

// wallClock drops the zone so the value compares against zone-less columns
// as the local wall-clock time.
func wallClock(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

// Ping checks that the database is reachable.
func (dao *PostgresEventDAO) Ping(ctx context.Context) error {
	if err := dao.pool.Ping(ctx); err != nil {
		return apperrors.SourceUnavailable("postgres ping failed", err)
	}
	return nil
}

func (dao *PostgresEventDAO) Close() {
	dao.pool.Close()
}
