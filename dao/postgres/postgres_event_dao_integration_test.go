//go:build integration

package postgres

import (
	"context"
	"fmt"
	"os/exec"
	"testing"
	"time"

	"events-cache/config"
	"events-cache/models"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const schema = `
CREATE TABLE events_live (
	id             text PRIMARY KEY,
	title          text NOT NULL,
	category       text NOT NULL,
	venue_name     text,
	venue_address  text,
	start_local    timestamp,
	end_local      timestamp,
	lat            double precision,
	lon            text,
	phq_attendance bigint,
	labels         text[]
);
INSERT INTO events_live VALUES
	('e1', 'Jazz night', 'concerts', 'Ronnie''s', NULL, '2024-03-09 20:00', '2024-03-09 23:00', 51.5, '-0.12', 900719925474099312, '{music}'),
	('e2', 'Late show', 'comedy', NULL, NULL, '2024-03-10 02:00', NULL, NULL, '-0.10', NULL, NULL),
	('e3', 'Too early', 'sports', NULL, NULL, '2024-03-09 03:59', NULL, 51.4, '-0.2', 10, NULL),
	('e4', 'Next day', 'sports', NULL, NULL, '2024-03-10 04:00', NULL, 51.4, '-0.2', 10, NULL);
`

func startPostgres(t *testing.T, ctx context.Context) string {
	t.Helper()

	dockerCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if exec.CommandContext(dockerCtx, "docker", "info").Run() != nil {
		t.Skip("Skipping test: Docker not available")
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "events",
				"POSTGRES_PASSWORD": "events",
				"POSTGRES_DB":       "events",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(90 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("Warning: failed to terminate container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	return fmt.Sprintf("postgres://events:events@%s:%s/events?sslmode=disable", host, port.Port())
}

func TestPostgresEventDAO_FetchEvents(t *testing.T) {
	ctx := context.Background()
	dsn := startPostgres(t, ctx)

	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, schema)
	require.NoError(t, err)
	pool.Close()

	loc, err := time.LoadLocation("Europe/London")
	require.NoError(t, err)

	dao, err := OpenPostgresEventDAO(ctx, config.SourceConfig{
		DSN:          dsn,
		Table:        "events_live",
		MaxConns:     2,
		QueryTimeout: 10 * time.Second,
		SlowQuery:    2 * time.Second,
	}, loc)
	require.NoError(t, err)
	defer dao.Close()

	require.NoError(t, dao.Ping(ctx))

	window := models.RefreshWindow{
		Start: time.Date(2024, 3, 9, 4, 0, 0, 0, loc),
		End:   time.Date(2024, 3, 10, 3, 59, 59, 999_000_000, loc),
	}
	records, err := dao.FetchEvents(ctx, window)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "e1", records[0].ID)
	assert.Equal(t, "e2", records[1].ID)

	lat, ok := records[0].Latitude.Float()
	require.True(t, ok)
	assert.Equal(t, 51.5, lat)
	attendance, ok := records[0].Attendance.Text()
	require.True(t, ok)
	assert.Equal(t, "900719925474099312", attendance)
	assert.Equal(t, []string{"music"}, records[0].Labels)
	require.NotNil(t, records[0].StartLocal)
	assert.Equal(t, loc, records[0].StartLocal.Location())
	assert.Equal(t, 20, records[0].StartLocal.Hour())

	assert.True(t, records[1].Latitude.IsNull())
	assert.Nil(t, records[1].VenueName)
}
