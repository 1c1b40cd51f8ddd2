package di

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"events-cache/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewContainer_FixtureAndBadger(t *testing.T) {
	dir := t.TempDir()
	fixturePath := filepath.Join(dir, "events.json")
	require.NoError(t, os.WriteFile(fixturePath, []byte(`[]`), 0o600))

	configPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(`
source:
  kind: fixture
  fixture_path: `+fixturePath+`
status:
  store: badger
  badger_path: `+filepath.Join(dir, "status")+`
logging:
  level: error
`), 0o600))

	cfg, err := config.Load(configPath)
	require.NoError(t, err)

	c, err := NewContainer(context.Background(), cfg)
	require.NoError(t, err)
	defer c.Close()

	assert.Nil(t, c.CronJobAPI)
	assert.NotNil(t, c.Supervisor())

	rr := httptest.NewRecorder()
	c.MuxRouter.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = httptest.NewRecorder()
	c.MuxRouter.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/cron/status", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}
