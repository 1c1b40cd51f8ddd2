package util

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func createTempFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestReadEventRecordsFromJSON(t *testing.T) {
	content := `[
		{"id": "e1", "title": "Jazz night", "category": "concerts", "lat": 51.5, "lon": "-0.12",
		 "start_local": "2024-03-09T20:00:00Z", "phq_attendance": 1200},
		{"id": "e2", "title": "Late show", "category": "comedy", "lat": null, "lon": "-0.10"}
	]`
	path := createTempFile(t, content)

	records, err := ReadEventRecordsFromJSON(path)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "Jazz night", records[0].Title)
	require.NotNil(t, records[0].StartLocal)
	assert.Equal(t, 20, records[0].StartLocal.Hour())
	assert.True(t, records[1].Latitude.IsNull())
}

func TestReadEventRecordsFromJSON_Errors(t *testing.T) {
	tests := []struct {
		name string
		path func(t *testing.T) string
	}{
		{"missing file", func(t *testing.T) string { return filepath.Join(t.TempDir(), "nope.json") }},
		{"invalid json", func(t *testing.T) string { return createTempFile(t, `{"id":`) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadEventRecordsFromJSON(tt.path(t))
			assert.Error(t, err)
		})
	}
}

func TestReadSnapshotFromJSON(t *testing.T) {
	path := createTempFile(t, `{"success": true, "data": [], "metadata": {"totalEvents": 0, "totalGeoPoints": 0}}`)

	snapshot, err := ReadSnapshotFromJSON(path)
	require.NoError(t, err)
	assert.True(t, snapshot.Success)
	assert.Empty(t, snapshot.Data)
}
