// Package fixture serves event records from a JSON file, for local runs
// without a database.
package fixture

import (
	"context"
	"sort"
	"time"

	"events-cache/apperrors"
	"events-cache/logging"
	"events-cache/metrics"
	"events-cache/models"
	"events-cache/util"
)

const sourceName = "fixture"

// FixtureEventDAO reads the fixture on every fetch so edits are picked up.
type FixtureEventDAO struct {
	path string
}

func NewFixtureEventDAO(path string) *FixtureEventDAO {
	return &FixtureEventDAO{path: path}
}

// FetchEvents returns the fixture records starting inside the window,
// ascending by start. Records without a start time are skipped.
func (dao *FixtureEventDAO) FetchEvents(ctx context.Context, window models.RefreshWindow) ([]models.EventRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.SourceUnavailable("fixture read canceled", err)
	}

	started := time.Now()
	all, err := util.ReadEventRecordsFromJSON(dao.path)
	metrics.RecordSourceQuery(sourceName, time.Since(started), err)
	if err != nil {
		return nil, apperrors.SourceUnavailable("failed to read event fixture", err)
	}

	records := []models.EventRecord{}
	for _, r := range all {
		if r.StartLocal == nil || !window.Contains(*r.StartLocal) {
			continue
		}
		records = append(records, r)
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].StartLocal.Before(*records[j].StartLocal)
	})

	logging.Debug().Int("rows", len(records)).Str("path", dao.path).Msg("[FixtureEventDAO] fetched events")
	return records, nil
}

// Ping checks that the fixture is readable.
func (dao *FixtureEventDAO) Ping(ctx context.Context) error {
	if _, err := util.ReadEventRecordsFromJSON(dao.path); err != nil {
		return apperrors.SourceUnavailable("event fixture unreadable", err)
	}
	return nil
}
