package models

import "time"

// RefreshWindow is the half-open interval [Start, End) of one refresh cycle.
type RefreshWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Date is the calendar date of the window start in its own zone; cache keys
// are derived from it.
func (w RefreshWindow) Date() string {
	return w.Start.Format("2006-01-02")
}

// Contains reports whether t falls in [Start, End).
func (w RefreshWindow) Contains(t time.Time) bool {
	return !t.Before(w.Start) && t.Before(w.End)
}

// Snapshot is the cached payload of one refresh cycle.
type Snapshot struct {
	Success   bool              `json:"success"`
	Data      []NormalizedEvent `json:"data"`
	Timestamp time.Time         `json:"timestamp"`
	Metadata  SnapshotMetadata  `json:"metadata"`
}

type SnapshotMetadata struct {
	TimeRange      RefreshWindow `json:"timeRange"`
	TotalEvents    int           `json:"totalEvents"`
	TotalGeoPoints int           `json:"totalGeoPoints"`
}

// NewSnapshot builds a snapshot and its counts from normalized events.
func NewSnapshot(window RefreshWindow, events []NormalizedEvent, now time.Time) Snapshot {
	if events == nil {
		events = []NormalizedEvent{}
	}
	geoPoints := 0
	for _, e := range events {
		if e.Geometry != nil {
			geoPoints++
		}
	}
	return Snapshot{
		Success:   true,
		Data:      events,
		Timestamp: now,
		Metadata: SnapshotMetadata{
			TimeRange:      window,
			TotalEvents:    len(events),
			TotalGeoPoints: geoPoints,
		},
	}
}

// GeoPoints returns the indexable points of the snapshot in data order.
func (s Snapshot) GeoPoints() []GeoPoint {
	points := make([]GeoPoint, 0, s.Metadata.TotalGeoPoints)
	for _, e := range s.Data {
		if e.Geometry == nil {
			continue
		}
		points = append(points, GeoPoint{
			ID:  e.ID,
			Lon: e.Geometry.Coordinates[0],
			Lat: e.Geometry.Coordinates[1],
		})
	}
	return points
}
