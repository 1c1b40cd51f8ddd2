package services

import (
	"context"
	"runtime"

	"events-cache/models"

	"golang.org/x/sync/errgroup"
)

// parseCoordinate builds the coordinate of a record; both components must
// parse to finite numbers.
func parseCoordinate(lat, lon models.Scalar) models.Coordinate {
	latV, okLat := lat.Float()
	lonV, okLon := lon.Float()
	if !okLat || !okLon {
		return models.InvalidCoordinate()
	}
	return models.ValidCoordinate(lonV, latV)
}

// NormalizeEvent derives the transport form of a record. It never fails: a
// record that cannot be placed keeps a nil geometry.
func NormalizeEvent(record models.EventRecord) models.NormalizedEvent {
	coord := parseCoordinate(record.Latitude, record.Longitude)

	event := models.NormalizedEvent{
		ID:           record.ID,
		Title:        record.Title,
		Category:     record.Category,
		VenueName:    record.VenueName,
		VenueAddress: record.VenueAddress,
		StartLocal:   record.StartLocal,
		EndLocal:     record.EndLocal,
		Labels:       record.Labels,
		Geometry:     coord.Geometry(),
	}
	if event.Labels == nil {
		event.Labels = []string{}
	}
	if lat, ok := record.Latitude.Float(); ok {
		event.Latitude = &lat
	}
	if lon, ok := record.Longitude.Float(); ok {
		event.Longitude = &lon
	}
	if attendance, ok := record.Attendance.Text(); ok {
		event.Attendance = &attendance
	}
	return event
}

// NormalizeEvents normalizes records in parallel, keeping source order.
func NormalizeEvents(ctx context.Context, records []models.EventRecord) ([]models.NormalizedEvent, error) {
	events := make([]models.NormalizedEvent, len(records))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := range records {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			events[i] = NormalizeEvent(records[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return events, nil
}
