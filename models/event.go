package models

import "time"

// EventRecord is one row of the events table as read for a refresh cycle.
type EventRecord struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Category     string     `json:"category"`
	VenueName    *string    `json:"venue_name"`
	VenueAddress *string    `json:"venue_address"`
	StartLocal   *time.Time `json:"start_local"`
	EndLocal     *time.Time `json:"end_local"`
	Latitude     Scalar     `json:"lat"`
	Longitude    Scalar     `json:"lon"`
	Attendance   Scalar     `json:"phq_attendance"`
	Labels       []string   `json:"labels"`
}

// NormalizedEvent is the transport form of an EventRecord. Coordinates are
// plain numbers here; Geometry is nil unless both parsed.
type NormalizedEvent struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	Category     string         `json:"category"`
	VenueName    *string        `json:"venue_name"`
	VenueAddress *string        `json:"venue_address"`
	StartLocal   *time.Time     `json:"start_local"`
	EndLocal     *time.Time     `json:"end_local"`
	Latitude     *float64       `json:"lat"`
	Longitude    *float64       `json:"lon"`
	Attendance   *string        `json:"phq_attendance"`
	Labels       []string       `json:"labels"`
	Geometry     *PointGeometry `json:"geometry"`
}

// PointGeometry is a GeoJSON point; Coordinates are [longitude, latitude].
type PointGeometry struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

// Coordinate is either a valid (lon, lat) pair or invalid.
type Coordinate struct {
	Lon   float64
	Lat   float64
	valid bool
}

// ValidCoordinate builds a valid coordinate.
func ValidCoordinate(lon, lat float64) Coordinate {
	return Coordinate{Lon: lon, Lat: lat, valid: true}
}

// InvalidCoordinate is the coordinate of a record that cannot be placed.
func InvalidCoordinate() Coordinate {
	return Coordinate{}
}

func (c Coordinate) Valid() bool {
	return c.valid
}

// Geometry returns the point geometry, or nil when invalid.
func (c Coordinate) Geometry() *PointGeometry {
	if !c.valid {
		return nil
	}
	return &PointGeometry{Type: "Point", Coordinates: [2]float64{c.Lon, c.Lat}}
}

// GeoPoint is one entry of the geo index.
type GeoPoint struct {
	ID  string  `json:"id"`
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// GeoWriteFailure records why a point was not indexed.
type GeoWriteFailure struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// GeoWriteOutcome is the partial result of a geo index batch.
type GeoWriteOutcome struct {
	Succeeded []string          `json:"succeeded"`
	Failed    []GeoWriteFailure `json:"failed"`
	// Pruned lists members removed because they are no longer in the batch.
	Pruned []string `json:"pruned,omitempty"`
}

// NearbyEvent is a geo index hit joined with its snapshot record.
type NearbyEvent struct {
	ID         string           `json:"id"`
	DistanceKm float64          `json:"distanceKm"`
	Event      *NormalizedEvent `json:"event"`
}
