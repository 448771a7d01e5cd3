// Package model holds the shared data types of the correlation engine.
package model

import (
	"encoding/json"
	"time"
)

// PositionFix is a single GNSS-derived position observation. It is created by
// the parser and never mutated afterwards.
type PositionFix struct {
	Latitude   float64
	Longitude  float64
	Elevation  *float64 // meters, nil when the message carried no elevation
	ReceivedAt time.Time
}

// HasElevation reports whether the fix carries an elevation.
func (f PositionFix) HasElevation() bool {
	return f.Elevation != nil
}

// Hole is a drillhole with an API-provided location. Identity is ExternalID,
// unique within a project.
type Hole struct {
	ExternalID string
	Name       string
	Latitude   *float64
	Longitude  *float64
	Elevation  *float64
}

// HasCoordinates reports whether the hole has both latitude and longitude.
func (h Hole) HasCoordinates() bool {
	return h.Latitude != nil && h.Longitude != nil
}

// holeJSON mirrors the wire layouts the hole API is known to produce:
// flat gps_lat/gps_lon/gps_elevation keys, or a nested "gps" object.
// The hole identifier arrives as "hole_id" (string) or "id" (number or string).
type holeJSON struct {
	ID     json.Number `json:"id"`
	HoleID string      `json:"hole_id"`
	Name   string      `json:"name"`

	GpsLat  *float64 `json:"gps_lat"`
	GpsLon  *float64 `json:"gps_lon"`
	GpsElev *float64 `json:"gps_elevation"`

	GPS *struct {
		Lat       *float64 `json:"lat"`
		Lon       *float64 `json:"lon"`
		Elevation *float64 `json:"elevation"`
	} `json:"gps"`
}

// UnmarshalJSON decodes a hole from either accepted wire layout. Flat keys win
// over the nested object when both are present.
func (h *Hole) UnmarshalJSON(data []byte) error {
	var raw holeJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	h.Name = raw.Name
	h.ExternalID = raw.HoleID
	if h.ExternalID == "" {
		h.ExternalID = raw.ID.String()
	}

	h.Latitude = raw.GpsLat
	h.Longitude = raw.GpsLon
	h.Elevation = raw.GpsElev
	if h.Latitude == nil && raw.GPS != nil {
		h.Latitude = raw.GPS.Lat
		h.Longitude = raw.GPS.Lon
		h.Elevation = raw.GPS.Elevation
	}
	return nil
}

// TelemetrySample is one drilling measurement from the sensor pipeline.
type TelemetrySample struct {
	Speed      float64 // instantaneous drilling speed, m/s
	Depth      float64 // meters
	CapturedAt time.Time
}

// CorrelationStats counts the work done by the correlation service. Mutated
// only under the service's stats lock; snapshots are returned by value.
type CorrelationStats struct {
	MessagesReceived uint64
	FixesProcessed   uint64
	HolesUpdated     uint64
	LastUpdate       time.Time
	LastFix          *PositionFix
}

// DeliveryStats counts telemetry delivery attempts by the queue worker.
type DeliveryStats struct {
	Sent     uint64
	Failed   uint64
	LastSend time.Time
}
