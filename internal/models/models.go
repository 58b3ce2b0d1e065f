package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
)

// Station represents a bike-share dock with the traffic counted for the
// active time window
type Station struct {
	ShortName    string    `json:"short_name"`
	StationID    string    `json:"station_id,omitempty"`
	Name         string    `json:"name,omitempty"`
	Capacity     int       `json:"capacity,omitempty"`
	Location     orb.Point `json:"-"`
	Arrivals     int       `json:"arrivals"`
	Departures   int       `json:"departures"`
	TotalTraffic int       `json:"total_traffic"`
}

// Lon returns the station longitude
func (s Station) Lon() float64 { return s.Location.Lon() }

// Lat returns the station latitude
func (s Station) Lat() float64 { return s.Location.Lat() }

// Trip represents a single rental between two stations
type Trip struct {
	StartStationID string    `json:"start_station_id"`
	EndStationID   string    `json:"end_station_id"`
	StartedAt      time.Time `json:"started_at"`
	EndedAt        time.Time `json:"ended_at"`
}

// ScreenPoint is a position in viewport pixel space
type ScreenPoint struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Marker holds the attributes the overlay renders for one station
type Marker struct {
	StationID      string      `json:"station_id"`
	Name           string      `json:"name,omitempty"`
	Location       orb.Point   `json:"-"`
	Position       ScreenPoint `json:"position"`
	Radius         float64     `json:"radius"`
	DepartureRatio float64     `json:"departure_ratio"`
	Title          string      `json:"title"`
	Arrivals       int         `json:"arrivals"`
	Departures     int         `json:"departures"`
	TotalTraffic   int         `json:"total_traffic"`
}

// MarkerTitle formats the hover text for a station
func MarkerTitle(total, departures, arrivals int) string {
	return fmt.Sprintf("%d trips (%d departures, %d arrivals)", total, departures, arrivals)
}

// MarkerResponse is the API response format for a marker
type MarkerResponse struct {
	StationID      string     `json:"station_id"`
	Name           string     `json:"name,omitempty"`
	Location       [2]float64 `json:"location"`
	CX             float64    `json:"cx"`
	CY             float64    `json:"cy"`
	R              float64    `json:"r"`
	DepartureRatio float64    `json:"departure_ratio"`
	Title          string     `json:"title"`
	Arrivals       int        `json:"arrivals"`
	Departures     int        `json:"departures"`
	TotalTraffic   int        `json:"total_traffic"`
}

// ConvertToResponse converts a Marker to MarkerResponse format
func (m *Marker) ConvertToResponse() MarkerResponse {
	return MarkerResponse{
		StationID:      m.StationID,
		Name:           m.Name,
		Location:       [2]float64{m.Location.Lat(), m.Location.Lon()},
		CX:             m.Position.X,
		CY:             m.Position.Y,
		R:              m.Radius,
		DepartureRatio: m.DepartureRatio,
		Title:          m.Title,
		Arrivals:       m.Arrivals,
		Departures:     m.Departures,
		TotalTraffic:   m.TotalTraffic,
	}
}

// UpdateKind names the trigger that produced a MarkerUpdate
type UpdateKind string

const (
	UpdateLoad     UpdateKind = "load"
	UpdateFilter   UpdateKind = "filter"
	UpdateViewport UpdateKind = "viewport"
)

// MarkerUpdate is published after every recomputation
type MarkerUpdate struct {
	Kind       UpdateKind `json:"kind"`
	SnapshotID uuid.UUID  `json:"snapshot_id"`
	Filter     TimeFilter `json:"filter"`
	TripCount  int        `json:"trip_count"`
	Markers    []Marker   `json:"markers"`
	At         time.Time  `json:"at"`
}

// MarkerUpdateResponse is the wire format of a MarkerUpdate
type MarkerUpdateResponse struct {
	Kind       UpdateKind       `json:"kind"`
	SnapshotID string           `json:"snapshot_id"`
	Filter     FilterState      `json:"filter"`
	TripCount  int              `json:"trip_count"`
	Markers    []MarkerResponse `json:"markers"`
	At         time.Time        `json:"at"`
}

// ConvertToResponse converts a MarkerUpdate to its wire format
func (u *MarkerUpdate) ConvertToResponse() MarkerUpdateResponse {
	markers := make([]MarkerResponse, len(u.Markers))
	for i := range u.Markers {
		markers[i] = u.Markers[i].ConvertToResponse()
	}
	return MarkerUpdateResponse{
		Kind:       u.Kind,
		SnapshotID: u.SnapshotID.String(),
		Filter:     u.Filter.State(),
		TripCount:  u.TripCount,
		Markers:    markers,
		At:         u.At,
	}
}

// AnyTime is the "no filter" sentinel
const AnyTime TimeFilter = -1

// MinutesPerDay bounds the minute-of-day filter values
const MinutesPerDay = 24 * 60

// ErrInvalidFilter is returned for filter values outside [-1, 1439]
var ErrInvalidFilter = errors.New("invalid time filter")

// TimeFilter is either AnyTime or a minute of the day
type TimeFilter int

// Validate checks the filter range
func (f TimeFilter) Validate() error {
	if f == AnyTime || (f >= 0 && f < MinutesPerDay) {
		return nil
	}
	return fmt.Errorf("%w: %d (want -1 or 0-%d)", ErrInvalidFilter, int(f), MinutesPerDay-1)
}

// IsAnyTime reports whether the filter is the sentinel
func (f TimeFilter) IsAnyTime() bool {
	return f == AnyTime
}

// Label renders the filter as a short clock time, empty for AnyTime
func (f TimeFilter) Label() string {
	if f.IsAnyTime() {
		return ""
	}
	return time.Date(0, 1, 1, 0, int(f), 0, 0, time.UTC).Format("3:04 PM")
}

// State returns the filter as the API reports it
func (f TimeFilter) State() FilterState {
	return FilterState{
		Minute:  int(f),
		Label:   f.Label(),
		AnyTime: f.IsAnyTime(),
	}
}

// FilterState is the API view of the time filter
type FilterState struct {
	Minute  int    `json:"minute"`
	Label   string `json:"label"`
	AnyTime bool   `json:"any_time"`
}

// FilterStatus reports the active filter with the aggregate it produced
type FilterStatus struct {
	FilterState
	SnapshotID string `json:"snapshot_id"`
	TripCount  int    `json:"trip_count"`
	TotalTrips int    `json:"total_trips"`
}

// ViewportState describes the map viewport
type ViewportState struct {
	Center [2]float64 `json:"center"` // lon, lat
	Zoom   float64    `json:"zoom"`
	Width  float64    `json:"width"`
	Height float64    `json:"height"`
}
