package store

import (
	"errors"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jusunglee/bikeshare-go/internal/models"
	"github.com/puzpuzpuz/xsync/v3"
)

// ErrNotFound is returned when none of the requested stations exist
var ErrNotFound = errors.New("no stations found for given IDs")

// Store keeps the latest published marker set for readers
type Store struct {
	mu         *xsync.RBMutex
	markers    map[string]*models.Marker
	ordered    []*models.Marker
	filter     models.TimeFilter
	snapshotID uuid.UUID
	tripCount  int
	lastUpdate time.Time
}

// NewStore creates a new store instance
func NewStore() *Store {
	return &Store{
		mu:      xsync.NewRBMutex(),
		markers: make(map[string]*models.Marker),
		filter:  models.AnyTime,
	}
}

// UpdateMarkers replaces the marker set with the one carried by update
func (s *Store) UpdateMarkers(update models.MarkerUpdate) {
	markers := make(map[string]*models.Marker, len(update.Markers))
	ordered := make([]*models.Marker, 0, len(update.Markers))
	for i := range update.Markers {
		m := update.Markers[i]
		markers[m.StationID] = &m
		ordered = append(ordered, &m)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].StationID < ordered[j].StationID
	})

	s.mu.Lock()
	defer s.mu.Unlock()

	s.markers = markers
	s.ordered = ordered
	s.filter = update.Filter
	s.snapshotID = update.SnapshotID
	s.tripCount = update.TripCount
	s.lastUpdate = time.Now()
}

// GetMarkers returns every marker ordered by station id
func (s *Store) GetMarkers() []models.Marker {
	t := s.mu.RLock()
	defer s.mu.RUnlock(t)

	result := make([]models.Marker, len(s.ordered))
	for i, m := range s.ordered {
		result[i] = *m
	}
	return result
}

// GetMarkersByLocation returns the markers nearest to a location
func (s *Store) GetMarkersByLocation(lat, lon float64, limit int) []models.Marker {
	t := s.mu.RLock()
	defer s.mu.RUnlock(t)

	type markerDist struct {
		marker   *models.Marker
		distance float64
	}

	var markers []markerDist
	for _, m := range s.ordered {
		dist := distance(lat, lon, m.Location.Lat(), m.Location.Lon())
		markers = append(markers, markerDist{m, dist})
	}

	sort.SliceStable(markers, func(i, j int) bool {
		return markers[i].distance < markers[j].distance
	})

	result := make([]models.Marker, 0, limit)
	for i := 0; i < limit && i < len(markers); i++ {
		result = append(result, *markers[i].marker)
	}

	return result
}

// GetMarkersByIDs returns markers by station short name
func (s *Store) GetMarkersByIDs(ids []string) ([]models.Marker, error) {
	t := s.mu.RLock()
	defer s.mu.RUnlock(t)

	result := make([]models.Marker, 0, len(ids))
	for _, id := range ids {
		if m, ok := s.markers[id]; ok {
			result = append(result, *m)
		}
	}

	if len(result) == 0 {
		return nil, ErrNotFound
	}

	return result, nil
}

// GetBusiest returns the markers with the most traffic in the active window
func (s *Store) GetBusiest(limit int) []models.Marker {
	markers := s.GetMarkers()
	sort.SliceStable(markers, func(i, j int) bool {
		return markers[i].TotalTraffic > markers[j].TotalTraffic
	})
	if limit >= 0 && limit < len(markers) {
		markers = markers[:limit]
	}
	return markers
}

// GetFilter returns the filter and snapshot the markers were computed with
func (s *Store) GetFilter() (models.TimeFilter, uuid.UUID, int) {
	t := s.mu.RLock()
	defer s.mu.RUnlock(t)
	return s.filter, s.snapshotID, s.tripCount
}

// GetLastUpdate returns the last update time
func (s *Store) GetLastUpdate() time.Time {
	t := s.mu.RLock()
	defer s.mu.RUnlock(t)
	return s.lastUpdate
}

// distance calculates the distance between two points using the Haversine formula
func distance(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371 // Earth's radius in kilometers

	lat1Rad := lat1 * math.Pi / 180
	lat2Rad := lat2 * math.Pi / 180
	deltaLat := (lat2 - lat1) * math.Pi / 180
	deltaLon := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1Rad)*math.Cos(lat2Rad)*
			math.Sin(deltaLon/2)*math.Sin(deltaLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return R * c
}
