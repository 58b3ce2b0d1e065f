package traffic

import (
	"time"

	"github.com/google/uuid"
	"github.com/jusunglee/bikeshare-go/internal/models"
	"github.com/samber/lo"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("module", "traffic")

// Snapshot is the immutable result of one aggregation pass
type Snapshot struct {
	ID         uuid.UUID
	Filter     models.TimeFilter
	Stations   []models.Station
	TripCount  int
	MaxTraffic int
	ComputedAt time.Time

	index map[string]int
}

// Aggregate counts departures (by start station) and arrivals (by end station)
// over trips and returns a copy of stations carrying those counts. Stations
// absent from trips get zeros; trips naming unknown stations are never read
// back. The input stations are left untouched.
func Aggregate(stations []models.Station, trips []models.Trip, filter models.TimeFilter) *Snapshot {
	departures := lo.CountValuesBy(trips, func(trip models.Trip) string {
		return trip.StartStationID
	})
	arrivals := lo.CountValuesBy(trips, func(trip models.Trip) string {
		return trip.EndStationID
	})

	snapshot := &Snapshot{
		ID:         uuid.New(),
		Filter:     filter,
		Stations:   make([]models.Station, len(stations)),
		TripCount:  len(trips),
		ComputedAt: time.Now(),
		index:      make(map[string]int, len(stations)),
	}
	for i, station := range stations {
		station.Arrivals = arrivals[station.ShortName]
		station.Departures = departures[station.ShortName]
		station.TotalTraffic = station.Arrivals + station.Departures
		snapshot.Stations[i] = station
		snapshot.index[station.ShortName] = i
		snapshot.MaxTraffic = max(snapshot.MaxTraffic, station.TotalTraffic)
	}

	log.Debugf("aggregated %d trips over %d stations (filter %d, max traffic %d)",
		len(trips), len(stations), int(filter), snapshot.MaxTraffic)
	return snapshot
}

// Station returns the aggregated station with the given short name
func (s *Snapshot) Station(id string) (models.Station, bool) {
	i, ok := s.index[id]
	if !ok {
		return models.Station{}, false
	}
	return s.Stations[i], true
}

// Totals sums arrivals and departures over all stations
func (s *Snapshot) Totals() (arrivals, departures int) {
	for _, station := range s.Stations {
		arrivals += station.Arrivals
		departures += station.Departures
	}
	return arrivals, departures
}
