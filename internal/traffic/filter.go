package traffic

import (
	"time"

	"github.com/jusunglee/bikeshare-go/internal/models"
	"github.com/samber/lo"
)

// WindowMinutes is the half-width of the filter window around the anchor minute
const WindowMinutes = 60

// MinuteOfDay returns hour*60+minute of t in t's own location
func MinuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// InWindow reports whether a trip started or ended within WindowMinutes of the
// filter anchor. The distance is linear: it does not wrap around midnight, so
// minute 30 and anchor 1430 are 1400 minutes apart.
func InWindow(trip models.Trip, filter models.TimeFilter) bool {
	if filter.IsAnyTime() {
		return true
	}
	anchor := int(filter)
	return absDiff(MinuteOfDay(trip.StartedAt), anchor) <= WindowMinutes ||
		absDiff(MinuteOfDay(trip.EndedAt), anchor) <= WindowMinutes
}

// FilterTrips returns the trips inside the filter window. AnyTime returns the
// input slice as is.
func FilterTrips(trips []models.Trip, filter models.TimeFilter) []models.Trip {
	if filter.IsAnyTime() {
		return trips
	}
	return lo.Filter(trips, func(trip models.Trip, _ int) bool {
		return InWindow(trip, filter)
	})
}

func absDiff(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}
