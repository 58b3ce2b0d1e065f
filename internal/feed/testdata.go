package feed

import (
	"time"

	"github.com/jusunglee/bikeshare-go/internal/models"
	"github.com/paulmach/orb"
)

// MockLocation is the zone mock trips are recorded in
var MockLocation = time.FixedZone("EST", -5*3600)

// CreateMockDataset creates a small dataset for testing
// Uses real Bluebikes station coordinates around Kendall and MIT
func CreateMockDataset() *Dataset {
	stations := []models.Station{
		{
			ShortName: "M32006",
			StationID: "a3a3",
			Name:      "MIT at Mass Ave / Amherst St",
			Capacity:  27,
			Location:  orb.Point{-71.0942, 42.3581},
		},
		{
			ShortName: "M32011",
			StationID: "b4b4",
			Name:      "Kendall T",
			Capacity:  19,
			Location:  orb.Point{-71.0862, 42.3625},
		},
		{
			ShortName: "M32015",
			StationID: "c5c5",
			Name:      "Central Square at Mass Ave / Essex St",
			Capacity:  23,
			Location:  orb.Point{-71.1038, 42.3654},
		},
	}

	at := func(hour, minute int) time.Time {
		return time.Date(2024, 3, 12, hour, minute, 0, 0, MockLocation)
	}
	trip := func(from, to string, hour, minute int) models.Trip {
		return models.Trip{
			StartStationID: from,
			EndStationID:   to,
			StartedAt:      at(hour, minute),
			EndedAt:        at(hour, minute).Add(12 * time.Minute),
		}
	}

	trips := []models.Trip{
		// morning commute into Kendall
		trip("M32015", "M32011", 8, 5),
		trip("M32015", "M32011", 8, 20),
		trip("M32006", "M32011", 8, 45),
		trip("M32015", "M32011", 9, 10),
		// evening
		trip("M32011", "M32015", 17, 30),
		trip("M32011", "M32006", 17, 50),
		// late night round trip
		trip("M32006", "M32006", 23, 40),
		// unknown stations still count as trips
		trip("X00000", "M32011", 12, 0),
	}

	return &Dataset{Stations: stations, Trips: trips}
}
