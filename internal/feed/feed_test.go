package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const stationsJSON = `{
  "last_updated": 1710000000,
  "data": {
    "stations": [
      {"short_name": "M32006", "station_id": "a3a3", "name": "MIT at Mass Ave / Amherst St", "lat": 42.3581, "lon": -71.0942, "capacity": 27},
      {"short_name": "M32011", "station_id": "b4b4", "name": "Kendall T", "lat": "42.3625", "lon": "-71.0862", "capacity": "19"},
      {"short_name": "", "station_id": "ghost", "name": "Decommissioned", "lat": 42.0, "lon": -71.0}
    ]
  }
}`

const tripsCSV = "\ufeffstarted_at,ended_at,start_station_id,end_station_id,ride_id,rideable_type\n" +
	"2024-03-12 08:05:00,2024-03-12 08:17:00,M32006,M32011,r1,classic_bike\n" +
	"2024-03-12 17:30:00.123,2024-03-12 17:42:00,M32011,M32006,r2,electric_bike\n" +
	"2024-03-12T23:40:00,2024-03-12T23:55:00,M32006,M32006,r3,classic_bike\n"

func TestParseStations(t *testing.T) {
	t.Run("envelope", func(t *testing.T) {
		stations, err := ParseStations(strings.NewReader(stationsJSON))
		require.NoError(t, err)
		require.Len(t, stations, 2)

		assert.Equal(t, "M32006", stations[0].ShortName)
		assert.Equal(t, "MIT at Mass Ave / Amherst St", stations[0].Name)
		assert.Equal(t, 27, stations[0].Capacity)
		assert.InDelta(t, -71.0942, stations[0].Lon(), 1e-9)
		assert.InDelta(t, 42.3581, stations[0].Lat(), 1e-9)

		// numeric strings
		assert.Equal(t, 19, stations[1].Capacity)
		assert.InDelta(t, -71.0862, stations[1].Lon(), 1e-9)
		assert.InDelta(t, 42.3625, stations[1].Lat(), 1e-9)
		assert.Zero(t, stations[1].Arrivals)
	})

	t.Run("bare array", func(t *testing.T) {
		stations, err := ParseStations(strings.NewReader(`  [{"short_name": "D32001", "lat": 42.3522, "lon": -71.0552}]`))
		require.NoError(t, err)
		require.Len(t, stations, 1)
		assert.Equal(t, "D32001", stations[0].ShortName)
		assert.Zero(t, stations[0].Capacity)
	})

	t.Run("errors", func(t *testing.T) {
		tests := []struct {
			name  string
			input string
		}{
			{"not json", "short_name,lat,lon"},
			{"bad number", `[{"short_name": "A", "lat": "north", "lon": 1}]`},
			{"no stations", `{"data": {"stations": []}}`},
			{"only unnamed stations", `[{"station_id": "x", "lat": 1, "lon": 1}]`},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := ParseStations(strings.NewReader(tt.input))
				assert.Error(t, err)
			})
		}
	})
}

func TestParseTrips(t *testing.T) {
	loc := time.FixedZone("EST", -5*3600)

	trips, err := ParseTrips(strings.NewReader(tripsCSV), loc)
	require.NoError(t, err)
	require.Len(t, trips, 3)

	assert.Equal(t, "M32006", trips[0].StartStationID)
	assert.Equal(t, "M32011", trips[0].EndStationID)
	assert.Equal(t, 8, trips[0].StartedAt.Hour())
	assert.Equal(t, 5, trips[0].StartedAt.Minute())
	assert.Equal(t, loc, trips[0].StartedAt.Location())

	assert.Equal(t, 17, trips[1].StartedAt.Hour())
	assert.Equal(t, 30, trips[1].StartedAt.Minute())

	assert.Equal(t, 23, trips[2].StartedAt.Hour())
	assert.Equal(t, 55, trips[2].EndedAt.Minute())

	t.Run("missing column", func(t *testing.T) {
		_, err := ParseTrips(strings.NewReader("started_at,ended_at,start_station_id\n"), loc)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "end_station_id")
	})

	t.Run("bad timestamp fails the load", func(t *testing.T) {
		input := "start_station_id,end_station_id,started_at,ended_at\n" +
			"A,B,2024-03-12 08:05:00,2024-03-12 08:17:00\n" +
			"A,B,yesterday,2024-03-12 08:17:00\n"
		_, err := ParseTrips(strings.NewReader(input), loc)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "line 3")
	})

	t.Run("header only", func(t *testing.T) {
		trips, err := ParseTrips(strings.NewReader("start_station_id,end_station_id,started_at,ended_at\n"), loc)
		require.NoError(t, err)
		assert.Empty(t, trips)
	})
}

func TestParseTimestamp(t *testing.T) {
	loc := time.FixedZone("EST", -5*3600)

	tests := []struct {
		input  string
		hour   int
		minute int
	}{
		{"2024-03-12 08:05:00", 8, 5},
		{"2024-03-12 08:05:00.5", 8, 5},
		{"2024-03-12T14:30:59", 14, 30},
		{"2024-03-12 00:00", 0, 0},
		{" 2024-03-12 23:59:59 ", 23, 59},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			ts, err := ParseTimestamp(tt.input, loc)
			require.NoError(t, err)
			assert.Equal(t, tt.hour, ts.Hour())
			assert.Equal(t, tt.minute, ts.Minute())
		})
	}

	t.Run("explicit zone", func(t *testing.T) {
		ts, err := ParseTimestamp("2024-03-12T13:05:00Z", loc)
		require.NoError(t, err)
		assert.Equal(t, 8, ts.Hour())
		assert.Equal(t, loc, ts.Location())
	})

	_, err := ParseTimestamp("12/03/2024", loc)
	assert.Error(t, err)
}

func TestLoader(t *testing.T) {
	loc := time.FixedZone("EST", -5*3600)

	t.Run("local files", func(t *testing.T) {
		dir := t.TempDir()
		stationsPath := filepath.Join(dir, "stations.json")
		tripsPath := filepath.Join(dir, "trips.csv")
		require.NoError(t, os.WriteFile(stationsPath, []byte(stationsJSON), 0o644))
		require.NoError(t, os.WriteFile(tripsPath, []byte(tripsCSV), 0o644))

		l := NewLoader(Config{StationsURL: stationsPath, TripsURL: tripsPath, Location: loc})
		ds, err := l.Load(context.Background())
		require.NoError(t, err)
		assert.Len(t, ds.Stations, 2)
		assert.Len(t, ds.Trips, 3)
	})

	t.Run("http", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.URL.Path {
			case "/stations.json":
				w.Write([]byte(stationsJSON))
			case "/trips.csv":
				w.Write([]byte(tripsCSV))
			default:
				http.NotFound(w, r)
			}
		}))
		defer server.Close()

		l := NewLoader(Config{StationsURL: server.URL + "/stations.json", TripsURL: server.URL + "/trips.csv", Location: loc})
		ds, err := l.Load(context.Background())
		require.NoError(t, err)
		assert.Len(t, ds.Stations, 2)
		assert.Len(t, ds.Trips, 3)

		l = NewLoader(Config{StationsURL: server.URL + "/stations.json", TripsURL: server.URL + "/missing.csv", Location: loc})
		_, err = l.Load(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "HTTP 404")
	})

	t.Run("missing source", func(t *testing.T) {
		l := NewLoader(Config{StationsURL: filepath.Join(t.TempDir(), "nope.json"), TripsURL: "", Location: loc})
		_, err := l.Load(context.Background())
		assert.Error(t, err)
	})

	t.Run("cache dir", func(t *testing.T) {
		dir := t.TempDir()
		stationsPath := filepath.Join(dir, "stations.json")
		tripsPath := filepath.Join(dir, "trips.csv")
		require.NoError(t, os.WriteFile(stationsPath, []byte(stationsJSON), 0o644))
		require.NoError(t, os.WriteFile(tripsPath, []byte(tripsCSV), 0o644))

		cfg := Config{StationsURL: stationsPath, TripsURL: tripsPath, CacheDir: filepath.Join(dir, "cache"), Location: loc}
		_, err := NewLoader(cfg).Load(context.Background())
		require.NoError(t, err)

		// the cached copy survives the sources going away
		require.NoError(t, os.Remove(tripsPath))
		ds, err := NewLoader(cfg).Load(context.Background())
		require.NoError(t, err)
		assert.Len(t, ds.Trips, 3)
	})
}

func TestNewLoaderDefaultsLocation(t *testing.T) {
	l := NewLoader(Config{})
	assert.Equal(t, time.Local, l.cfg.Location)
	assert.NotEmpty(t, l.cacheKey())
	assert.NotEqual(t, l.cacheKey(), NewLoader(Config{TripsDSN: "sqlite://trips.db"}).cacheKey())
}
