package feed

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jusunglee/bikeshare-go/internal/models"
)

var tripColumns = []string{"start_station_id", "end_station_id", "started_at", "ended_at"}

var timestampLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02 15:04",
}

// ParseTrips reads a trip log CSV. Column order is taken from the header and
// extra columns are ignored. Timestamps without a zone are read in loc.
func ParseTrips(r io.Reader, loc *time.Location) ([]models.Trip, error) {
	reader := csv.NewReader(r)
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	idx := makeIndex(header)
	for _, col := range tripColumns {
		if _, ok := idx[col]; !ok {
			return nil, fmt.Errorf("missing column %q", col)
		}
	}

	var trips []models.Trip
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		started, err := ParseTimestamp(record[idx["started_at"]], loc)
		if err != nil {
			return nil, fmt.Errorf("line %d: started_at: %w", line, err)
		}
		ended, err := ParseTimestamp(record[idx["ended_at"]], loc)
		if err != nil {
			return nil, fmt.Errorf("line %d: ended_at: %w", line, err)
		}

		trips = append(trips, models.Trip{
			StartStationID: strings.TrimSpace(record[idx["start_station_id"]]),
			EndStationID:   strings.TrimSpace(record[idx["end_station_id"]]),
			StartedAt:      started,
			EndedAt:        ended,
		})
	}

	return trips, nil
}

// ParseTimestamp parses a trip timestamp. Fractional seconds are accepted
// after the seconds field. Timestamps with an explicit offset are converted
// to loc, so minute-of-day is always read on the feed's clock.
func ParseTimestamp(s string, loc *time.Location) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.In(loc), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func makeIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, col := range header {
		col = strings.TrimPrefix(col, "\ufeff")
		idx[strings.ToLower(strings.TrimSpace(col))] = i
	}
	return idx
}
