package feed

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jusunglee/bikeshare-go/internal/models"
	"github.com/paulmach/orb"
)

// number accepts JSON numbers and numeric strings
type number float64

func (n *number) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*n = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid number %s", b)
	}
	*n = number(v)
	return nil
}

type stationRecord struct {
	ShortName string `json:"short_name"`
	StationID string `json:"station_id"`
	Name      string `json:"name"`
	Lat       number `json:"lat"`
	Lon       number `json:"lon"`
	Capacity  number `json:"capacity"`
}

type stationEnvelope struct {
	Data struct {
		Stations []stationRecord `json:"stations"`
	} `json:"data"`
}

// ParseStations reads a GBFS station_information document, or a bare array
// of station records. Records without a short name are skipped.
func ParseStations(r io.Reader) ([]models.Station, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}

	var records []stationRecord
	if trimmed := bytes.TrimSpace(body); len(trimmed) > 0 && trimmed[0] == '[' {
		err = json.Unmarshal(trimmed, &records)
	} else {
		var envelope stationEnvelope
		err = json.Unmarshal(body, &envelope)
		records = envelope.Data.Stations
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode stations: %w", err)
	}

	stations := make([]models.Station, 0, len(records))
	for _, rec := range records {
		if rec.ShortName == "" {
			log.Warnf("skipping station %q without short_name", rec.StationID)
			continue
		}
		stations = append(stations, models.Station{
			ShortName: rec.ShortName,
			StationID: rec.StationID,
			Name:      rec.Name,
			Capacity:  int(rec.Capacity),
			Location:  orb.Point{float64(rec.Lon), float64(rec.Lat)},
		})
	}

	if len(stations) == 0 {
		return nil, fmt.Errorf("no stations in feed")
	}
	return stations, nil
}
