package feed

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/jusunglee/bikeshare-go/internal/models"
	"github.com/paulmach/orb"
	"google.golang.org/protobuf/encoding/protowire"
)

// Wire layout of the cache file:
//
//	message Dataset { repeated Station stations = 1; repeated Trip trips = 2; }
//	message Station { string short_name = 1; string station_id = 2; string name = 3;
//	                  double lon = 4; double lat = 5; int64 capacity = 6; }
//	message Trip    { string start_station_id = 1; string end_station_id = 2;
//	                  int64 started_at_ns = 3; int64 ended_at_ns = 4; }
const (
	datasetStations protowire.Number = 1
	datasetTrips    protowire.Number = 2

	stationShortName protowire.Number = 1
	stationID        protowire.Number = 2
	stationName      protowire.Number = 3
	stationLon       protowire.Number = 4
	stationLat       protowire.Number = 5
	stationCapacity  protowire.Number = 6

	tripStart   protowire.Number = 1
	tripEnd     protowire.Number = 2
	tripStarted protowire.Number = 3
	tripEnded   protowire.Number = 4
)

// LoadWithCache returns the dataset cached under dir/key.pb, or calls load
// and writes its result there. A broken cache file is ignored and replaced.
func LoadWithCache(dir, key string, loc *time.Location, load func() (*Dataset, error)) (*Dataset, error) {
	path := filepath.Join(dir, key+".pb")
	if b, err := os.ReadFile(path); err == nil {
		ds, err := UnmarshalDataset(b, loc)
		if err == nil {
			log.Infof("loaded %d stations and %d trips from cache %s", len(ds.Stations), len(ds.Trips), path)
			return ds, nil
		}
		log.Warnf("ignoring cache %s: %v", path, err)
	}

	ds, err := load()
	if err != nil {
		return nil, err
	}

	if err := writeCache(path, MarshalDataset(ds)); err != nil {
		log.Warnf("failed to write cache %s: %v", path, err)
	}
	return ds, nil
}

func writeCache(path string, b []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// MarshalDataset encodes the dataset in protobuf wire format
func MarshalDataset(ds *Dataset) []byte {
	var b []byte
	for _, s := range ds.Stations {
		var m []byte
		m = appendString(m, stationShortName, s.ShortName)
		m = appendString(m, stationID, s.StationID)
		m = appendString(m, stationName, s.Name)
		m = appendDouble(m, stationLon, s.Location.Lon())
		m = appendDouble(m, stationLat, s.Location.Lat())
		m = appendInt(m, stationCapacity, int64(s.Capacity))

		b = protowire.AppendTag(b, datasetStations, protowire.BytesType)
		b = protowire.AppendBytes(b, m)
	}
	for _, t := range ds.Trips {
		var m []byte
		m = appendString(m, tripStart, t.StartStationID)
		m = appendString(m, tripEnd, t.EndStationID)
		m = appendInt(m, tripStarted, t.StartedAt.UnixNano())
		m = appendInt(m, tripEnded, t.EndedAt.UnixNano())

		b = protowire.AppendTag(b, datasetTrips, protowire.BytesType)
		b = protowire.AppendBytes(b, m)
	}
	return b
}

// UnmarshalDataset decodes a dataset written by MarshalDataset. Timestamps
// are returned in loc.
func UnmarshalDataset(b []byte, loc *time.Location) (*Dataset, error) {
	ds := &Dataset{}
	err := consumeMessage(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch num {
		case datasetStations, datasetTrips:
			if typ != protowire.BytesType {
				return 0, fmt.Errorf("field %d: unexpected wire type %d", num, typ)
			}
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return n, nil
			}
			if num == datasetStations {
				s, err := unmarshalStation(v)
				if err != nil {
					return 0, err
				}
				ds.Stations = append(ds.Stations, s)
			} else {
				t, err := unmarshalTrip(v, loc)
				if err != nil {
					return 0, err
				}
				ds.Trips = append(ds.Trips, t)
			}
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	if err != nil {
		return nil, err
	}
	if len(ds.Stations) == 0 {
		return nil, fmt.Errorf("cached dataset has no stations")
	}
	return ds, nil
}

func unmarshalStation(b []byte) (models.Station, error) {
	var s models.Station
	var lon, lat float64
	err := consumeMessage(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == stationShortName && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			s.ShortName = v
			return n, nil
		case num == stationID && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			s.StationID = v
			return n, nil
		case num == stationName && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			s.Name = v
			return n, nil
		case num == stationLon && typ == protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(b)
			lon = math.Float64frombits(v)
			return n, nil
		case num == stationLat && typ == protowire.Fixed64Type:
			v, n := protowire.ConsumeFixed64(b)
			lat = math.Float64frombits(v)
			return n, nil
		case num == stationCapacity && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			s.Capacity = int(int64(v))
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	s.Location = orb.Point{lon, lat}
	return s, err
}

func unmarshalTrip(b []byte, loc *time.Location) (models.Trip, error) {
	var t models.Trip
	err := consumeMessage(b, func(num protowire.Number, typ protowire.Type, b []byte) (int, error) {
		switch {
		case num == tripStart && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			t.StartStationID = v
			return n, nil
		case num == tripEnd && typ == protowire.BytesType:
			v, n := protowire.ConsumeString(b)
			t.EndStationID = v
			return n, nil
		case num == tripStarted && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			t.StartedAt = time.Unix(0, int64(v)).In(loc)
			return n, nil
		case num == tripEnded && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			t.EndedAt = time.Unix(0, int64(v)).In(loc)
			return n, nil
		}
		return protowire.ConsumeFieldValue(num, typ, b), nil
	})
	return t, err
}

// consumeMessage walks the fields of one message. field returns the number
// of value bytes it consumed, negative on a wire error.
func consumeMessage(b []byte, field func(protowire.Number, protowire.Type, []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		n, err := field(num, typ, b)
		if err != nil {
			return err
		}
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
	}
	return nil
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendDouble(b []byte, num protowire.Number, v float64) []byte {
	b = protowire.AppendTag(b, num, protowire.Fixed64Type)
	return protowire.AppendFixed64(b, math.Float64bits(v))
}

func appendInt(b []byte, num protowire.Number, v int64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, uint64(v))
}
