package feed

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jusunglee/bikeshare-go/internal/models"
	_ "modernc.org/sqlite"
)

// ErrUnsupportedDSN is returned for DSNs that are neither sqlite nor postgres
var ErrUnsupportedDSN = errors.New("unsupported trips DSN")

const tripsQuery = `
	SELECT start_station_id, end_station_id, started_at, ended_at
	FROM trips
`

// OpenDB opens the database named by dsn: sqlite://<path> or postgres://...
func OpenDB(dsn string) (*sql.DB, error) {
	var driver, source string
	switch {
	case strings.HasPrefix(dsn, "sqlite://"):
		driver, source = "sqlite", strings.TrimPrefix(dsn, "sqlite://")
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		driver, source = "pgx", dsn
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDSN, dsn)
	}

	db, err := sql.Open(driver, source)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// LoadTripsSQL reads the trips table. Timestamps may be stored as text or as
// native timestamps; zone-less values are read as wall clock time in loc.
func LoadTripsSQL(ctx context.Context, dsn string, loc *time.Location) ([]models.Trip, error) {
	db, err := OpenDB(dsn)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, tripsQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to query trips: %w", err)
	}
	defer rows.Close()

	var trips []models.Trip
	for rows.Next() {
		var (
			start, end     sql.NullString
			started, ended any
		)
		if err := rows.Scan(&start, &end, &started, &ended); err != nil {
			return nil, fmt.Errorf("failed to scan trip: %w", err)
		}

		startedAt, err := timestampValue(started, loc)
		if err != nil {
			return nil, fmt.Errorf("trip %d: started_at: %w", len(trips)+1, err)
		}
		endedAt, err := timestampValue(ended, loc)
		if err != nil {
			return nil, fmt.Errorf("trip %d: ended_at: %w", len(trips)+1, err)
		}

		trips = append(trips, models.Trip{
			StartStationID: start.String,
			EndStationID:   end.String,
			StartedAt:      startedAt,
			EndedAt:        endedAt,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read trips: %w", err)
	}

	log.Infof("read %d trips from %s", len(trips), strings.SplitN(dsn, "://", 2)[0])
	return trips, nil
}

func timestampValue(v any, loc *time.Location) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		if t.Location() == time.UTC {
			return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc), nil
		}
		return t.In(loc), nil
	case string:
		return ParseTimestamp(t, loc)
	case []byte:
		return ParseTimestamp(string(t), loc)
	default:
		return time.Time{}, fmt.Errorf("unsupported timestamp type %T", v)
	}
}
