package feed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jusunglee/bikeshare-go/internal/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var log = logrus.WithField("module", "feed")

// Default Bluebikes feeds
const (
	DefaultStationsURL = "https://dsc106.com/labs/lab07/data/bluebikes-stations.json"
	DefaultTripsURL    = "https://dsc106.com/labs/lab07/data/bluebikes-traffic-2024-03.csv"
)

// Dataset is everything the pipeline needs from the feeds
type Dataset struct {
	Stations []models.Station
	Trips    []models.Trip
}

// Config describes where the feeds come from
type Config struct {
	StationsURL string
	TripsURL    string
	// TripsDSN, when set, replaces TripsURL with a SQL table
	TripsDSN string
	CacheDir string
	Location *time.Location
}

// Loader fetches and parses the station and trip feeds once
type Loader struct {
	cfg        Config
	httpClient *http.Client
}

// NewLoader creates a new feed loader
func NewLoader(cfg Config) *Loader {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Loader{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Load reads both feeds. Either feed failing fails the whole load.
func (l *Loader) Load(ctx context.Context) (*Dataset, error) {
	if l.cfg.CacheDir == "" {
		return l.load(ctx)
	}
	return LoadWithCache(l.cfg.CacheDir, l.cacheKey(), l.cfg.Location, func() (*Dataset, error) {
		return l.load(ctx)
	})
}

func (l *Loader) load(ctx context.Context) (*Dataset, error) {
	start := time.Now()
	ds := &Dataset{}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rc, err := l.open(ctx, l.cfg.StationsURL)
		if err != nil {
			return fmt.Errorf("stations feed: %w", err)
		}
		defer rc.Close()

		stations, err := ParseStations(rc)
		if err != nil {
			return fmt.Errorf("stations feed: %w", err)
		}
		ds.Stations = stations
		return nil
	})
	g.Go(func() error {
		if l.cfg.TripsDSN != "" {
			trips, err := LoadTripsSQL(ctx, l.cfg.TripsDSN, l.cfg.Location)
			if err != nil {
				return fmt.Errorf("trips table: %w", err)
			}
			ds.Trips = trips
			return nil
		}

		rc, err := l.open(ctx, l.cfg.TripsURL)
		if err != nil {
			return fmt.Errorf("trips feed: %w", err)
		}
		defer rc.Close()

		trips, err := ParseTrips(rc, l.cfg.Location)
		if err != nil {
			return fmt.Errorf("trips feed: %w", err)
		}
		ds.Trips = trips
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	log.Infof("loaded %d stations and %d trips in %v", len(ds.Stations), len(ds.Trips), time.Since(start))
	return ds, nil
}

// open returns a reader over a URL or a local file
func (l *Loader) open(ctx context.Context, src string) (io.ReadCloser, error) {
	if src == "" {
		return nil, fmt.Errorf("no source configured")
	}
	if !strings.HasPrefix(src, "http://") && !strings.HasPrefix(src, "https://") {
		return os.Open(src)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return nil, err
	}

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("GET %s: HTTP %d", src, resp.StatusCode)
	}
	return resp.Body, nil
}

func (l *Loader) cacheKey() string {
	trips := l.cfg.TripsURL
	if l.cfg.TripsDSN != "" {
		trips = l.cfg.TripsDSN
	}
	sum := sha256.Sum256([]byte(l.cfg.StationsURL + "\x00" + trips + "\x00" + l.cfg.Location.String()))
	return hex.EncodeToString(sum[:8])
}
