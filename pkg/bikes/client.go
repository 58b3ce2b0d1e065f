package bikes

import (
	"context"
	"errors"
	"time"

	"github.com/jusunglee/bikeshare-go/internal/event"
	"github.com/jusunglee/bikeshare-go/internal/feed"
	"github.com/jusunglee/bikeshare-go/internal/models"
	"github.com/jusunglee/bikeshare-go/internal/pipeline"
	"github.com/jusunglee/bikeshare-go/internal/viewport"
)

// ErrNotLoaded is returned by queries until the feeds have been loaded, and
// for good if the load failed
var ErrNotLoaded = errors.New("traffic data not loaded")

// Client defines the interface for querying and steering station traffic
// Abstracts the in-process engine behind the surface the API serves
type Client interface {
	Current() (models.MarkerUpdate, error)
	GetMarkers() ([]models.Marker, error)
	GetMarkersByIDs(ids []string) ([]models.Marker, error)
	GetMarkersByLocation(lat, lon float64, limit int) ([]models.Marker, error)
	GetBusiest(limit int) ([]models.Marker, error)

	GetFilter() (models.FilterStatus, error)
	SetFilter(filter models.TimeFilter) (models.MarkerUpdate, error)

	GetViewport() (models.ViewportState, error)
	SetViewport(state models.ViewportState) (models.ViewportState, error)
	PanViewport(dx, dy float64) (models.ViewportState, error)

	// Subscribe registers fn for every marker update, including the one
	// published when loading completes
	Subscribe(fn func(models.MarkerUpdate)) *event.Subscription

	Status() Status
	GetLastUpdate() time.Time
}

// Status reports the load state of a client
type Status struct {
	Loaded   bool   `json:"loaded"`
	Error    string `json:"error,omitempty"`
	Stations int    `json:"stations"`
	Trips    int    `json:"trips"`
}

// Source provides the dataset a LocalClient is built from
type Source interface {
	Load(ctx context.Context) (*feed.Dataset, error)
}

// Config holds configuration for the local client
type Config struct {
	Feed     feed.Config
	Viewport viewport.Config
	Pipeline pipeline.Options
	// LoadTimeout bounds the initial load, zero means no limit
	LoadTimeout time.Duration
	// Source overrides the feed loader built from Feed
	Source Source
}

// DefaultConfig returns default configuration
// Reads the public Bluebikes March 2024 feeds in Boston time
func DefaultConfig() Config {
	loc, err := time.LoadLocation("America/New_York")
	if err != nil {
		loc = time.Local
	}
	return Config{
		Feed: feed.Config{
			StationsURL: feed.DefaultStationsURL,
			TripsURL:    feed.DefaultTripsURL,
			Location:    loc,
		},
		Viewport:    viewport.DefaultConfig(),
		LoadTimeout: 2 * time.Minute,
	}
}
