package bikes

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jusunglee/bikeshare-go/internal/control"
	"github.com/jusunglee/bikeshare-go/internal/event"
	"github.com/jusunglee/bikeshare-go/internal/feed"
	"github.com/jusunglee/bikeshare-go/internal/models"
	"github.com/jusunglee/bikeshare-go/internal/pipeline"
	"github.com/jusunglee/bikeshare-go/internal/store"
	"github.com/jusunglee/bikeshare-go/internal/viewport"
	"github.com/paulmach/orb"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("module", "bikes")

// LocalClient implements the Client interface for local usage
// Loads the feeds once in the background, then keeps an in-memory store in
// sync with the pipeline
type LocalClient struct {
	store    *store.Store
	slider   *control.TimeSlider
	viewport *viewport.Viewport
	updates  *event.Bus[models.MarkerUpdate]

	// serializes SetFilter and SetViewport so each returns its own result
	inputMu sync.Mutex

	mu       sync.RWMutex
	pipeline *pipeline.Pipeline
	status   Status

	done   chan struct{}
	cancel context.CancelFunc
}

// NewLocal creates a new local client
// Starts loading the feeds in the background; queries return ErrNotLoaded
// until Wait returns nil
func NewLocal(ctx context.Context, config Config) (*LocalClient, error) {
	if config.Viewport.Width <= 0 || config.Viewport.Height <= 0 {
		return nil, fmt.Errorf("%w: size %vx%v", viewport.ErrInvalid, config.Viewport.Width, config.Viewport.Height)
	}

	source := config.Source
	if source == nil {
		source = feed.NewLoader(config.Feed)
	}

	ctx, cancel := context.WithCancel(ctx)
	c := &LocalClient{
		store:    store.NewStore(),
		slider:   control.NewTimeSlider(),
		viewport: viewport.New(config.Viewport),
		updates:  event.NewBus[models.MarkerUpdate](),
		done:     make(chan struct{}),
		cancel:   cancel,
	}

	go c.start(ctx, source, config)
	return c, nil
}

func (c *LocalClient) start(ctx context.Context, source Source, config Config) {
	defer close(c.done)

	if config.LoadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, config.LoadTimeout)
		defer cancel()
	}

	ds, err := source.Load(ctx)
	if err != nil {
		c.fail(fmt.Errorf("failed to load feeds: %w", err))
		return
	}

	p, err := pipeline.New(ds.Stations, ds.Trips, c.viewport, config.Pipeline)
	if err != nil {
		c.fail(fmt.Errorf("failed to build pipeline: %w", err))
		return
	}

	p.Subscribe(c.forward)
	c.forward(p.Current())
	p.Bind(c.slider, c.viewport)

	c.mu.Lock()
	c.pipeline = p
	c.status = Status{Loaded: true, Stations: len(ds.Stations), Trips: len(ds.Trips)}
	c.mu.Unlock()

	log.Infof("ready with %d stations and %d trips", len(ds.Stations), len(ds.Trips))
}

func (c *LocalClient) fail(err error) {
	log.Errorf("%v", err)

	c.mu.Lock()
	c.status = Status{Error: err.Error()}
	c.mu.Unlock()
}

// forward runs under the pipeline lock for every published update
func (c *LocalClient) forward(update models.MarkerUpdate) {
	c.store.UpdateMarkers(update)
	c.updates.Publish(update)
}

// Wait blocks until the initial load has finished and returns its error
func (c *LocalClient) Wait(ctx context.Context) error {
	select {
	case <-c.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.status.Loaded {
		return fmt.Errorf("%w: %s", ErrNotLoaded, c.status.Error)
	}
	return nil
}

// Close gracefully shuts down the local client
// Must be called to stop the background load and drop pipeline subscriptions
func (c *LocalClient) Close() {
	c.cancel()
	<-c.done

	c.mu.RLock()
	p := c.pipeline
	c.mu.RUnlock()
	if p != nil {
		p.Close()
	}
}

func (c *LocalClient) ready() (*pipeline.Pipeline, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.pipeline == nil {
		return nil, ErrNotLoaded
	}
	return c.pipeline, nil
}

// Current returns the latest marker update
func (c *LocalClient) Current() (models.MarkerUpdate, error) {
	p, err := c.ready()
	if err != nil {
		return models.MarkerUpdate{}, err
	}
	return p.Current(), nil
}

func (c *LocalClient) GetMarkers() ([]models.Marker, error) {
	if _, err := c.ready(); err != nil {
		return nil, err
	}
	return c.store.GetMarkers(), nil
}

func (c *LocalClient) GetMarkersByIDs(ids []string) ([]models.Marker, error) {
	if _, err := c.ready(); err != nil {
		return nil, err
	}
	return c.store.GetMarkersByIDs(ids)
}

func (c *LocalClient) GetMarkersByLocation(lat, lon float64, limit int) ([]models.Marker, error) {
	if _, err := c.ready(); err != nil {
		return nil, err
	}
	return c.store.GetMarkersByLocation(lat, lon, limit), nil
}

func (c *LocalClient) GetBusiest(limit int) ([]models.Marker, error) {
	if _, err := c.ready(); err != nil {
		return nil, err
	}
	return c.store.GetBusiest(limit), nil
}

func (c *LocalClient) GetFilter() (models.FilterStatus, error) {
	if _, err := c.ready(); err != nil {
		return models.FilterStatus{}, err
	}

	filter, snapshotID, tripCount := c.store.GetFilter()
	return models.FilterStatus{
		FilterState: filter.State(),
		SnapshotID:  snapshotID.String(),
		TripCount:   tripCount,
		TotalTrips:  c.Status().Trips,
	}, nil
}

// SetFilter moves the time slider. The pipeline recomputes before it returns.
func (c *LocalClient) SetFilter(filter models.TimeFilter) (models.MarkerUpdate, error) {
	p, err := c.ready()
	if err != nil {
		return models.MarkerUpdate{}, err
	}

	c.inputMu.Lock()
	defer c.inputMu.Unlock()
	if err := c.slider.Set(filter); err != nil {
		return models.MarkerUpdate{}, err
	}
	return p.Current(), nil
}

func (c *LocalClient) GetViewport() (models.ViewportState, error) {
	if _, err := c.ready(); err != nil {
		return models.ViewportState{}, err
	}
	return c.viewport.State(), nil
}

// SetViewport merges the request into the current viewport: zero fields keep
// their current value. It resizes when the size changed, then jumps to the
// resulting center and zoom.
func (c *LocalClient) SetViewport(state models.ViewportState) (models.ViewportState, error) {
	if _, err := c.ready(); err != nil {
		return models.ViewportState{}, err
	}

	c.inputMu.Lock()
	defer c.inputMu.Unlock()

	current := c.viewport.State()
	state = mergeViewport(current, state)
	if state.Width != current.Width || state.Height != current.Height {
		if err := c.viewport.Resize(state.Width, state.Height); err != nil {
			return models.ViewportState{}, err
		}
	}
	if err := c.viewport.JumpTo(orb.Point{state.Center[0], state.Center[1]}, state.Zoom); err != nil {
		return models.ViewportState{}, err
	}
	return c.viewport.State(), nil
}

func mergeViewport(current, req models.ViewportState) models.ViewportState {
	if req.Center == [2]float64{} {
		req.Center = current.Center
	}
	if req.Zoom == 0 {
		req.Zoom = current.Zoom
	}
	if req.Width == 0 && req.Height == 0 {
		req.Width, req.Height = current.Width, current.Height
	}
	return req
}

func (c *LocalClient) PanViewport(dx, dy float64) (models.ViewportState, error) {
	if _, err := c.ready(); err != nil {
		return models.ViewportState{}, err
	}
	c.viewport.Pan(dx, dy)
	return c.viewport.State(), nil
}

func (c *LocalClient) Subscribe(fn func(models.MarkerUpdate)) *event.Subscription {
	return c.updates.Subscribe(fn)
}

func (c *LocalClient) Status() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

func (c *LocalClient) GetLastUpdate() time.Time {
	return c.store.GetLastUpdate()
}
