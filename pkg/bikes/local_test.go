package bikes

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jusunglee/bikeshare-go/internal/feed"
	"github.com/jusunglee/bikeshare-go/internal/models"
	"github.com/jusunglee/bikeshare-go/internal/viewport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticSource struct {
	ds  *feed.Dataset
	err error
}

func (s staticSource) Load(ctx context.Context) (*feed.Dataset, error) {
	return s.ds, s.err
}

// gatedSource blocks Load until release is closed or the context ends
type gatedSource struct {
	release chan struct{}
}

func (s gatedSource) Load(ctx context.Context) (*feed.Dataset, error) {
	select {
	case <-s.release:
		return feed.CreateMockDataset(), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func testConfig(source Source) Config {
	return Config{
		Viewport: viewport.DefaultConfig(),
		Source:   source,
	}
}

func newLoadedClient(t *testing.T) *LocalClient {
	t.Helper()
	c, err := NewLocal(context.Background(), testConfig(staticSource{ds: feed.CreateMockDataset()}))
	require.NoError(t, err)
	t.Cleanup(c.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Wait(ctx))
	return c
}

func markerByID(t *testing.T, markers []models.Marker, id string) models.Marker {
	t.Helper()
	for _, m := range markers {
		if m.StationID == id {
			return m
		}
	}
	t.Fatalf("marker %s not found", id)
	return models.Marker{}
}

func TestLocalClientLoad(t *testing.T) {
	c := newLoadedClient(t)

	status := c.Status()
	assert.True(t, status.Loaded)
	assert.Equal(t, 3, status.Stations)
	assert.Equal(t, 8, status.Trips)
	assert.False(t, c.GetLastUpdate().IsZero())

	markers, err := c.GetMarkers()
	require.NoError(t, err)
	require.Len(t, markers, 3)

	kendall := markerByID(t, markers, "M32011")
	assert.Equal(t, 5, kendall.Arrivals)
	assert.Equal(t, 2, kendall.Departures)
	assert.Equal(t, "7 trips (2 departures, 5 arrivals)", kendall.Title)
	assert.InDelta(t, 25, kendall.Radius, 1e-9)

	mit := markerByID(t, markers, "M32006")
	assert.Equal(t, 4, mit.TotalTraffic)

	busiest, err := c.GetBusiest(1)
	require.NoError(t, err)
	require.Len(t, busiest, 1)
	assert.Equal(t, "M32011", busiest[0].StationID)

	near, err := c.GetMarkersByLocation(42.3655, -71.1035, 1)
	require.NoError(t, err)
	require.Len(t, near, 1)
	assert.Equal(t, "M32015", near[0].StationID)

	filter, err := c.GetFilter()
	require.NoError(t, err)
	assert.True(t, filter.AnyTime)
	assert.Equal(t, 8, filter.TripCount)
	assert.Equal(t, 8, filter.TotalTrips)
	assert.NotEmpty(t, filter.SnapshotID)
}

func TestLocalClientSetFilter(t *testing.T) {
	c := newLoadedClient(t)

	var updates []models.MarkerUpdate
	sub := c.Subscribe(func(u models.MarkerUpdate) {
		updates = append(updates, u)
	})
	defer sub.Unsubscribe()

	// 8:30 AM keeps the four morning trips
	update, err := c.SetFilter(510)
	require.NoError(t, err)
	assert.Equal(t, models.UpdateFilter, update.Kind)
	assert.Equal(t, models.TimeFilter(510), update.Filter)
	assert.Equal(t, 4, update.TripCount)
	require.Len(t, updates, 1)

	kendall := markerByID(t, update.Markers, "M32011")
	assert.Equal(t, 4, kendall.Arrivals)
	assert.Equal(t, 0, kendall.Departures)
	assert.InDelta(t, 50, kendall.Radius, 1e-9)
	assert.Equal(t, 0.0, kendall.DepartureRatio)

	central := markerByID(t, update.Markers, "M32015")
	assert.Equal(t, 3, central.Departures)
	assert.Equal(t, 1.0, central.DepartureRatio)

	// the store serves the new aggregate
	stored, err := c.GetMarkersByIDs([]string{"M32011"})
	require.NoError(t, err)
	assert.Equal(t, 4, stored[0].TotalTraffic)

	filter, err := c.GetFilter()
	require.NoError(t, err)
	assert.Equal(t, "8:30 AM", filter.Label)
	assert.Equal(t, 4, filter.TripCount)
	assert.Equal(t, 8, filter.TotalTrips)

	update, err = c.SetFilter(models.AnyTime)
	require.NoError(t, err)
	assert.Equal(t, 8, update.TripCount)
	assert.Equal(t, 7, markerByID(t, update.Markers, "M32011").TotalTraffic)

	_, err = c.SetFilter(1440)
	assert.ErrorIs(t, err, models.ErrInvalidFilter)
	assert.Len(t, updates, 2)
}

func TestLocalClientConcurrentSetFilter(t *testing.T) {
	c := newLoadedClient(t)

	filters := []models.TimeFilter{300, 510, 720, 1050, models.AnyTime, 1420}
	got := make([]models.MarkerUpdate, len(filters))

	var wg sync.WaitGroup
	for i, f := range filters {
		i, f := i, f
		wg.Add(1)
		go func() {
			defer wg.Done()
			update, err := c.SetFilter(f)
			assert.NoError(t, err)
			got[i] = update
		}()
	}
	wg.Wait()

	for i, f := range filters {
		assert.Equal(t, f, got[i].Filter)
	}

	status, err := c.GetFilter()
	require.NoError(t, err)
	current, err := c.Current()
	require.NoError(t, err)
	assert.Equal(t, current.Filter.State(), status.FilterState)
	assert.Equal(t, current.SnapshotID.String(), status.SnapshotID)
}

func TestLocalClientSetViewportPartial(t *testing.T) {
	c := newLoadedClient(t)
	initial, err := c.GetViewport()
	require.NoError(t, err)

	state, err := c.SetViewport(models.ViewportState{Zoom: 15})
	require.NoError(t, err)
	assert.Equal(t, initial.Center, state.Center)
	assert.Equal(t, 15.0, state.Zoom)
	assert.Equal(t, initial.Width, state.Width)

	state, err = c.SetViewport(models.ViewportState{Center: [2]float64{-71.0862, 42.3625}})
	require.NoError(t, err)
	assert.Equal(t, [2]float64{-71.0862, 42.3625}, state.Center)
	assert.Equal(t, 15.0, state.Zoom)
	assert.Equal(t, initial.Height, state.Height)

	_, err = c.SetViewport(models.ViewportState{Width: -1, Height: 600})
	assert.ErrorIs(t, err, viewport.ErrInvalid)
}

func TestLocalClientViewport(t *testing.T) {
	c := newLoadedClient(t)

	before, err := c.GetMarkers()
	require.NoError(t, err)

	var kinds []models.UpdateKind
	sub := c.Subscribe(func(u models.MarkerUpdate) {
		kinds = append(kinds, u.Kind)
	})
	defer sub.Unsubscribe()

	state, err := c.PanViewport(100, 0)
	require.NoError(t, err)
	assert.Greater(t, state.Center[0], viewport.DefaultConfig().Center.Lon())
	assert.Equal(t, []models.UpdateKind{models.UpdateViewport, models.UpdateViewport}, kinds)

	after, err := c.GetMarkers()
	require.NoError(t, err)
	for i := range before {
		assert.InDelta(t, before[i].Position.X-100, after[i].Position.X, 1e-6)
		assert.InDelta(t, before[i].Position.Y, after[i].Position.Y, 1e-6)
		assert.Equal(t, before[i].Radius, after[i].Radius)
	}

	state, err = c.SetViewport(models.ViewportState{
		Center: [2]float64{-71.0862, 42.3625},
		Zoom:   14,
		Width:  800,
		Height: 600,
	})
	require.NoError(t, err)
	assert.Equal(t, 14.0, state.Zoom)
	assert.Equal(t, 800.0, state.Width)

	markers, err := c.GetMarkers()
	require.NoError(t, err)
	kendall := markerByID(t, markers, "M32011")
	assert.InDelta(t, 400, kendall.Position.X, 1e-6)
	assert.InDelta(t, 300, kendall.Position.Y, 1e-6)

	_, err = c.SetViewport(models.ViewportState{Center: [2]float64{0, 95}, Zoom: 12})
	assert.ErrorIs(t, err, viewport.ErrInvalid)

	current, err := c.GetViewport()
	require.NoError(t, err)
	assert.Equal(t, state, current)
}

func TestLocalClientNotLoaded(t *testing.T) {
	source := gatedSource{release: make(chan struct{})}
	c, err := NewLocal(context.Background(), testConfig(source))
	require.NoError(t, err)
	defer c.Close()

	var loads []models.MarkerUpdate
	c.Subscribe(func(u models.MarkerUpdate) {
		loads = append(loads, u)
	})

	_, err = c.GetMarkers()
	assert.ErrorIs(t, err, ErrNotLoaded)
	_, err = c.SetFilter(600)
	assert.ErrorIs(t, err, ErrNotLoaded)
	_, err = c.GetViewport()
	assert.ErrorIs(t, err, ErrNotLoaded)
	assert.False(t, c.Status().Loaded)

	close(source.release)
	require.NoError(t, c.Wait(context.Background()))

	require.Len(t, loads, 1)
	assert.Equal(t, models.UpdateLoad, loads[0].Kind)
	assert.Len(t, loads[0].Markers, 3)

	_, err = c.GetMarkers()
	assert.NoError(t, err)
}

func TestLocalClientLoadFailure(t *testing.T) {
	c, err := NewLocal(context.Background(), testConfig(staticSource{err: errors.New("stations feed: HTTP 502")}))
	require.NoError(t, err)
	defer c.Close()

	err = c.Wait(context.Background())
	assert.ErrorIs(t, err, ErrNotLoaded)
	assert.Contains(t, c.Status().Error, "HTTP 502")

	_, err = c.GetMarkers()
	assert.ErrorIs(t, err, ErrNotLoaded)
	_, err = c.GetFilter()
	assert.ErrorIs(t, err, ErrNotLoaded)

	// no stations is a failed load too
	c2, err := NewLocal(context.Background(), testConfig(staticSource{ds: &feed.Dataset{}}))
	require.NoError(t, err)
	defer c2.Close()
	assert.ErrorIs(t, c2.Wait(context.Background()), ErrNotLoaded)
}

func TestLocalClientClose(t *testing.T) {
	c, err := NewLocal(context.Background(), testConfig(gatedSource{release: make(chan struct{})}))
	require.NoError(t, err)

	c.Close()
	assert.ErrorIs(t, c.Wait(context.Background()), ErrNotLoaded)
	assert.Contains(t, c.Status().Error, context.Canceled.Error())
}

func TestNewLocalInvalidViewport(t *testing.T) {
	cfg := testConfig(staticSource{ds: feed.CreateMockDataset()})
	cfg.Viewport.Width = 0

	_, err := NewLocal(context.Background(), cfg)
	assert.ErrorIs(t, err, viewport.ErrInvalid)
}
