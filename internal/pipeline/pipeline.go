package pipeline

import (
	"errors"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/jusunglee/bikeshare-go/internal/event"
	"github.com/jusunglee/bikeshare-go/internal/models"
	"github.com/jusunglee/bikeshare-go/internal/scale"
	"github.com/jusunglee/bikeshare-go/internal/traffic"
	"github.com/jusunglee/bikeshare-go/internal/viewport"
	"github.com/paulmach/orb"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("module", "pipeline")

var (
	ErrNoStations   = errors.New("no stations to render")
	ErrNoProjection = errors.New("no projection")
)

// Projector maps geographic coordinates to the current viewport pixels
type Projector interface {
	Project(orb.Point) models.ScreenPoint
}

// FilterSource emits time filter input events
type FilterSource interface {
	OnInput(fn func(models.TimeFilter)) *event.Subscription
}

// ViewportSource emits viewport change events
type ViewportSource interface {
	OnChange(fn func(viewport.Change)) *event.Subscription
}

// Options tunes the pipeline
type Options struct {
	// FixedRadiusDomain keeps the radius domain computed from the unfiltered
	// trips instead of re-domaining it on every filter change
	FixedRadiusDomain bool
}

// Pipeline keeps a keyed marker set in sync with the time filter and the
// viewport. Triggers run one at a time and to completion: a filter change
// re-aggregates and restyles, a viewport change only re-projects.
type Pipeline struct {
	mu   sync.Mutex
	opts Options

	// immutable after New
	stations  []models.Station
	trips     []models.Trip
	projector Projector

	radius   *scale.Sqrt
	flow     *scale.Quantize
	snapshot *traffic.Snapshot
	markers  map[string]*models.Marker
	order    []string
	lastKind models.UpdateKind

	updates *event.Bus[models.MarkerUpdate]
	subs    []*event.Subscription
}

// New aggregates all trips, builds one marker per station and projects them
func New(stations []models.Station, trips []models.Trip, projector Projector, opts Options) (*Pipeline, error) {
	if len(stations) == 0 {
		return nil, ErrNoStations
	}
	if projector == nil {
		return nil, ErrNoProjection
	}

	p := &Pipeline{
		opts:      opts,
		stations:  slices.Clone(stations),
		trips:     trips,
		projector: projector,
		radius:    scale.NewSqrt(),
		flow:      scale.NewFlowScale(),
		markers:   make(map[string]*models.Marker, len(stations)),
		lastKind:  models.UpdateLoad,
		updates:   event.NewBus[models.MarkerUpdate](),
	}

	p.snapshot = traffic.Aggregate(p.stations, p.trips, models.AnyTime)
	p.rescale(models.AnyTime, true)

	for _, station := range p.snapshot.Stations {
		if _, ok := p.markers[station.ShortName]; ok {
			log.Warnf("duplicate station %s, keeping the last record", station.ShortName)
		} else {
			p.order = append(p.order, station.ShortName)
		}
		p.markers[station.ShortName] = &models.Marker{
			StationID: station.ShortName,
			Name:      station.Name,
			Location:  station.Location,
		}
	}
	sort.Strings(p.order)

	p.restyle()
	p.project()

	log.Infof("pipeline ready: %d markers, %d trips", len(p.order), len(p.trips))
	return p, nil
}

// Bind subscribes the pipeline to a filter control and a viewport. The
// subscriptions live until Close.
func (p *Pipeline) Bind(filters FilterSource, vp ViewportSource) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if filters != nil {
		p.subs = append(p.subs, filters.OnInput(func(f models.TimeFilter) {
			if err := p.ApplyFilter(f); err != nil {
				log.Errorf("filter %d: %v", int(f), err)
			}
		}))
	}
	if vp != nil {
		p.subs = append(p.subs, vp.OnChange(func(c viewport.Change) {
			log.Debugf("viewport %s", c.Kind)
			p.Reproject()
		}))
	}
}

// Close drops every subscription taken by Bind
func (p *Pipeline) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, sub := range p.subs {
		sub.Unsubscribe()
	}
	p.subs = nil
}

// Subscribe registers fn for marker updates. fn runs while the pipeline
// holds its lock and must not call back into it.
func (p *Pipeline) Subscribe(fn func(models.MarkerUpdate)) *event.Subscription {
	return p.updates.Subscribe(fn)
}

// ApplyFilter re-aggregates the full trip collection under filter against
// the original stations and restyles every marker. Positions are kept.
func (p *Pipeline) ApplyFilter(filter models.TimeFilter) error {
	if err := filter.Validate(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	start := time.Now()
	subset := traffic.FilterTrips(p.trips, filter)
	p.snapshot = traffic.Aggregate(p.stations, subset, filter)
	p.rescale(filter, !p.opts.FixedRadiusDomain)
	p.restyle()

	log.Debugf("filter %d (%s): %d/%d trips in %v",
		int(filter), filter.Label(), len(subset), len(p.trips), time.Since(start))
	p.publish(models.UpdateFilter)
	return nil
}

// Reproject recomputes every marker position from its coordinates and the
// projector's current state
func (p *Pipeline) Reproject() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.project()
	p.publish(models.UpdateViewport)
}

// Current returns the latest marker set as an update of the last trigger kind
func (p *Pipeline) Current() models.MarkerUpdate {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.update(p.lastKind)
}

// Markers returns a copy of the marker set, ordered by station id
func (p *Pipeline) Markers() []models.Marker {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.copyMarkers()
}

// Snapshot returns the latest aggregation result
func (p *Pipeline) Snapshot() *traffic.Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snapshot
}

// Filter returns the active time filter
func (p *Pipeline) Filter() models.TimeFilter {
	return p.Snapshot().Filter
}

func (p *Pipeline) rescale(filter models.TimeFilter, redomain bool) {
	if redomain {
		// an empty subset keeps zero traffic at the bottom of the range
		p.radius.Domain(0, float64(max(p.snapshot.MaxTraffic, 1)))
	}
	r := scale.RadiusRange(filter)
	p.radius.Range(r[0], r[1])
}

func (p *Pipeline) restyle() {
	for _, station := range p.snapshot.Stations {
		m := p.markers[station.ShortName]
		m.Arrivals = station.Arrivals
		m.Departures = station.Departures
		m.TotalTraffic = station.TotalTraffic
		m.Radius = p.radius.Scale(float64(station.TotalTraffic))
		m.DepartureRatio = p.flow.Scale(scale.FlowRatio(station.Departures, station.TotalTraffic))
		m.Title = models.MarkerTitle(station.TotalTraffic, station.Departures, station.Arrivals)
	}
}

func (p *Pipeline) project() {
	for _, m := range p.markers {
		m.Position = p.projector.Project(m.Location)
	}
}

func (p *Pipeline) publish(kind models.UpdateKind) {
	p.lastKind = kind
	p.updates.Publish(p.update(kind))
}

func (p *Pipeline) update(kind models.UpdateKind) models.MarkerUpdate {
	return models.MarkerUpdate{
		Kind:       kind,
		SnapshotID: p.snapshot.ID,
		Filter:     p.snapshot.Filter,
		TripCount:  p.snapshot.TripCount,
		Markers:    p.copyMarkers(),
		At:         time.Now(),
	}
}

func (p *Pipeline) copyMarkers() []models.Marker {
	out := make([]models.Marker, len(p.order))
	for i, id := range p.order {
		out[i] = *p.markers[id]
	}
	return out
}
