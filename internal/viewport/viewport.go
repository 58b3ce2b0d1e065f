package viewport

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/jusunglee/bikeshare-go/internal/event"
	"github.com/jusunglee/bikeshare-go/internal/models"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
)

// TileSize is the pixel width of the world at zoom 0
const TileSize = 512

// half the Web Mercator world width in meters
const halfWorld = 20037508.342789244

// ErrInvalid is returned for out of range centers and sizes
var ErrInvalid = errors.New("invalid viewport")

// ChangeKind names a viewport event
type ChangeKind string

const (
	Move    ChangeKind = "move"
	Zoom    ChangeKind = "zoom"
	Resize  ChangeKind = "resize"
	MoveEnd ChangeKind = "moveend"
)

// Change is emitted after the viewport moved, zoomed or resized
type Change struct {
	Kind  ChangeKind
	State models.ViewportState
}

// Config holds the initial viewport
type Config struct {
	Center  orb.Point
	Zoom    float64
	MinZoom float64
	MaxZoom float64
	Width   float64
	Height  float64
}

// DefaultConfig centers the map on Cambridge/Boston
func DefaultConfig() Config {
	return Config{
		Center:  orb.Point{-71.09415, 42.36027},
		Zoom:    12,
		MinZoom: 5,
		MaxZoom: 18,
		Width:   1024,
		Height:  768,
	}
}

// Viewport projects geographic coordinates to pixels of a Web Mercator map
type Viewport struct {
	mu      sync.RWMutex
	center  orb.Point
	zoom    float64
	minZoom float64
	maxZoom float64
	width   float64
	height  float64

	changes *event.Bus[Change]
}

// New creates a viewport
func New(cfg Config) *Viewport {
	v := &Viewport{
		center:  cfg.Center,
		minZoom: cfg.MinZoom,
		maxZoom: cfg.MaxZoom,
		width:   cfg.Width,
		height:  cfg.Height,
		changes: event.NewBus[Change](),
	}
	if v.maxZoom < v.minZoom {
		v.minZoom, v.maxZoom = v.maxZoom, v.minZoom
	}
	v.zoom = v.clampZoom(cfg.Zoom)
	return v
}

// OnChange subscribes fn to viewport changes
func (v *Viewport) OnChange(fn func(Change)) *event.Subscription {
	return v.changes.Subscribe(fn)
}

// Project converts a lon/lat point into viewport pixels
func (v *Viewport) Project(p orb.Point) models.ScreenPoint {
	v.mu.RLock()
	defer v.mu.RUnlock()

	size := worldSize(v.zoom)
	px, py := worldPixel(p, size)
	cx, cy := worldPixel(v.center, size)
	return models.ScreenPoint{
		X: px - cx + v.width/2,
		Y: py - cy + v.height/2,
	}
}

// Unproject converts viewport pixels back into lon/lat
func (v *Viewport) Unproject(sp models.ScreenPoint) orb.Point {
	v.mu.RLock()
	defer v.mu.RUnlock()

	size := worldSize(v.zoom)
	cx, cy := worldPixel(v.center, size)
	return fromWorldPixel(cx+sp.X-v.width/2, cy+sp.Y-v.height/2, size)
}

// Pan moves the map by dx, dy pixels
func (v *Viewport) Pan(dx, dy float64) {
	v.mu.Lock()
	size := worldSize(v.zoom)
	cx, cy := worldPixel(v.center, size)
	v.center = fromWorldPixel(cx+dx, cy+dy, size)
	v.mu.Unlock()

	v.emit(Move)
	v.emit(MoveEnd)
}

// JumpTo sets center and zoom at once
func (v *Viewport) JumpTo(center orb.Point, zoom float64) error {
	if center.Lat() < -90 || center.Lat() > 90 || center.Lon() < -180 || center.Lon() > 180 {
		return fmt.Errorf("%w: center %v out of range", ErrInvalid, center)
	}

	v.mu.Lock()
	zoomed := v.clampZoom(zoom) != v.zoom
	v.center = center
	v.zoom = v.clampZoom(zoom)
	v.mu.Unlock()

	v.emit(Move)
	if zoomed {
		v.emit(Zoom)
	}
	v.emit(MoveEnd)
	return nil
}

// SetZoom changes the zoom level, clamped to the configured bounds
func (v *Viewport) SetZoom(zoom float64) {
	v.mu.Lock()
	v.zoom = v.clampZoom(zoom)
	v.mu.Unlock()

	v.emit(Zoom)
}

// Resize changes the viewport size in pixels
func (v *Viewport) Resize(width, height float64) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: size %vx%v", ErrInvalid, width, height)
	}

	v.mu.Lock()
	v.width, v.height = width, height
	v.mu.Unlock()

	v.emit(Resize)
	return nil
}

// State returns the current viewport
func (v *Viewport) State() models.ViewportState {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return models.ViewportState{
		Center: [2]float64{v.center.Lon(), v.center.Lat()},
		Zoom:   v.zoom,
		Width:  v.width,
		Height: v.height,
	}
}

func (v *Viewport) emit(kind ChangeKind) {
	v.changes.Publish(Change{Kind: kind, State: v.State()})
}

func (v *Viewport) clampZoom(zoom float64) float64 {
	return math.Max(v.minZoom, math.Min(v.maxZoom, zoom))
}

func worldSize(zoom float64) float64 {
	return TileSize * math.Pow(2, zoom)
}

func worldPixel(p orb.Point, size float64) (float64, float64) {
	m := project.WGS84.ToMercator(p)
	x := (m.X() + halfWorld) / (2 * halfWorld) * size
	y := (halfWorld - m.Y()) / (2 * halfWorld) * size
	return x, y
}

func fromWorldPixel(x, y, size float64) orb.Point {
	m := orb.Point{
		x/size*(2*halfWorld) - halfWorld,
		halfWorld - y/size*(2*halfWorld),
	}
	return project.Mercator.ToWGS84(m)
}
