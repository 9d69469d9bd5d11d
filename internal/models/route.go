package models

import (
	"fmt"
	"math"
	"time"

	"github.com/golang/geo/r2"
	"github.com/google/uuid"
)

// Point is a position in map pixel coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Pt returns the point (x, y).
func Pt(x, y float64) Point {
	return Point{X: x, Y: y}
}

// R2 converts the point to an r2.Point.
func (p Point) R2() r2.Point {
	return r2.Point{X: p.X, Y: p.Y}
}

// FromR2 converts an r2.Point to a Point.
func FromR2(v r2.Point) Point {
	return Point{X: v.X, Y: v.Y}
}

// Finite reports whether both coordinates are finite.
func (p Point) Finite() bool {
	return !math.IsNaN(p.X) && !math.IsInf(p.X, 0) && !math.IsNaN(p.Y) && !math.IsInf(p.Y, 0)
}

func (p Point) String() string {
	return fmt.Sprintf("(%g, %g)", p.X, p.Y)
}

// ClonePoints returns a copy of pts.
func ClonePoints(pts []Point) []Point {
	if pts == nil {
		return nil
	}
	out := make([]Point, len(pts))
	copy(out, pts)
	return out
}

// RouteRecord is a named, persisted route on one scene.
type RouteRecord struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Points    []Point       `json:"points"`
	Settings  RouteSettings `json:"settings"`
	CreatedAt int64         `json:"createdAt"` // Unix milliseconds
	UpdatedAt int64         `json:"updatedAt"` // Unix milliseconds
}

// Clone returns a deep copy of the record.
func (r RouteRecord) Clone() RouteRecord {
	out := r
	out.Points = ClonePoints(r.Points)
	out.Settings = r.Settings.Clone()
	return out
}

// CloneRoutes deep-copies a route collection.
func CloneRoutes(routes []RouteRecord) []RouteRecord {
	out := make([]RouteRecord, len(routes))
	for i, r := range routes {
		out[i] = r.Clone()
	}
	return out
}

// NewRouteID returns a fresh route identifier.
func NewRouteID() string {
	return uuid.NewString()
}

// NowMillis returns the current wall-clock time in Unix milliseconds.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}

// PlaybackPayload is the ephemeral "play this route now" message body.
type PlaybackPayload struct {
	SceneID   string        `json:"sceneId"`
	Path      []Point       `json:"path"`
	Settings  RouteSettings `json:"settings"`
	StartTime int64         `json:"startTime"` // absolute Unix milliseconds
	LingerMs  float64       `json:"lingerMs"`
	RouteID   string        `json:"routeId,omitempty"`
	LabelText string        `json:"labelText,omitempty"`
}

// RouteExport is the file interchange document.
type RouteExport struct {
	SceneID    string        `json:"sceneId"`
	ExportedAt int64         `json:"exportedAt"`
	Routes     []RouteRecord `json:"routes"`
}

// PlayOverrides are optional per-call changes applied when playing a saved
// route.
type PlayOverrides struct {
	DrawSpeed      *float64 `json:"drawSpeed,omitempty"`
	LingerMs       *float64 `json:"lingerMs,omitempty"`
	ShowLabel      *bool    `json:"showLabel,omitempty"`
	LabelShowArrow *bool    `json:"labelShowArrow,omitempty"`
	ShowEndX       *bool    `json:"showEndX,omitempty"`
	Cinematic      *bool    `json:"cinematicMovement,omitempty"`
	LabelText      *string  `json:"labelText,omitempty"`
}

// Apply returns s with the overrides applied.
func (o PlayOverrides) Apply(s RouteSettings) RouteSettings {
	out := s.Clone()
	if o.DrawSpeed != nil {
		out.DrawSpeed = Num(*o.DrawSpeed)
	}
	if o.LingerMs != nil {
		out.LingerMs = Num(*o.LingerMs)
	}
	if o.ShowLabel != nil {
		out.ShowLabel = Flag(*o.ShowLabel)
	}
	if o.LabelShowArrow != nil {
		out.LabelShowArrow = Flag(*o.LabelShowArrow)
	}
	if o.ShowEndX != nil {
		out.ShowEndX = Flag(*o.ShowEndX)
	}
	if o.Cinematic != nil {
		out.CinematicMovement = Flag(*o.Cinematic)
	}
	return out
}

// Tile is a baked route image placed on a scene.
type Tile struct {
	ID        int64   `json:"id"`
	SceneID   string  `json:"sceneId"`
	RouteID   string  `json:"routeId,omitempty"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	Width     int     `json:"width"`
	Height    int     `json:"height"`
	Src       string  `json:"src"`
	Locked    bool    `json:"locked"`
	CreatedAt int64   `json:"createdAt"`
}

// Token is a marker token that a route can drive.
type Token struct {
	ID      string  `json:"id"`
	SceneID string  `json:"sceneId"`
	Name    string  `json:"name"`
	Image   string  `json:"image,omitempty"`
	X       float64 `json:"x"` // top-left
	Y       float64 `json:"y"`
	Width   float64 `json:"width"` // pixels
	Height  float64 `json:"height"`
}

// Center returns the token's centre point.
func (t Token) Center() Point {
	return Point{X: t.X + t.Width/2, Y: t.Y + t.Height/2}
}

// TopLeftFor returns the top-left position that centres the token on p.
func (t Token) TopLeftFor(p Point) Point {
	return Point{X: p.X - t.Width/2, Y: p.Y - t.Height/2}
}
