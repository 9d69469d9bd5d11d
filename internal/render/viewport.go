package render

import (
	"time"

	"github.com/jengzang/routecast/internal/models"
	"github.com/jengzang/routecast/internal/spatial"
)

// Viewport is the pannable, zoomable view of the headless renderer. It
// implements playback.Camera.
type Viewport struct {
	screen models.Size
	scene  *models.Size

	center models.Point
	scale  float64

	// running AnimatePan
	from, to           models.Point
	fromScale, toScale float64
	start              time.Time
	length             time.Duration
	now                time.Time
}

// NewViewport creates a viewport looking at the middle of the scene, or
// at the origin when the scene size is unknown.
func NewViewport(screen models.Size, scene *models.Size) *Viewport {
	v := &Viewport{screen: screen, scale: 1}
	if scene.Valid() {
		s := *scene
		v.scene = &s
		v.center = models.Pt(s.Width/2, s.Height/2)
	}
	return v
}

// CanPan implements playback.Camera.
func (v *Viewport) CanPan() bool { return v.screen.Valid() }

// Screen implements playback.Camera.
func (v *Viewport) Screen() models.Size { return v.screen }

// SceneSize implements playback.Camera.
func (v *Viewport) SceneSize() *models.Size { return v.scene }

// AnimatePan implements playback.Camera.
func (v *Viewport) AnimatePan(p models.Point, scale float64, d time.Duration) {
	if d <= 0 {
		v.Pan(p, scale)
		return
	}
	v.from, v.fromScale = v.center, v.scale
	v.to, v.toScale = p, scale
	v.start = v.now
	v.length = d
}

// Pan implements playback.Camera.
func (v *Viewport) Pan(p models.Point, scale float64) {
	v.length = 0
	v.center = p
	if scale > 0 {
		v.scale = scale
	}
}

// advance moves a running AnimatePan forward to now.
func (v *Viewport) advance(now time.Time) {
	v.now = now
	if v.length <= 0 {
		return
	}
	if v.start.IsZero() {
		v.start = now
	}
	t := float64(now.Sub(v.start)) / float64(v.length)
	if t >= 1 {
		v.Pan(v.to, v.toScale)
		return
	}
	t = easeInOut(t)
	v.center = spatial.Lerp(v.from, v.to, t)
	if v.toScale > 0 {
		v.scale = v.fromScale + (v.toScale-v.fromScale)*t
	}
}

func easeInOut(t float64) float64 {
	t = min(1, max(0, t))
	return t * t * (3 - 2*t)
}

// Center returns the map point in the middle of the screen.
func (v *Viewport) Center() models.Point { return v.center }

// Scale returns the zoom (screen pixels per map pixel).
func (v *Viewport) Scale() float64 { return v.scale }

// MapPixelSize returns how many map pixels the screen shows.
func (v *Viewport) MapPixelSize() *models.Size {
	if !v.screen.Valid() || v.scale <= 0 {
		return nil
	}
	return &models.Size{Width: v.screen.Width / v.scale, Height: v.screen.Height / v.scale}
}
