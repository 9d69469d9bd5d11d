package playback

import (
	"time"

	"github.com/jengzang/routecast/internal/models"
)

// Surface is the drawing resource owned by one session.
type Surface interface {
	// Line strokes one visible dash.
	Line(a, b models.Point)
	// ClearLine removes every stroked dash.
	ClearLine()
	// Marker draws the travelling dot or token sprite; visible false hides it.
	Marker(p models.Point, angle float64, visible bool)
	// EndX draws the terminal X with the given half-size.
	EndX(p models.Point, size float64)
	// Label requests the route label; layout and rasterizing may finish
	// later.
	Label(path []models.Point, s models.RouteSettings, text string)
	// Destroy releases everything the surface holds. It must be idempotent.
	Destroy()
}

// Camera is the viewer's pannable viewport.
type Camera interface {
	CanPan() bool
	// AnimatePan moves to p at scale over d.
	AnimatePan(p models.Point, scale float64, d time.Duration)
	// Pan jumps to p at scale.
	Pan(p models.Point, scale float64)
	Screen() models.Size
	// SceneSize returns the scene dimensions, or nil if unknown.
	SceneSize() *models.Size
}

// Sound is a playing audio clip.
type Sound interface {
	Fade(volume float64, d time.Duration)
	Stop()
}

// AudioPlayer starts route sounds. done is called with nil if the source
// can't be resolved.
type AudioPlayer interface {
	Play(ref string, done func(Sound))
}

// TokenMover resolves and moves bound marker tokens. Resolve calls done
// with nil when the reference does not resolve to a token on the current
// scene.
type TokenMover interface {
	Resolve(ref string, done func(*models.Token))
	// MoveLocal moves the token on this viewer only.
	MoveLocal(t *models.Token, topLeft models.Point)
	// Update writes the position for everyone.
	Update(t *models.Token, topLeft models.Point)
}

// Host is everything a session needs from the viewer. Only Surface is
// required.
type Host struct {
	Surface Surface
	Camera  Camera
	Audio   AudioPlayer
	Tokens  TokenMover
	// Authoritative viewers write token positions; others only move them
	// locally.
	Authoritative bool
}
