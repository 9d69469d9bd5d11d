// Package playback animates one route on one viewer. Every viewer computes
// its state from the shared absolute start time, so late joiners fast-forward
// to where everyone else already is.
package playback

import (
	"math"
	"time"

	"github.com/jengzang/routecast/internal/builder"
	"github.com/jengzang/routecast/internal/models"
	"github.com/jengzang/routecast/internal/spatial"
)

// State is the lifecycle of a session.
type State int

const (
	Scheduled State = iota
	FastForwarding
	Animating
	Finishing
	Lingering
	Persisted
	// Expired is reached when the linger timer removes the drawing.
	Expired
	Cancelled
)

var stateNames = [...]string{
	Scheduled:      "scheduled",
	FastForwarding: "fast-forwarding",
	Animating:      "animating",
	Finishing:      "finishing",
	Lingering:      "lingering",
	Persisted:      "persisted",
	Expired:        "expired",
	Cancelled:      "cancelled",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Terminal reports whether the session holds no drawing any more.
func (s State) Terminal() bool {
	return s == Expired || s == Cancelled
}

const (
	minDuration   = 0.05 // seconds
	audioFade     = 500 * time.Millisecond
	referenceRate = 60 // frames per second the camera smoothing factor is tuned for
)

type marker struct {
	token      *models.Token
	lastUpdate time.Time
	snapReady  bool
}

// Session is the per-viewer runtime state of one playback.
type Session struct {
	payload  models.PlaybackPayload
	settings models.RouteSettings
	host     Host

	path     []models.Point
	metrics  *spatial.PathMetrics
	duration float64 // seconds
	dash     *DashState

	cameraScale     float64
	canAnimate      bool
	animateCamera   bool
	intro           time.Duration
	startAdjusted   time.Time
	activateAt      time.Time
	snapAt          time.Time
	lingerUntil     time.Time
	lastTick        time.Time
	cam             models.Point
	cameraSmoothing float64

	state   State
	idx     int // next path index to reveal
	elapsed float64
	marker  marker
	sound   Sound
}

// NewSession prepares a session for payload. It returns nil when the path
// has fewer than two points or no length.
func NewSession(p models.PlaybackPayload, host Host) *Session {
	metrics := spatial.BuildPathMetrics(p.Path)
	if metrics == nil || host.Surface == nil {
		return nil
	}
	s := p.Settings
	defaults := models.DefaultSettings()

	drawSpeed := s.DrawSpeed.Or(float64(defaults.DrawSpeed))
	if drawSpeed <= 0 {
		drawSpeed = float64(defaults.DrawSpeed)
	}
	dash, gap := builder.DashPattern(s)

	sess := &Session{
		payload:         p,
		settings:        s,
		host:            host,
		path:            p.Path,
		metrics:         metrics,
		duration:        math.Max(minDuration, metrics.Total/drawSpeed),
		dash:            NewDashState(dash, gap),
		cameraSmoothing: math.Min(1, math.Max(0, s.CameraSmooth.Or(float64(defaults.CameraSmooth)))),
		state:           Scheduled,
		idx:             1,
	}

	if host.Camera != nil && bool(s.CinematicMovement) && host.Camera.CanPan() {
		scale, ok := builder.CameraScaleForPath(metrics.Total,
			s.CameraZoomFactor.Or(float64(defaults.CameraZoomFactor)),
			host.Camera.Screen(), host.Camera.SceneSize())
		if ok {
			sess.cameraScale = scale
			sess.canAnimate = true
		}
	}

	var intro, pause time.Duration
	if sess.canAnimate {
		intro = millis(s.IntroMs.Or(float64(defaults.IntroMs)))
		pause = millis(s.PauseMs.Or(float64(defaults.PauseMs)))
	}
	sess.intro = intro
	sess.startAdjusted = time.UnixMilli(p.StartTime).Add(intro + pause)
	return sess
}

func millis(ms float64) time.Duration {
	if ms <= 0 {
		return 0
	}
	return time.Duration(ms * float64(time.Millisecond))
}

// Start is called once when the payload arrives. It places the marker,
// starts the camera intro and either activates immediately or defers
// activation to the shared start time.
func (s *Session) Start(now time.Time) {
	if s.state != Scheduled || !s.lastTick.IsZero() {
		return
	}
	s.lastTick = now
	start := s.path[0]
	s.cam = start

	if ref := s.settings.DotTokenUUID; ref != "" && s.host.Tokens != nil {
		s.host.Tokens.Resolve(ref, s.tokenResolved)
	}
	if s.settings.DotTokenUUID != "" && s.canAnimate && s.intro > 0 {
		s.snapAt = now.Add(s.intro)
	} else {
		s.updateMarker(start, 0, now)
	}

	s.elapsed = math.Max(0, now.Sub(s.startAdjusted).Seconds())
	s.animateCamera = s.canAnimate && s.elapsed < s.duration
	if s.animateCamera {
		s.host.Camera.AnimatePan(start, s.cameraScale, s.intro)
	}

	if now.Before(s.startAdjusted) {
		s.activateAt = s.startAdjusted
		return
	}
	s.activate(now)
}

// tokenResolved receives the bound token. Results arriving after the
// session was torn down are dropped.
func (s *Session) tokenResolved(t *models.Token) {
	if s.state.Terminal() || t == nil {
		return
	}
	s.marker.token = t
	if s.marker.snapReady {
		s.snapTokenToStart()
	}
}

func (s *Session) soundStarted(snd Sound) {
	if snd == nil {
		return
	}
	switch {
	case s.state == Cancelled || s.state == Expired:
		snd.Stop()
	case s.state >= Finishing:
		snd.Fade(0, audioFade)
	default:
		s.sound = snd
	}
}

func (s *Session) snapTokenToStart() {
	t := s.marker.token
	if t == nil {
		return
	}
	start := s.path[0]
	s.host.Tokens.MoveLocal(t, t.TopLeftFor(start))
	if s.host.Authoritative {
		s.host.Tokens.Update(t, t.TopLeftFor(start))
	}
}

func (s *Session) updateMarker(p models.Point, angle float64, now time.Time) {
	if t := s.marker.token; t != nil {
		topLeft := t.TopLeftFor(p)
		s.host.Tokens.MoveLocal(t, topLeft)
		if s.host.Authoritative {
			interval := millis(s.settings.TokenUpdateMs.Or(float64(models.DefaultSettings().TokenUpdateMs)))
			if now.Sub(s.marker.lastUpdate) > interval {
				s.marker.lastUpdate = now
				s.host.Tokens.Update(t, topLeft)
			}
		}
		s.host.Surface.Marker(p, angle, false)
		return
	}
	s.host.Surface.Marker(p, angle, bool(s.settings.ShowDot))
}

// activate fast-forwards to the current elapsed time and starts animating.
func (s *Session) activate(now time.Time) {
	s.state = FastForwarding
	s.activateAt = time.Time{}
	s.lastTick = now
	s.elapsed = math.Max(0, now.Sub(s.startAdjusted).Seconds())

	if ref := s.settings.RouteSound; ref != "" && s.host.Audio != nil {
		s.host.Audio.Play(ref, s.soundStarted)
	}

	s.idx = 1
	s.dash.Offset = 0
	s.reveal(math.Min(1, s.elapsed/s.duration), now)

	if s.elapsed/s.duration >= 1 {
		s.finish(now)
		return
	}
	s.state = Animating
}

// RevealedCount returns how many path points are revealed at progress t:
// the points whose arc length is at most t times the total length.
func RevealedCount(m *spatial.PathMetrics, t float64) int {
	if m == nil {
		return 0
	}
	t = math.Min(1, math.Max(0, t))
	target := t*m.Total + 1e-9*m.Total
	n := 0
	for n < len(m.Cumulative) && m.Cumulative[n] <= target {
		n++
	}
	return max(1, n)
}

// reveal draws every segment up to the progress cursor for t.
func (s *Session) reveal(t float64, now time.Time) {
	target := RevealedCount(s.metrics, t)
	for s.idx < target && s.idx < len(s.path) {
		prev, curr := s.path[s.idx-1], s.path[s.idx]
		s.dash.Segment(prev, curr, s.host.Surface.Line)
		s.updateMarker(curr, spatial.SegmentAngle(prev, curr), now)
		s.idx++
	}
}

// Tick advances the session to now. It is driven by the viewer's frame
// loop.
func (s *Session) Tick(now time.Time) {
	if s.state.Terminal() || s.lastTick.IsZero() {
		return
	}

	if !s.snapAt.IsZero() && !now.Before(s.snapAt) {
		s.snapAt = time.Time{}
		s.marker.snapReady = true
		s.snapTokenToStart()
	}

	switch s.state {
	case Scheduled:
		if !s.activateAt.IsZero() && !now.Before(s.activateAt) {
			s.activate(now)
		}
	case Animating:
		s.animate(now)
	case Lingering:
		if !now.Before(s.lingerUntil) {
			s.host.Surface.Destroy()
			s.state = Expired
		}
	}
}

func (s *Session) animate(now time.Time) {
	delta := math.Max(0, now.Sub(s.lastTick).Seconds())
	s.lastTick = now
	s.elapsed += delta

	t := math.Min(1, s.elapsed/s.duration)
	if s.animateCamera {
		target, _ := spatial.PointAtFraction(s.path, s.metrics, easeInOut(t))
		alpha := 1 - math.Pow(1-s.cameraSmoothing, delta*referenceRate)
		s.cam = spatial.Lerp(s.cam, target, alpha)
		s.host.Camera.Pan(s.cam, s.cameraScale)
	}
	s.reveal(t, now)

	if t >= 1 {
		end := s.path[len(s.path)-1]
		if s.animateCamera {
			s.host.Camera.Pan(end, s.cameraScale)
		}
		s.finish(now)
	}
}

func easeInOut(t float64) float64 {
	return t * t * (3 - 2*t)
}

// finish draws the complete route, places the end marker and label,
// releases the marker and audio, and arms the linger timer.
func (s *Session) finish(now time.Time) {
	s.state = Finishing
	surf := s.host.Surface
	end := s.path[len(s.path)-1]

	surf.ClearLine()
	s.dash.Path(s.path, surf.Line)
	s.idx = len(s.path)

	surf.Marker(end, 0, false)
	if s.settings.ShowEndX {
		surf.EndX(end, builder.EndMarkerSize(s.settings))
	}
	surf.Label(s.path, s.settings, s.payload.LabelText)

	if t := s.marker.token; t != nil && s.host.Authoritative {
		s.marker.lastUpdate = now
		s.host.Tokens.Update(t, t.TopLeftFor(end))
	}
	if s.sound != nil {
		s.sound.Fade(0, audioFade)
		s.sound = nil
	}

	if s.payload.LingerMs > 0 {
		s.lingerUntil = now.Add(millis(s.payload.LingerMs))
		s.state = Lingering
		return
	}
	s.state = Persisted
}

// Cancel tears the session down immediately. It is idempotent.
func (s *Session) Cancel() {
	if s.state.Terminal() {
		return
	}
	s.state = Cancelled
	s.snapAt = time.Time{}
	s.lingerUntil = time.Time{}
	if s.sound != nil {
		s.sound.Stop()
		s.sound = nil
	}
	s.host.Surface.Destroy()
}

// State returns the current state.
func (s *Session) State() State { return s.state }

// RouteID returns the payload's route id, possibly empty.
func (s *Session) RouteID() string { return s.payload.RouteID }

// SceneID returns the payload's scene.
func (s *Session) SceneID() string { return s.payload.SceneID }

// Revealed returns the number of path points revealed so far.
func (s *Session) Revealed() int { return s.idx }

// RevealedLength returns the arc length drawn so far.
func (s *Session) RevealedLength() float64 {
	return s.metrics.Cumulative[max(0, min(s.idx, len(s.path))-1)]
}

// Elapsed returns seconds of animation time since the adjusted start.
func (s *Session) Elapsed() float64 { return s.elapsed }

// Duration returns the animation length in seconds.
func (s *Session) Duration() float64 { return s.duration }

// TotalLength returns the path length.
func (s *Session) TotalLength() float64 { return s.metrics.Total }

// Path returns the drawn path.
func (s *Session) Path() []models.Point { return s.path }

// Settings returns the resolved settings of the payload.
func (s *Session) Settings() models.RouteSettings { return s.settings }

// LabelText returns the label the session draws when it finishes.
func (s *Session) LabelText() string { return s.payload.LabelText }

// Camera returns the smoothed camera target.
func (s *Session) Camera() models.Point { return s.cam }

// DrawStatic renders a finished route without animation: the full dashed
// line, the end marker and the label. Preview and bake use it so they look
// exactly like a completed playback.
func DrawStatic(path []models.Point, settings models.RouteSettings, surf Surface, labelText string, includeEndX bool) {
	if len(path) < 2 || surf == nil {
		return
	}
	dash, gap := builder.DashPattern(settings)
	surf.ClearLine()
	NewDashState(dash, gap).Path(path, surf.Line)
	end := path[len(path)-1]
	surf.Marker(end, 0, false)
	if includeEndX && bool(settings.ShowEndX) {
		surf.EndX(end, builder.EndMarkerSize(settings))
	}
	surf.Label(path, settings, labelText)
}
