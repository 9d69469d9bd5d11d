package playback

import (
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/jengzang/routecast/internal/models"
	"github.com/jengzang/routecast/internal/spatial"
)

func diff(t *testing.T, want, got any, opts ...cmp.Option) {
	t.Helper()
	if d := cmp.Diff(want, got, opts...); d != "" {
		t.Error(d)
	}
}

var approx = cmpopts.EquateApprox(0, 1e-9)

type fakeSurface struct {
	lines     int
	dashLen   float64
	clears    int
	markers   []models.Point
	hidden    int
	endX      []models.Point
	labels    []string
	destroyed int
}

func (f *fakeSurface) Line(a, b models.Point) {
	f.lines++
	f.dashLen += spatial.Distance(a, b)
}
func (f *fakeSurface) ClearLine() {
	f.clears++
	f.lines = 0
	f.dashLen = 0
}
func (f *fakeSurface) Marker(p models.Point, angle float64, visible bool) {
	if !visible {
		f.hidden++
		return
	}
	f.markers = append(f.markers, p)
}
func (f *fakeSurface) EndX(p models.Point, size float64) { f.endX = append(f.endX, p) }
func (f *fakeSurface) Label(path []models.Point, s models.RouteSettings, text string) {
	f.labels = append(f.labels, text)
}
func (f *fakeSurface) Destroy() { f.destroyed++ }

type fakeCamera struct {
	pans    []models.Point
	animate []time.Duration
}

func (c *fakeCamera) CanPan() bool { return true }
func (c *fakeCamera) AnimatePan(p models.Point, scale float64, d time.Duration) {
	c.animate = append(c.animate, d)
}
func (c *fakeCamera) Pan(p models.Point, scale float64) { c.pans = append(c.pans, p) }
func (c *fakeCamera) Screen() models.Size              { return models.Size{Width: 1920, Height: 1080} }
func (c *fakeCamera) SceneSize() *models.Size          { return nil }

type tokenCall struct {
	local bool
	at    models.Point
}

type fakeTokens struct {
	token   *models.Token
	pending func(*models.Token)
	calls   []tokenCall
}

func (f *fakeTokens) Resolve(ref string, done func(*models.Token)) { f.pending = done }
func (f *fakeTokens) MoveLocal(t *models.Token, topLeft models.Point) {
	f.calls = append(f.calls, tokenCall{local: true, at: topLeft})
}
func (f *fakeTokens) Update(t *models.Token, topLeft models.Point) {
	f.calls = append(f.calls, tokenCall{at: topLeft})
}
func (f *fakeTokens) updates() []models.Point {
	var out []models.Point
	for _, c := range f.calls {
		if !c.local {
			out = append(out, c.at)
		}
	}
	return out
}

type fakeSound struct{ faded, stopped bool }

func (s *fakeSound) Fade(v float64, d time.Duration) { s.faded = true }
func (s *fakeSound) Stop()                           { s.stopped = true }

type fakeAudio struct{ done func(Sound) }

func (a *fakeAudio) Play(ref string, done func(Sound)) { a.done = done }

// straightPath is a 500px line sampled every 10px.
func straightPath() []models.Point {
	return spatial.Resample([]models.Point{models.Pt(0, 0), models.Pt(500, 0)}, 10)
}

func payload(start time.Time) models.PlaybackPayload {
	s := models.DefaultSettings()
	s.DrawSpeed = 100
	s.CinematicMovement = false
	s.DashLength = 20
	s.GapLength = 14
	return models.PlaybackPayload{
		SceneID:   "scene",
		Path:      straightPath(),
		Settings:  s,
		StartTime: start.UnixMilli(),
		LingerMs:  -1,
		RouteID:   "r1",
		LabelText: "Road",
	}
}

var epoch = time.UnixMilli(1_700_000_000_000)

func TestNewSessionRejectsDegeneratePath(t *testing.T) {
	p := payload(epoch)
	p.Path = []models.Point{models.Pt(1, 1)}
	if s := NewSession(p, Host{Surface: &fakeSurface{}}); s != nil {
		t.Error("expected nil session")
	}
}

func TestScenarioCFastForwardHalfway(t *testing.T) {
	surf := &fakeSurface{}
	s := NewSession(payload(epoch), Host{Surface: surf})
	s.Start(epoch.Add(2500 * time.Millisecond))

	if s.State() != Animating {
		t.Fatalf("state %v, want animating", s.State())
	}
	if got := s.RevealedLength() / s.TotalLength(); math.Abs(got-0.5) > 1e-9 {
		t.Errorf("revealed fraction %v, want 0.5", got)
	}
	if surf.dashLen <= 0 || surf.dashLen > 250+1e-9 {
		t.Errorf("dashed length %v, want within the revealed 250px", surf.dashLen)
	}
}

func TestScenarioCWithCameraIntro(t *testing.T) {
	surf := &fakeSurface{}
	cam := &fakeCamera{}
	p := payload(epoch)
	p.Settings.CinematicMovement = true
	p.Settings.IntroMs = 1000
	p.Settings.PauseMs = 500

	s := NewSession(p, Host{Surface: surf, Camera: cam})
	s.Start(epoch.Add(1500*time.Millisecond + 2500*time.Millisecond))
	if got := s.RevealedLength(); math.Abs(got-250) > 1e-9 {
		t.Errorf("revealed %v, want 250", got)
	}
	diff(t, []time.Duration{time.Second}, cam.animate)
}

func TestFastForwardMatchesAnimation(t *testing.T) {
	const frame = 15625 * time.Microsecond // 1/64 s
	for _, at := range []time.Duration{0, 625 * time.Millisecond, 2500 * time.Millisecond, 4 * time.Second} {
		jumped := NewSession(payload(epoch), Host{Surface: &fakeSurface{}})
		jumped.Start(epoch.Add(at))

		animated := NewSession(payload(epoch), Host{Surface: &fakeSurface{}})
		now := epoch
		animated.Start(now)
		for now.Sub(epoch) < at {
			now = now.Add(frame)
			animated.Tick(now)
		}

		if jumped.Revealed() != animated.Revealed() {
			t.Errorf("at %v: fast-forward revealed %d, animation revealed %d", at, jumped.Revealed(), animated.Revealed())
		}
		if math.Abs(jumped.Elapsed()-animated.Elapsed()) > 1e-9 {
			t.Errorf("at %v: elapsed %v vs %v", at, jumped.Elapsed(), animated.Elapsed())
		}
	}
}

func TestAnimationFinishes(t *testing.T) {
	surf := &fakeSurface{}
	s := NewSession(payload(epoch), Host{Surface: surf})
	s.Start(epoch)
	for now := epoch; s.State() == Animating; {
		now = now.Add(100 * time.Millisecond)
		s.Tick(now)
	}
	if s.State() != Persisted {
		t.Fatalf("state %v, want persisted", s.State())
	}
	if s.Revealed() != len(s.Path()) {
		t.Errorf("revealed %d of %d", s.Revealed(), len(s.Path()))
	}
	diff(t, []models.Point{models.Pt(500, 0)}, surf.endX, approx)
	diff(t, []string{"Road"}, surf.labels)
	if surf.clears != 1 {
		t.Errorf("full redraw count %d, want 1", surf.clears)
	}
}

func TestLateJoinerSkipsToFinish(t *testing.T) {
	surf := &fakeSurface{}
	s := NewSession(payload(epoch), Host{Surface: surf})
	s.Start(epoch.Add(time.Minute))
	if s.State() != Persisted {
		t.Errorf("state %v, want persisted", s.State())
	}
	if len(surf.endX) != 1 || len(surf.labels) != 1 {
		t.Errorf("end marker %d, labels %d", len(surf.endX), len(surf.labels))
	}
}

func TestScenarioDLinger(t *testing.T) {
	t.Run("persist", func(t *testing.T) {
		surf := &fakeSurface{}
		s := NewSession(payload(epoch), Host{Surface: surf})
		s.Start(epoch.Add(10 * time.Second))
		s.Tick(epoch.Add(time.Hour))
		if s.State() != Persisted || surf.destroyed != 0 {
			t.Errorf("state %v, destroyed %d", s.State(), surf.destroyed)
		}
	})

	t.Run("linger from finish", func(t *testing.T) {
		surf := &fakeSurface{}
		p := payload(epoch)
		p.LingerMs = 2000
		s := NewSession(p, Host{Surface: surf})
		s.Start(epoch)

		// 5s of animation
		now := epoch
		for s.State() == Animating {
			now = now.Add(250 * time.Millisecond)
			s.Tick(now)
		}
		finished := now
		if s.State() != Lingering {
			t.Fatalf("state %v, want lingering", s.State())
		}
		// 2s after Scheduled would already be over
		s.Tick(epoch.Add(2 * time.Second))
		s.Tick(finished.Add(1999 * time.Millisecond))
		if surf.destroyed != 0 {
			t.Fatal("destroyed before the linger elapsed")
		}
		s.Tick(finished.Add(2000 * time.Millisecond))
		if s.State() != Expired || surf.destroyed != 1 {
			t.Errorf("state %v, destroyed %d", s.State(), surf.destroyed)
		}
	})
}

func TestDeferredStart(t *testing.T) {
	surf := &fakeSurface{}
	s := NewSession(payload(epoch.Add(time.Second)), Host{Surface: surf})
	s.Start(epoch)
	if s.State() != Scheduled {
		t.Fatalf("state %v, want scheduled", s.State())
	}
	s.Tick(epoch.Add(999 * time.Millisecond))
	if s.State() != Scheduled || surf.lines != 0 {
		t.Fatalf("activated early: %v, %d lines", s.State(), surf.lines)
	}
	s.Tick(epoch.Add(time.Second))
	if s.State() != Animating {
		t.Errorf("state %v, want animating", s.State())
	}
}

func TestCancel(t *testing.T) {
	surf := &fakeSurface{}
	audio := &fakeAudio{}
	p := payload(epoch)
	p.Settings.RouteSound = "sounds/wagon.ogg"
	s := NewSession(p, Host{Surface: surf, Audio: audio})
	s.Start(epoch.Add(time.Second))
	snd := &fakeSound{}
	audio.done(snd)

	s.Cancel()
	s.Cancel()
	if surf.destroyed != 1 {
		t.Errorf("destroyed %d times, want 1", surf.destroyed)
	}
	if !snd.stopped {
		t.Error("sound not stopped")
	}
	lines := surf.lines
	s.Tick(epoch.Add(10 * time.Second))
	if surf.lines != lines || len(surf.labels) != 0 {
		t.Error("cancelled session kept drawing")
	}
}

func TestSoundFadesAtFinish(t *testing.T) {
	audio := &fakeAudio{}
	p := payload(epoch)
	p.Settings.RouteSound = "sounds/wagon.ogg"
	s := NewSession(p, Host{Surface: &fakeSurface{}, Audio: audio})
	s.Start(epoch)
	snd := &fakeSound{}
	audio.done(snd)
	s.Tick(epoch.Add(6 * time.Second))
	if !snd.faded {
		t.Error("sound not faded at finish")
	}

	late := &fakeSound{}
	audio.done(late)
	if !late.faded {
		t.Error("sound resolved after finish should fade out")
	}
}

func TestTokenUpdatesThrottled(t *testing.T) {
	tokens := &fakeTokens{}
	p := payload(epoch)
	p.Settings.DotTokenUUID = "Scene.x.Token.y"
	p.Settings.TokenUpdateMs = 100

	s := NewSession(p, Host{Surface: &fakeSurface{}, Tokens: tokens, Authoritative: true})
	s.Start(epoch)
	tok := &models.Token{ID: "y", Width: 50, Height: 50}
	tokens.pending(tok)

	now := epoch
	for s.State() == Animating {
		now = now.Add(10 * time.Millisecond)
		s.Tick(now)
	}
	ups := tokens.updates()
	// 5s of animation at most one write per 100ms, plus the final write
	if len(ups) == 0 || len(ups) > 52 {
		t.Fatalf("%d authoritative updates", len(ups))
	}
	diff(t, models.Pt(475, -25), ups[len(ups)-1], approx)

	locals := 0
	for _, c := range tokens.calls {
		if c.local {
			locals++
		}
	}
	if locals < len(s.Path())-1 {
		t.Errorf("%d local moves, want one per revealed point", locals)
	}
}

func TestNonAuthoritativeNeverWrites(t *testing.T) {
	tokens := &fakeTokens{}
	p := payload(epoch)
	p.Settings.DotTokenUUID = "Scene.x.Token.y"
	s := NewSession(p, Host{Surface: &fakeSurface{}, Tokens: tokens})
	s.Start(epoch)
	tokens.pending(&models.Token{ID: "y", Width: 10, Height: 10})
	s.Tick(epoch.Add(10 * time.Second))
	if ups := tokens.updates(); len(ups) != 0 {
		t.Errorf("non-authoritative viewer wrote %d updates", len(ups))
	}
}

func TestTokenResolvedAfterCancelIgnored(t *testing.T) {
	tokens := &fakeTokens{}
	p := payload(epoch)
	p.Settings.DotTokenUUID = "Scene.x.Token.y"
	s := NewSession(p, Host{Surface: &fakeSurface{}, Tokens: tokens, Authoritative: true})
	s.Start(epoch)
	s.Cancel()
	tokens.pending(&models.Token{ID: "y"})
	if len(tokens.calls) != 0 {
		t.Errorf("stale token moved: %v", tokens.calls)
	}
}

func TestCameraTracksRoute(t *testing.T) {
	cam := &fakeCamera{}
	p := payload(epoch)
	p.Settings.CinematicMovement = true
	p.Settings.IntroMs = 0
	p.Settings.PauseMs = 0
	s := NewSession(p, Host{Surface: &fakeSurface{}, Camera: cam})
	s.Start(epoch)
	for now := epoch; s.State() == Animating; {
		now = now.Add(time.Second / 60)
		s.Tick(now)
	}
	if len(cam.pans) < 2 {
		t.Fatalf("only %d pans", len(cam.pans))
	}
	for i := 1; i < len(cam.pans)-1; i++ {
		if cam.pans[i].X < cam.pans[i-1].X {
			t.Fatalf("camera moved backwards at %d", i)
		}
	}
	diff(t, models.Pt(500, 0), cam.pans[len(cam.pans)-1], approx)
}

func TestDrawStatic(t *testing.T) {
	surf := &fakeSurface{}
	s := models.DefaultSettings()
	s.ShowEndX = false
	DrawStatic(straightPath(), s, surf, "Road", true)
	if surf.lines == 0 || len(surf.endX) != 0 || len(surf.labels) != 1 {
		t.Errorf("lines %d, endX %d, labels %d", surf.lines, len(surf.endX), len(surf.labels))
	}
}

func TestDashContinuity(t *testing.T) {
	var pieces []float64
	d := NewDashState(20, 14)
	path := []models.Point{models.Pt(0, 0), models.Pt(7, 0), models.Pt(30, 0), models.Pt(68, 0)}
	d.Path(path, func(a, b models.Point) { pieces = append(pieces, a.X, b.X) })
	// dashes at [0,20] split at 7, [34,54]
	diff(t, []float64{0, 7, 7, 20, 34, 54}, pieces, approx)
}

func TestRevealedCount(t *testing.T) {
	m := spatial.BuildPathMetrics(straightPath())
	tests := []struct {
		t    float64
		want int
	}{
		{-1, 1}, {0, 1}, {0.019, 1}, {0.02, 2}, {0.5, 26}, {1, 51}, {2, 51},
	}
	for _, tt := range tests {
		if got := RevealedCount(m, tt.t); got != tt.want {
			t.Errorf("RevealedCount(%v) = %d, want %d", tt.t, got, tt.want)
		}
	}
}
