package playback

import (
	"math"

	"github.com/jengzang/routecast/internal/models"
	"github.com/jengzang/routecast/internal/spatial"
)

// DashState carries the phase of the dash/gap cycle across segments so the
// pattern stays continuous along the whole path.
type DashState struct {
	Offset float64
	Dash   float64
	Gap    float64
}

// NewDashState returns a dash cursor at phase zero.
func NewDashState(dash, gap float64) *DashState {
	return &DashState{Dash: math.Max(dash, 1e-3), Gap: math.Max(gap, 0)}
}

// Segment splits a-b into visible dashes, calling emit for each one, and
// advances the phase.
func (d *DashState) Segment(a, b models.Point, emit func(a, b models.Point)) {
	segLen := spatial.Distance(a, b)
	if segLen <= 1e-6 {
		return
	}
	pattern := d.Dash + d.Gap

	remaining := segLen
	t := 0.0
	for remaining > 0 {
		offset := math.Mod(d.Offset, pattern)
		var step float64
		inDash := offset < d.Dash
		if inDash {
			step = math.Min(d.Dash-offset, remaining)
		} else {
			step = math.Min(pattern-offset, remaining)
		}
		if step <= 0 {
			// floating point left offset on the boundary
			d.Offset = 0
			continue
		}
		if inDash {
			emit(spatial.Lerp(a, b, t/segLen), spatial.Lerp(a, b, (t+step)/segLen))
		}
		t += step
		remaining -= step
		d.Offset = math.Mod(d.Offset+step, pattern)
	}
}

// Path dashes every segment of path from phase zero.
func (d *DashState) Path(path []models.Point, emit func(a, b models.Point)) {
	d.Offset = 0
	for i := 1; i < len(path); i++ {
		d.Segment(path[i-1], path[i], emit)
	}
}
