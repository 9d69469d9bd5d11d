package spatial

import (
	"math"
	"sort"

	"github.com/jengzang/routecast/internal/models"
)

// PathMetrics is the arc-length lookup for a path. Cumulative[i] is the
// distance from the first point to point i.
type PathMetrics struct {
	Cumulative []float64
	Total      float64
}

// BuildPathMetrics returns the cumulative arc lengths of path, or nil when
// the path has fewer than two points or no length.
func BuildPathMetrics(path []models.Point) *PathMetrics {
	if len(path) < 2 {
		return nil
	}
	cumulative := make([]float64, len(path))
	total := 0.0
	for i := 1; i < len(path); i++ {
		total += Distance(path[i-1], path[i])
		cumulative[i] = total
	}
	if math.IsNaN(total) || math.IsInf(total, 0) || total <= 0 {
		return nil
	}
	return &PathMetrics{Cumulative: cumulative, Total: total}
}

// segmentFor returns the index i >= 1 of the segment (i-1, i) containing
// the (already clamped) distance d.
func (m *PathMetrics) segmentFor(d float64) int {
	n := len(m.Cumulative)
	idx := sort.Search(n, func(i int) bool { return m.Cumulative[i] >= d })
	if idx < 1 {
		idx = 1
	}
	if idx >= n {
		idx = n - 1
	}
	return idx
}

func (m *PathMetrics) clamp(d float64) float64 {
	if math.IsNaN(d) {
		return 0
	}
	return math.Max(0, math.Min(m.Total, d))
}

// PointAtDistance returns the position at arc length d along path and the
// tangent angle of the containing segment. d is clamped to [0, Total].
func PointAtDistance(path []models.Point, m *PathMetrics, d float64) (models.Point, float64, bool) {
	if m == nil || len(path) < 2 || len(m.Cumulative) != len(path) {
		return models.Point{}, 0, false
	}
	target := m.clamp(d)
	idx := m.segmentFor(target)
	prev := m.Cumulative[idx-1]
	segLen := math.Max(epsilon, m.Cumulative[idx]-prev)
	a, b := path[idx-1], path[idx]
	return Lerp(a, b, (target-prev)/segLen), SegmentAngle(a, b), true
}

// PositionAtDistance is PointAtDistance without the angle.
func PositionAtDistance(path []models.Point, m *PathMetrics, d float64) (models.Point, bool) {
	p, _, ok := PointAtDistance(path, m, d)
	return p, ok
}

// PointAtFraction returns the position at fraction t ∈ [0, 1] of the total
// length.
func PointAtFraction(path []models.Point, m *PathMetrics, t float64) (models.Point, bool) {
	if m == nil {
		return models.Point{}, false
	}
	return PositionAtDistance(path, m, t*m.Total)
}

// SmoothedAngleAtDistance estimates the tangent at d from the chord between
// the points half before and after it, which is less jittery than the angle
// of a single short segment.
func SmoothedAngleAtDistance(path []models.Point, m *PathMetrics, d, half float64) float64 {
	_, fallback, ok := PointAtDistance(path, m, d)
	if !ok {
		return 0
	}
	half = math.Max(1, half)
	before, ok1 := PositionAtDistance(path, m, d-half)
	after, ok2 := PositionAtDistance(path, m, d+half)
	if !ok1 || !ok2 {
		return fallback
	}
	if Distance(before, after) <= epsilon {
		return fallback
	}
	return SegmentAngle(before, after)
}

// SlicePathByDistance extracts the sub-path between two arc lengths,
// interpolating the end points. It returns nil if the range is empty.
func SlicePathByDistance(path []models.Point, m *PathMetrics, start, end float64) []models.Point {
	if m == nil || len(path) < 2 {
		return nil
	}
	start, end = m.clamp(start), m.clamp(end)
	if end <= start {
		return nil
	}
	startPos, _ := PositionAtDistance(path, m, start)
	endPos, _ := PositionAtDistance(path, m, end)

	out := []models.Point{startPos}
	for i := 1; i < len(path)-1; i++ {
		if d := m.Cumulative[i]; d > start && d < end {
			out = append(out, path[i])
		}
	}
	return append(out, endPos)
}

// Resample walks a polyline and emits points every step pixels of arc
// length. Leftover distance is carried across segment boundaries so the
// spacing is uniform along the whole path. The first and last input points
// are always kept exactly. An invalid step returns a copy of points.
func Resample(points []models.Point, step float64) []models.Point {
	if len(points) < 2 || math.IsNaN(step) || math.IsInf(step, 0) || step <= 0 {
		return models.ClonePoints(points)
	}

	out := []models.Point{points[0]}
	carry := 0.0
	for i := 0; i < len(points)-1; i++ {
		a, b := points[i], points[i+1]
		segLen := Distance(a, b)
		if !(segLen > 0) || math.IsInf(segLen, 0) {
			continue
		}
		dist := step - carry
		for dist <= segLen {
			out = append(out, Lerp(a, b, dist/segLen))
			dist += step
		}
		carry = segLen - (dist - step)
		if carry == step {
			carry = 0
		}
	}

	last := points[len(points)-1]
	switch tail := out[len(out)-1]; {
	case Distance(tail, last) > epsilon:
		out = append(out, last)
	case len(out) > 1:
		out[len(out)-1] = last
	}
	return out
}
