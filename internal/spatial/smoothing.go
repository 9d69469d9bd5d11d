package spatial

import (
	"math"

	"github.com/jengzang/routecast/internal/models"
)

// Output grows as 2^iterations and samples*segments; inputs are tens to
// hundreds of points.
const (
	maxChaikinIterations = 8
	maxCatmullSamples    = 256
)

// Chaikin smooths an open polyline by corner cutting. Each iteration
// replaces every edge with its 1/4 and 3/4 points while keeping the two
// endpoints fixed. Fewer than three points are returned unchanged.
func Chaikin(points []models.Point, iterations int) []models.Point {
	if len(points) < 3 {
		return models.ClonePoints(points)
	}
	pts := models.ClonePoints(points)

	for it := 0; it < iterations; it++ {
		n := len(pts)
		out := make([]models.Point, 0, 2*n)
		out = append(out, pts[0])
		for i := 0; i < n-1; i++ {
			out = append(out, Lerp(pts[i], pts[i+1], 0.25), Lerp(pts[i], pts[i+1], 0.75))
		}
		out = append(out, pts[n-1])
		pts = out
	}
	return pts
}

// CatmullRom samples a parametrized Catmull-Rom spline through points.
// alpha 0.5 gives the centripetal variant. The output holds the first
// point followed by samplesPerSegment points for every input segment, the
// last of which is the segment's end point.
func CatmullRom(points []models.Point, samplesPerSegment int, alpha float64) []models.Point {
	if len(points) < 2 {
		return models.ClonePoints(points)
	}
	if samplesPerSegment < 1 {
		samplesPerSegment = 1
	}
	if math.IsNaN(alpha) || math.IsInf(alpha, 0) {
		alpha = 0.5
	}

	knot := func(ti float64, pi, pj models.Point) float64 {
		return ti + math.Pow(Distance(pi, pj), alpha)
	}

	n := len(points)
	out := make([]models.Point, 0, 1+(n-1)*samplesPerSegment)
	out = append(out, points[0])

	for i := 0; i < n-1; i++ {
		p0 := points[max(0, i-1)]
		p1 := points[i]
		p2 := points[i+1]
		p3 := points[min(n-1, i+2)]

		// Each knot is bumped before the next is derived from it, so
		// repeated points never collapse two knots onto one value.
		t0 := 0.0
		t1 := knot(t0, p0, p1)
		if t1-t0 < epsilon {
			t1 = t0 + epsilon
		}
		t2 := knot(t1, p1, p2)
		if t2-t1 < epsilon {
			t2 = t1 + epsilon
		}
		t3 := knot(t2, p2, p3)
		if t3-t2 < epsilon {
			t3 = t2 + epsilon
		}

		for s := 1; s <= samplesPerSegment; s++ {
			if s == samplesPerSegment {
				// exact waypoint, no rounding drift
				out = append(out, p2)
				continue
			}
			t := t1 + (t2-t1)*(float64(s)/float64(samplesPerSegment))

			a1 := blend(p0, p1, t0, t1, t)
			a2 := blend(p1, p2, t1, t2, t)
			a3 := blend(p2, p3, t2, t3, t)
			b1 := blend(a1, a2, t0, t2, t)
			b2 := blend(a2, a3, t1, t3, t)
			out = append(out, blend(b1, b2, t1, t2, t))
		}
	}
	return out
}

// blend evaluates ((tb-t)*pa + (t-ta)*pb) / (tb-ta).
func blend(pa, pb models.Point, ta, tb, t float64) models.Point {
	wa := (tb - t) / (tb - ta)
	wb := (t - ta) / (tb - ta)
	return models.Point{
		X: wa*pa.X + wb*pb.X,
		Y: wa*pa.Y + wb*pb.Y,
	}
}

// Smooth applies the smoothing strategy selected by the settings.
func Smooth(points []models.Point, s models.RouteSettings) []models.Point {
	switch s.SmoothingMode {
	case models.SmoothingNone:
		return models.ClonePoints(points)
	case models.SmoothingChaikin:
		iterations := int(s.ChaikinIterations.Or(2))
		return Chaikin(points, max(0, min(iterations, maxChaikinIterations)))
	default:
		samples := int(s.CatmullSamplesPerSegment.Or(16))
		return CatmullRom(points, max(1, min(samples, maxCatmullSamples)), s.CatmullAlpha.Or(0.5))
	}
}
