package spatial

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/jengzang/routecast/internal/models"
)

// epsilon is the length below which a segment is treated as degenerate.
const epsilon = 1e-6

// Distance returns the euclidean distance between two points in pixels.
func Distance(a, b models.Point) float64 {
	return b.R2().Sub(a.R2()).Norm()
}

// Lerp linearly interpolates between a and b.
func Lerp(a, b models.Point, t float64) models.Point {
	va, vb := a.R2(), b.R2()
	return models.FromR2(va.Add(vb.Sub(va).Mul(t)))
}

// SegmentAngle returns the direction of travel from a to b in radians.
func SegmentAngle(a, b models.Point) float64 {
	return math.Atan2(b.Y-a.Y, b.X-a.X)
}

// PathLength calculates the total length of a path in pixels
func PathLength(points []models.Point) float64 {
	if len(points) < 2 {
		return 0
	}

	var total float64
	for i := 1; i < len(points); i++ {
		total += Distance(points[i-1], points[i])
	}
	return total
}

// Bounds calculates the bounding rectangle of a set of points.
// ok is false when there is no finite point.
func Bounds(points []models.Point) (rect r2.Rect, ok bool) {
	rect = r2.EmptyRect()
	for _, p := range points {
		if !p.Finite() {
			continue
		}
		rect = rect.AddPoint(p.R2())
	}
	return rect, !rect.IsEmpty()
}

// NormalizeAngle maps an angle into (-π, π]. Non-finite input yields 0.
func NormalizeAngle(angle float64) float64 {
	if math.IsNaN(angle) || math.IsInf(angle, 0) {
		return 0
	}
	a := math.Mod(angle, 2*math.Pi)
	if a <= -math.Pi {
		a += 2 * math.Pi
	}
	if a > math.Pi {
		a -= 2 * math.Pi
	}
	return a
}

// OrientToScreen flips an angle by π when text at that angle would read
// upside down.
func OrientToScreen(angle float64) float64 {
	a := NormalizeAngle(angle)
	if math.Cos(a) < 0 {
		a = NormalizeAngle(a + math.Pi)
	}
	return a
}

// UnwrapAngle returns angle shifted by multiples of 2π so that it lies
// within π of previous.
func UnwrapAngle(angle, previous float64) float64 {
	a := NormalizeAngle(angle)
	if math.IsNaN(previous) || math.IsInf(previous, 0) {
		return a
	}
	for a-previous > math.Pi {
		a -= 2 * math.Pi
	}
	for a-previous < -math.Pi {
		a += 2 * math.Pi
	}
	return a
}

// Reverse returns the points in reverse order.
func Reverse(points []models.Point) []models.Point {
	out := make([]models.Point, len(points))
	for i, p := range points {
		out[len(points)-1-i] = p
	}
	return out
}

// Translate offsets every point by (dx, dy).
func Translate(points []models.Point, dx, dy float64) []models.Point {
	out := make([]models.Point, len(points))
	d := r2.Point{X: dx, Y: dy}
	for i, p := range points {
		out[i] = models.FromR2(p.R2().Add(d))
	}
	return out
}
