package builder

import (
	"math"

	"github.com/jengzang/routecast/internal/models"
)

// Camera scale bounds
const (
	MinCameraScale = 0.2
	MaxCameraScale = 3.0
)

// CameraScaleForPath returns the zoom used to frame a route of totalLen map
// pixels on a screen of the given size. Longer routes zoom out further. The
// result is clamped to [max(0.2, sceneFit), 3] where sceneFit is the scale at
// which the scene fills the screen. ok is false when there is no screen or
// no length.
func CameraScaleForPath(totalLen, zoomFactor float64, screen models.Size, scene *models.Size) (float64, bool) {
	if !screen.Valid() || !(totalLen > 0) || math.IsInf(totalLen, 0) {
		return 0, false
	}
	if math.IsNaN(zoomFactor) || math.IsInf(zoomFactor, 0) {
		zoomFactor = float64(models.DefaultSettings().CameraZoomFactor)
	}
	screenMax := math.Max(screen.Width, screen.Height)
	target := (2 * screenMax) / totalLen * zoomFactor

	minScale := MinCameraScale
	if scene.Valid() {
		minScale = math.Max(minScale, math.Max(screen.Width/scene.Width, screen.Height/scene.Height))
	}
	return math.Min(MaxCameraScale, math.Max(minScale, target)), true
}

// DashPattern returns the dash and gap lengths for the settings. Unset
// lengths scale with the line width.
func DashPattern(s models.RouteSettings) (dash, gap float64) {
	width := s.LineWidth.Or(1)
	dash = math.Max(20, width*2)
	gap = math.Max(14, width*1.6)
	if s.DashLength.IsSet() && s.DashLength > 0 {
		dash = float64(s.DashLength)
	}
	if s.GapLength.IsSet() && s.GapLength > 0 {
		gap = float64(s.GapLength)
	}
	return dash, gap
}

// EndMarkerSize is the half-size of the terminal X.
func EndMarkerSize(s models.RouteSettings) float64 {
	return s.LineWidth.Or(1) * 2
}

// BakePadding is the margin around the path bounds of a baked image.
func BakePadding(s models.RouteSettings) float64 {
	return math.Max(10, s.LineWidth.Or(1)*2+4)
}
