// Package builder turns raw clicked points into the drawable path that every
// draw, play, preview and bake goes through.
package builder

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/jengzang/routecast/internal/models"
	"github.com/jengzang/routecast/internal/spatial"
)

// Result is the output of Build.
type Result struct {
	Path         []models.Point       `json:"path"`
	Settings     models.RouteSettings `json:"settings"`
	SmoothPoints []models.Point       `json:"smoothPoints"`
}

// Build normalizes the settings, smooths the points, applies map scaling,
// resolves colour numbers and resamples the smoothed curve.
//
// mapSize is the displayed map size in map pixels; it is used for scaling
// only when the settings carry no captured ScaleMapSize. A nil mapSize with
// no captured size leaves the size-dependent fields alone.
func Build(points []models.Point, settings models.RouteSettings, mapSize *models.Size) Result {
	s := settings.Normalize()
	smooth := spatial.Smooth(points, s)

	if s.ScaleWithMap {
		size := mapSize
		if s.ScaleMapSize.Valid() {
			size = s.ScaleMapSize
		}
		s = ApplyMapScaling(s, size)
	}
	s = ApplyColorNumbers(s)

	path := spatial.Resample(smooth, s.SampleStepPx.Or(float64(models.DefaultSettings().SampleStepPx)))
	return Result{Path: path, Settings: s, SmoothPoints: smooth}
}

// ApplyMapScaling rescales line width, dot radius, draw speed and sample step
// to the map size: n = max(w, h) / 300 * multiplier.
func ApplyMapScaling(s models.RouteSettings, size *models.Size) models.RouteSettings {
	if !bool(s.ScaleWithMap) || !size.Valid() {
		return s
	}
	mult := s.ScaleMultiplier.Or(1)
	if mult <= 0 {
		mult = 1
	}
	n := math.Max(size.Width, size.Height) / 300 * mult

	out := s
	out.LineWidth = models.Num(math.Max(1, n))
	out.DotRadius = models.Num(math.Max(1, n*1.3))
	out.DrawSpeed = models.Num(math.Max(1, n*25))
	out.SampleStepPx = models.Num(math.Max(1, n))
	return out
}

// ApplyColorNumbers recomputes the derived colour numbers from the hex
// strings. The label colour falls back to the line colour.
func ApplyColorNumbers(s models.RouteSettings) models.RouteSettings {
	out := s
	out.LineColorNum = ParseHexColor(s.LineColor)
	out.DotColorNum = ParseHexColor(s.DotColor)
	if strings.TrimSpace(s.LabelColor) != "" {
		out.LabelColorNum = ParseHexColor(s.LabelColor)
	} else {
		out.LabelColorNum = out.LineColorNum
	}
	return out
}

// ParseHexColor parses "#rrggbb", "rrggbb" or "0xrrggbb". Invalid input
// yields 0.
func ParseHexColor(hex string) uint32 {
	h := strings.TrimSpace(hex)
	h = strings.TrimPrefix(h, "#")
	h = strings.TrimPrefix(strings.TrimPrefix(h, "0x"), "0X")
	if h == "" {
		return 0
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return 0
	}
	return uint32(v)
}

// FormatHexColor is the inverse of ParseHexColor for 24-bit colours.
func FormatHexColor(c uint32) string {
	return fmt.Sprintf("#%06x", c&0xffffff)
}

// NewRouteRecord creates a saved route from drawn points. When the settings
// scale with the map and no map size has been captured yet, mapSize is
// recorded so the route keeps its look on other viewports.
func NewRouteRecord(points []models.Point, settings models.RouteSettings, name string, mapSize *models.Size) models.RouteRecord {
	now := models.NowMillis()
	s := settings.Normalize()
	if bool(s.ScaleWithMap) && s.ScaleMapSize == nil && mapSize.Valid() {
		size := *mapSize
		s.ScaleMapSize = &size
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = fmt.Sprintf("Route %d", now)
	}
	return models.RouteRecord{
		ID:        models.NewRouteID(),
		Name:      name,
		Points:    models.ClonePoints(points),
		Settings:  s,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
