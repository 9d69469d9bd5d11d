// Package label computes where and how a route's name is drawn: either an
// upright billboard at one point of the path, or text bent along a span of
// the path.
package label

import (
	"math"
	"strings"

	"github.com/jengzang/routecast/internal/models"
	"github.com/jengzang/routecast/internal/spatial"
)

// Arrow glyphs
const (
	ArrowRight = "->"
	ArrowLeft  = "<-"
)

const (
	baseFontSize = 18
	// largest texture edge a follow-path label is rasterized at
	maxTextureSize = 4096
	maxUpscale     = 4
)

// Mode selects how a label is placed.
type Mode int

const (
	Billboard Mode = iota
	FollowPath
)

func (m Mode) String() string {
	if m == FollowPath {
		return "follow-path"
	}
	return "billboard"
}

// Measurer measures text in pixels for a font size.
type Measurer interface {
	// Width returns the advance width of text.
	Width(text string, fontSize float64) float64
	// VMetrics returns the ascent and descent (both positive).
	VMetrics(fontSize float64) (ascent, descent float64)
}

// Placement is a computed label layout.
type Placement struct {
	Mode        Mode
	Text        string // text as drawn, arrow and gap included
	FontSize    float64
	Color       string
	StrokeWidth float64

	// Billboard
	Position models.Point
	Rotation float64

	// FollowPath
	Path          []models.Point // smoothed baseline, left to right, map pixels
	Origin        models.Point   // top-left of the label image in map pixels
	Width         int
	Height        int
	TextLength    float64 // arc length the text is fitted to
	BaselineShift float64
	Upscale       float64
	Reversed      bool // the route runs right to left under the label
}

// Layout places text on path. It returns nil when there is nothing to draw:
// labels disabled, blank text, fewer than two points or a zero-length path.
func Layout(path []models.Point, s models.RouteSettings, text string, m Measurer) *Placement {
	if !s.ShowLabel || m == nil {
		return nil
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	metrics := spatial.BuildPathMetrics(path)
	if metrics == nil {
		return nil
	}

	fontSize := FontSize(s)
	offset := s.LabelOffset.Or(0)
	if s.ScaleWithMap {
		offset *= fontSize / baseFontSize
	}
	position := math.Min(100, math.Max(0, s.LabelPosition.Or(50)))
	center := metrics.Total * position / 100
	color := s.LabelColor
	if color == "" {
		color = s.LineColor
	}

	l := layout{
		path:      path,
		metrics:   metrics,
		settings:  s,
		text:      text,
		measurer:  m,
		fontSize:  fontSize,
		offset:    offset,
		center:    center,
		showArrow: bool(s.LabelShowArrow),
		color:     color,
	}
	if s.LabelFollowPath {
		return l.followPath()
	}
	return l.billboard()
}

// FontSize is the label font size, defaulting to twice the line width with
// a floor of 10.
func FontSize(s models.RouteSettings) float64 {
	if s.LabelFontSize.IsSet() && s.LabelFontSize > 0 {
		return float64(s.LabelFontSize)
	}
	return math.Max(10, s.LineWidth.Or(1)*2)
}

type layout struct {
	path      []models.Point
	metrics   *spatial.PathMetrics
	settings  models.RouteSettings
	text      string
	measurer  Measurer
	fontSize  float64
	offset    float64
	center    float64
	showArrow bool
	color     string
}

func (l *layout) billboard() *Placement {
	mid, ok := spatial.PositionAtDistance(l.path, l.metrics, l.center)
	if !ok {
		return nil
	}
	half := math.Max(4, l.fontSize*0.6)
	pathAngle := spatial.SmoothedAngleAtDistance(l.path, l.metrics, l.center, half)
	oriented := spatial.OrientToScreen(pathAngle)
	flipped := math.Abs(spatial.NormalizeAngle(oriented-pathAngle)) > math.Pi/2

	text := l.text
	if l.showArrow {
		if flipped {
			text = ArrowLeft + " " + text
		} else {
			text = text + " " + ArrowRight
		}
	}

	return &Placement{
		Mode:        Billboard,
		Text:        text,
		FontSize:    l.fontSize,
		Color:       l.color,
		StrokeWidth: math.Max(2, math.Round(l.fontSize/8)),
		Position: models.Point{
			X: mid.X - math.Sin(pathAngle)*l.offset,
			Y: mid.Y + math.Cos(pathAngle)*l.offset,
		},
		Rotation: oriented,
	}
}

func (l *layout) followPath() *Placement {
	m := l.measurer
	textWidth := math.Max(1, m.Width(l.text, l.fontSize))
	spaceWidth := math.Max(1, m.Width(" ", l.fontSize))

	var arrowWidth float64
	gapSpaces := 0
	if l.showArrow {
		arrowGap := math.Max(2, l.fontSize*0.2)
		arrowWidth = math.Max(1, math.Max(m.Width(ArrowRight, l.fontSize), m.Width(ArrowLeft, l.fontSize)))
		gapSpaces = max(1, int(math.Round(arrowGap/spaceWidth)))
	}
	totalWidth := textWidth
	if l.showArrow {
		totalWidth += arrowWidth + float64(gapSpaces)*spaceWidth
	}
	if math.IsNaN(totalWidth) || math.IsInf(totalWidth, 0) || totalWidth <= 0 {
		return nil
	}

	span := totalWidth * math.Min(1, l.metrics.Total/totalWidth)
	sub := spatial.SlicePathByDistance(l.path, l.metrics, l.center-span/2, l.center+span/2)
	if len(sub) < 2 {
		return nil
	}
	subMetrics := spatial.BuildPathMetrics(sub)
	if subMetrics == nil {
		return nil
	}
	textLength := totalWidth * math.Min(1, subMetrics.Total/totalWidth)

	reversed := sub[0].X > sub[len(sub)-1].X
	if reversed {
		sub = spatial.Reverse(sub)
	}
	baseline := smoothBaseline(sub, l.settings)
	if spatial.BuildPathMetrics(baseline) == nil {
		return nil
	}
	rect, ok := spatial.Bounds(baseline)
	if !ok {
		return nil
	}

	pad := math.Max(6, l.fontSize+math.Abs(l.offset)+l.settings.LineWidth.Or(1))
	width := max(1, int(math.Ceil(rect.X.Hi-rect.X.Lo+pad*2)))
	height := max(1, int(math.Ceil(rect.Y.Hi-rect.Y.Lo+pad*2)))

	text := l.text
	if l.showArrow {
		gap := strings.Repeat(" ", gapSpaces)
		if reversed {
			text = ArrowLeft + gap + text
		} else {
			text = text + gap + ArrowRight
		}
	}

	ascent, descent := m.VMetrics(l.fontSize)
	if !(ascent > 0) {
		ascent = l.fontSize * 0.8
	}
	if !(descent > 0) {
		descent = l.fontSize * 0.2
	}

	return &Placement{
		Mode:          FollowPath,
		Text:          text,
		FontSize:      l.fontSize,
		Color:         l.color,
		StrokeWidth:   math.Max(1, math.Round(l.fontSize/8)),
		Path:          baseline,
		Origin:        models.Pt(rect.X.Lo-pad, rect.Y.Lo-pad),
		Width:         width,
		Height:        height,
		TextLength:    textLength,
		BaselineShift: (descent-ascent)/2 + l.offset,
		Upscale:       upscaleFor(width, height),
		Reversed:      reversed,
	}
}

// smoothBaseline super-samples the label span so glyphs sit on a smooth
// curve.
func smoothBaseline(points []models.Point, s models.RouteSettings) []models.Point {
	if len(points) < 3 {
		return models.ClonePoints(points)
	}
	samples := max(4, int(math.Round(s.CatmullSamplesPerSegment.Or(16)*2)))
	return spatial.CatmullRom(points, min(samples, 512), s.CatmullAlpha.Or(0.5))
}

func upscaleFor(width, height int) float64 {
	longest := float64(max(width, height))
	return math.Max(1, math.Min(maxUpscale, maxTextureSize/longest))
}
