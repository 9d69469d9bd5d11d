package models

import (
	"math"
	"strings"
)

// Smoothing modes
const (
	SmoothingNone    = "none"
	SmoothingCatmull = "catmull"
	SmoothingChaikin = "chaikin"
)

// Size is a width/height pair in map pixels.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Valid reports whether both dimensions are positive.
func (s *Size) Valid() bool {
	return s != nil && s.Width > 0 && s.Height > 0
}

// RouteSettings is the flat configuration record for a route: line, marker,
// label, timing, camera, smoothing, map scaling and travel tags.
type RouteSettings struct {
	// Line
	LineColor         string `json:"lineColor"`
	LineAlpha         Num    `json:"lineAlpha"`
	LineWidth         Num    `json:"lineWidth"`
	DashLength        Num    `json:"dashLength"`
	GapLength         Num    `json:"gapLength"`
	ShowEndX          Flag   `json:"showEndX"`
	RenderAboveTokens Flag   `json:"renderAboveTokens"`

	// Map scaling
	ScaleWithMap    Flag  `json:"scaleWithMap"`
	ScaleMultiplier Num   `json:"scaleMultiplier"`
	ScaleMapSize    *Size `json:"scaleMapSize,omitempty"`

	// Marker
	DotColor             string `json:"dotColor"`
	DotRadius            Num    `json:"dotRadius"`
	ShowDot              Flag   `json:"showDot"`
	DotTokenUUID         string `json:"dotTokenUuid"`
	DotTokenRotate       Flag   `json:"dotTokenRotate"`
	DotTokenScale        Num    `json:"dotTokenScale"`
	DotTokenRotateOffset Num    `json:"dotTokenRotateOffset"`
	RouteSound           string `json:"routeSound"`

	// Label
	ShowLabel       Flag   `json:"showLabel"`
	LabelFontFamily string `json:"labelFontFamily"`
	LabelFontSize   Num    `json:"labelFontSize"`
	LabelColor      string `json:"labelColor"`
	LabelPosition   Num    `json:"labelPosition"`
	LabelOffset     Num    `json:"labelOffset"`
	LabelFollowPath Flag   `json:"labelFollowPath"`
	LabelShowArrow  Flag   `json:"labelShowArrow"`

	// Animation
	DrawSpeed    Num `json:"drawSpeed"`    // px per second
	LingerMs     Num `json:"lingerMs"`     // <= 0 keeps the drawing until cleared
	SampleStepPx Num `json:"sampleStepPx"` // resample spacing

	// Camera
	CinematicMovement Flag `json:"cinematicMovement"`
	IntroMs           Num  `json:"introMs"`
	PauseMs           Num  `json:"pauseMs"`
	CameraZoomFactor  Num  `json:"cameraZoomFactor"`
	CameraSmooth      Num  `json:"cameraSmooth"`
	TokenUpdateMs     Num  `json:"tokenUpdateMs"`

	// Smoothing
	SmoothingMode            string `json:"smoothingMode"`
	CatmullSamplesPerSegment Num    `json:"catmullSamplesPerSegment"`
	CatmullAlpha             Num    `json:"catmullAlpha"`
	ChaikinIterations        Num    `json:"chaikinIterations"`

	// Travel (cost display only)
	TravelMode string `json:"travelMode,omitempty"`
	FareTier   string `json:"fareTier,omitempty"`

	// Derived from the hex strings by builder.ApplyColorNumbers.
	LineColorNum  uint32 `json:"lineColorNum,omitempty"`
	DotColorNum   uint32 `json:"dotColorNum,omitempty"`
	LabelColorNum uint32 `json:"labelColorNum,omitempty"`
}

// DefaultSettings returns the built-in route defaults.
func DefaultSettings() RouteSettings {
	return RouteSettings{
		LineColor:         "#d61f1f",
		LineAlpha:         0.95,
		LineWidth:         6,
		DashLength:        20,
		GapLength:         14,
		ShowEndX:          true,
		RenderAboveTokens: false,

		ScaleWithMap:    true,
		ScaleMultiplier: 1,

		DotColor:             "#f7f0e6",
		DotRadius:            6,
		ShowDot:              true,
		DotTokenScale:        1,
		DotTokenRotateOffset: 0,

		ShowLabel:       true,
		LabelFontFamily: "Modesto Condensed, serif",
		LabelFontSize:   18,
		LabelColor:      "#ffffff",
		LabelPosition:   50,
		LabelOffset:     0,

		DrawSpeed:    400,
		LingerMs:     -1,
		SampleStepPx: 10,

		IntroMs:          1500,
		PauseMs:          1500,
		CameraZoomFactor: 0.3,
		CameraSmooth:     0.15,
		TokenUpdateMs:    25,

		SmoothingMode:            SmoothingCatmull,
		CatmullSamplesPerSegment: 16,
		CatmullAlpha:             0.5,
		ChaikinIterations:        2,

		FareTier: FareStandard,
	}
}

// Normalize coerces every field into its canonical form: non-finite numbers
// become Unset, non-positive dash/gap lengths become Unset, the sample step
// is at least one pixel, strings are trimmed and the smoothing mode is one of
// the known modes. Derived colour numbers are left alone; they are always
// recomputed before use.
func (s RouteSettings) Normalize() RouteSettings {
	out := s
	nums := []*Num{
		&out.LineAlpha, &out.LineWidth, &out.DashLength, &out.GapLength,
		&out.ScaleMultiplier, &out.DotRadius, &out.DotTokenScale,
		&out.DotTokenRotateOffset, &out.LabelFontSize, &out.LabelPosition,
		&out.LabelOffset, &out.DrawSpeed, &out.LingerMs, &out.SampleStepPx,
		&out.IntroMs, &out.PauseMs, &out.CameraZoomFactor, &out.CameraSmooth,
		&out.TokenUpdateMs, &out.CatmullSamplesPerSegment, &out.CatmullAlpha,
		&out.ChaikinIterations,
	}
	for _, n := range nums {
		if !n.IsSet() {
			*n = Unset
		}
	}

	if out.DashLength.IsSet() && out.DashLength <= 0 {
		out.DashLength = Unset
	}
	if out.GapLength.IsSet() && out.GapLength <= 0 {
		out.GapLength = Unset
	}
	if out.SampleStepPx.IsSet() {
		out.SampleStepPx = Num(math.Max(1, float64(out.SampleStepPx)))
	}

	out.LineColor = strings.TrimSpace(out.LineColor)
	out.DotColor = strings.TrimSpace(out.DotColor)
	out.LabelColor = strings.TrimSpace(out.LabelColor)
	out.DotTokenUUID = strings.TrimSpace(out.DotTokenUUID)
	out.RouteSound = strings.TrimSpace(out.RouteSound)
	out.LabelFontFamily = strings.TrimSpace(out.LabelFontFamily)

	switch mode := strings.ToLower(strings.TrimSpace(out.SmoothingMode)); mode {
	case SmoothingNone, SmoothingChaikin, SmoothingCatmull:
		out.SmoothingMode = mode
	default:
		out.SmoothingMode = SmoothingCatmull
	}

	if out.ScaleMapSize != nil {
		size := *out.ScaleMapSize
		if size.Valid() {
			out.ScaleMapSize = &size
		} else {
			out.ScaleMapSize = nil
		}
	}
	return out
}

// Clone returns a deep copy.
func (s RouteSettings) Clone() RouteSettings {
	out := s
	if s.ScaleMapSize != nil {
		size := *s.ScaleMapSize
		out.ScaleMapSize = &size
	}
	return out
}
