package render

import (
	"context"
	"image"
	"math"

	"github.com/fogleman/gg"
	"golang.org/x/image/font"

	"github.com/jengzang/routecast/internal/label"
	"github.com/jengzang/routecast/internal/models"
	"github.com/jengzang/routecast/internal/spatial"
)

const (
	shadowOffset = 2.0
	shadowAlpha  = 0.6
)

func setColor(dc *gg.Context, c uint32, alpha float64) {
	r := float64((c>>16)&0xff) / 255
	g := float64((c>>8)&0xff) / 255
	b := float64(c&0xff) / 255
	dc.SetRGBA(r, g, b, math.Min(1, math.Max(0, alpha)))
}

// painter draws canvases onto gg contexts.
type painter struct {
	fonts  *FontCache
	assets *AssetCache
}

func (p painter) drawCanvas(dc *gg.Context, cv *Canvas) {
	s := cv.settings
	lineWidth := s.LineWidth.Or(1)
	lineAlpha := s.LineAlpha.Or(1)

	if len(cv.lines) > 0 {
		dc.Push()
		setColor(dc, s.LineColorNum, lineAlpha)
		dc.SetLineWidth(lineWidth)
		dc.SetLineCap(gg.LineCapRound)
		dc.SetLineJoin(gg.LineJoinRound)
		for _, seg := range cv.lines {
			dc.MoveTo(seg.a.X, seg.a.Y)
			dc.LineTo(seg.b.X, seg.b.Y)
		}
		dc.Stroke()
		dc.Pop()
	}

	for _, x := range cv.endX {
		dc.Push()
		setColor(dc, s.LineColorNum, lineAlpha)
		dc.SetLineWidth(lineWidth * 2)
		dc.SetLineCap(gg.LineCapRound)
		dc.MoveTo(x.p.X-x.size, x.p.Y-x.size)
		dc.LineTo(x.p.X+x.size, x.p.Y+x.size)
		dc.MoveTo(x.p.X+x.size, x.p.Y-x.size)
		dc.LineTo(x.p.X-x.size, x.p.Y+x.size)
		dc.Stroke()
		dc.Pop()
	}

	p.drawMarker(dc, cv)

	if cv.label != nil {
		p.drawLabel(dc, cv.label, s)
	}
}

func (p painter) drawMarker(dc *gg.Context, cv *Canvas) {
	m := cv.marker
	s := cv.settings
	if !m.visible {
		return
	}
	radius := s.DotRadius.Or(6)

	if ref := s.DotTokenUUID; ref != "" && p.assets != nil {
		img, ok, pending := p.assets.MarkerImage(cv.sceneID, ref, nil)
		if pending {
			return
		}
		if ok {
			size := int(math.Round(radius * 2 * s.DotTokenScale.Or(1)))
			sprite := p.assets.Scaled(ref, img, size)
			dc.Push()
			dc.Translate(m.p.X, m.p.Y)
			if s.DotTokenRotate {
				dc.Rotate(m.angle + gg.Radians(s.DotTokenRotateOffset.Or(0)))
			}
			dc.DrawImageAnchored(sprite, 0, 0, 0.5, 0.5)
			dc.Pop()
			return
		}
	}

	dc.Push()
	setColor(dc, s.DotColorNum, 1)
	dc.DrawCircle(m.p.X, m.p.Y, radius)
	dc.Fill()
	dc.Pop()
}

func (p painter) drawLabel(dc *gg.Context, li *labelImage, s models.RouteSettings) {
	pl := li.placement
	if pl.Mode == label.FollowPath {
		if li.img == nil {
			return
		}
		dc.Push()
		dc.Translate(pl.Origin.X, pl.Origin.Y)
		dc.Scale(1/pl.Upscale, 1/pl.Upscale)
		dc.DrawImage(li.img, 0, 0)
		dc.Pop()
		return
	}

	fill := s.LabelColorNum
	p.fonts.With(pl.FontSize, func(face font.Face) {
		dc.Push()
		dc.SetFontFace(face)
		dc.Translate(pl.Position.X, pl.Position.Y)
		dc.Rotate(pl.Rotation)
		drawOutlined(dc, pl.Text, 0, 0, 0.5, 0.5, pl.StrokeWidth, fill)
		dc.Pop()
	})
}

// drawOutlined draws text with a drop shadow and a black outline. gg has
// no stroked text, so the outline is the text stamped around its position.
func drawOutlined(dc *gg.Context, text string, x, y, ax, ay, stroke float64, fill uint32) {
	dc.SetRGBA(0, 0, 0, shadowAlpha)
	dc.DrawStringAnchored(text, x+shadowOffset, y+shadowOffset, ax, ay)

	dc.SetRGB(0, 0, 0)
	for i := 0; i < 8; i++ {
		a := float64(i) * math.Pi / 4
		dc.DrawStringAnchored(text, x+math.Cos(a)*stroke, y+math.Sin(a)*stroke, ax, ay)
	}

	setColor(dc, fill, 1)
	dc.DrawStringAnchored(text, x, y, ax, ay)
}

// buildLabel lays out a label and, for follow-path labels, rasterizes the
// text along its baseline. It returns nil when there is nothing to draw or
// ctx was cancelled.
func buildLabel(ctx context.Context, fonts *FontCache, path []models.Point, s models.RouteSettings, text string) *labelImage {
	pl := label.Layout(path, s, text, fonts)
	if pl == nil || ctx.Err() != nil {
		return nil
	}
	li := &labelImage{placement: pl}
	if pl.Mode == label.FollowPath {
		li.img = rasterizeFollowPath(ctx, fonts, pl, s.LabelColorNum)
		if li.img == nil {
			return nil
		}
	}
	return li
}

// rasterizeFollowPath draws the text glyph by glyph along the baseline,
// centred on it and squeezed to TextLength, at Upscale times the display
// resolution.
func rasterizeFollowPath(ctx context.Context, fonts *FontCache, pl *label.Placement, fill uint32) image.Image {
	local := spatial.Translate(pl.Path, -pl.Origin.X, -pl.Origin.Y)
	m := spatial.BuildPathMetrics(local)
	if m == nil {
		return nil
	}
	natural := fonts.Width(pl.Text, pl.FontSize)
	if natural <= 0 {
		return nil
	}
	squeeze := pl.TextLength / natural

	type glyph struct {
		text  string
		at    models.Point
		angle float64
	}
	var glyphs []glyph
	cursor := (m.Total - pl.TextLength) / 2
	for _, r := range pl.Text {
		g := string(r)
		adv := fonts.Width(g, pl.FontSize) * squeeze
		at, angle, _ := spatial.PointAtDistance(local, m, cursor+adv/2)
		glyphs = append(glyphs, glyph{g, at, angle})
		cursor += adv
	}
	if ctx.Err() != nil {
		return nil
	}

	w := int(math.Ceil(float64(pl.Width) * pl.Upscale))
	h := int(math.Ceil(float64(pl.Height) * pl.Upscale))
	dc := gg.NewContext(max(1, w), max(1, h))
	dc.Scale(pl.Upscale, pl.Upscale)

	fonts.With(pl.FontSize, func(face font.Face) {
		dc.SetFontFace(face)
		for _, g := range glyphs {
			if g.text == " " {
				continue
			}
			dc.Push()
			dc.Translate(g.at.X, g.at.Y)
			dc.Rotate(g.angle)
			dc.Scale(squeeze, 1)
			drawOutlined(dc, g.text, 0, pl.BaselineShift, 0.5, 0, pl.StrokeWidth, fill)
			dc.Pop()
		}
	})
	return dc.Image()
}
