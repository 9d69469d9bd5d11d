// Package render is the headless viewer: it owns the live playback
// sessions, the preview, the resource caches and the label rebuild
// supervisor, and composes everything into raster images.
package render

import (
	"context"
	"fmt"
	"image"
	"log"
	"math"
	"sync"
	"time"

	"github.com/fogleman/gg"

	"github.com/jengzang/routecast/internal/builder"
	"github.com/jengzang/routecast/internal/label"
	"github.com/jengzang/routecast/internal/models"
	"github.com/jengzang/routecast/internal/playback"
	"github.com/jengzang/routecast/internal/spatial"
)

// Config configures a Context.
type Config struct {
	SceneID       string
	Screen        models.Size
	Scene         *models.Size
	AssetDir      string
	FontPath      string
	FrameRate     int
	Authoritative bool
	Tokens        TokenStore
	// Now defaults to time.Now.
	Now func() time.Time
}

type entry struct {
	session *playback.Session
	canvas  *Canvas
}

// SessionInfo describes a live session.
type SessionInfo struct {
	RouteID  string  `json:"routeId,omitempty"`
	State    string  `json:"state"`
	Revealed float64 `json:"revealed"` // fraction of arc length
	Elapsed  float64 `json:"elapsed"`
	Duration float64 `json:"duration"`
}

// Context is the renderer state of one viewer. All methods are safe for
// concurrent use.
type Context struct {
	mu  sync.Mutex
	cfg Config

	sceneID  string
	viewport *Viewport
	fonts    *FontCache
	assets   *AssetCache
	labels   *label.Supervisor
	paint    painter

	entries        []*entry
	preview        *Canvas
	previewRouteID string
	tokens         map[string]models.Token // positions moved on this viewer
	seq            int
	// labelOwners maps a rebuild key to the canvas that submitted last.
	labelOwners map[string]*Canvas

	writer *tokenWriter
	closed bool
}

// NewContext creates a renderer. Call Close to release it.
func NewContext(cfg Config) (*Context, error) {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.FrameRate <= 0 {
		cfg.FrameRate = 60
	}
	fonts, err := NewFontCache(cfg.FontPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load fonts: %w", err)
	}
	assets := NewAssetCache(cfg.AssetDir, cfg.Tokens)
	c := &Context{
		cfg:      cfg,
		sceneID:  cfg.SceneID,
		viewport: NewViewport(cfg.Screen, cfg.Scene),
		fonts:    fonts,
		assets:   assets,
		labels:   label.NewSupervisor(),
		paint:    painter{fonts: fonts, assets: assets},
		tokens:   make(map[string]models.Token),

		labelOwners: make(map[string]*Canvas),
	}
	if cfg.Tokens != nil {
		c.writer = newTokenWriter(cfg.Tokens)
	}
	return c, nil
}

// Fonts returns the font cache, which also measures label text.
func (c *Context) Fonts() *FontCache { return c.fonts }

// SceneID returns the scene this viewer shows.
func (c *Context) SceneID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sceneID
}

// SetScene switches the viewer to another scene, dropping every drawing.
func (c *Context) SetScene(sceneID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sceneID == c.sceneID {
		return
	}
	c.clearAllLocked()
	c.sceneID = sceneID
	c.tokens = make(map[string]models.Token)
}

// MapPixelSize returns the map area the viewport currently shows.
func (c *Context) MapPixelSize() *models.Size {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewport.MapPixelSize()
}

// labelKey names the rebuild slot of a canvas. Label rebuilds of the same
// route share a slot; the preview has its own; unnamed drawings never share.
func (c *Context) labelKey(routeID string, preview bool) string {
	switch {
	case preview:
		return "preview:" + routeID
	case routeID != "":
		return "route:" + routeID
	}
	c.seq++
	return fmt.Sprintf("draw#%d", c.seq)
}

func (c *Context) newCanvas(routeID, sceneID string, s models.RouteSettings, preview bool) *Canvas {
	return &Canvas{
		owner:    c,
		key:      c.labelKey(routeID, preview),
		routeID:  routeID,
		sceneID:  sceneID,
		settings: s,
	}
}

// Render starts a playback session for p. Payloads for another scene or
// with a degenerate path are ignored and false is returned.
func (c *Context) Render(p models.PlaybackPayload) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || p.SceneID != c.sceneID || len(p.Path) < 2 {
		return false
	}

	cv := c.newCanvas(p.RouteID, p.SceneID, p.Settings, false)
	host := playback.Host{
		Surface:       cv,
		Camera:        c.viewport,
		Audio:         audioPlayer{c},
		Authoritative: c.cfg.Authoritative,
	}
	if c.cfg.Tokens != nil {
		host.Tokens = tokenMover{c}
	}
	sess := playback.NewSession(p, host)
	if sess == nil {
		return false
	}
	c.entries = append(c.entries, &entry{session: sess, canvas: cv})
	sess.Start(c.cfg.Now())
	log.Printf("[Renderer] playing route %q (%d points, %.1fs)", p.RouteID, len(p.Path), sess.Duration())
	return true
}

// Preview draws a finished route without animation, replacing any previous
// preview.
func (c *Context) Preview(path []models.Point, s models.RouteSettings, routeID, labelText string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearPreviewLocked()
	if c.closed || len(path) < 2 {
		return false
	}
	cv := c.newCanvas(routeID, c.sceneID, s, true)
	playback.DrawStatic(path, s, cv, labelText, true)
	c.preview = cv
	c.previewRouteID = routeID
	return true
}

// ClearRoute cancels every session and the preview of routeID. Unknown ids
// are a no-op.
func (c *Context) ClearRoute(routeID string) {
	if routeID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.entries[:0]
	for _, e := range c.entries {
		if e.session.RouteID() == routeID {
			e.session.Cancel()
			continue
		}
		kept = append(kept, e)
	}
	clear(c.entries[len(kept):])
	c.entries = kept
	if c.preview != nil && c.previewRouteID == routeID {
		c.clearPreviewLocked()
	}
}

// ClearAll cancels every session and the preview.
func (c *Context) ClearAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearAllLocked()
}

func (c *Context) clearAllLocked() {
	for _, e := range c.entries {
		e.session.Cancel()
	}
	c.entries = nil
	c.clearPreviewLocked()
}

// ClearPreview removes the preview.
func (c *Context) ClearPreview() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clearPreviewLocked()
}

// ClearPreviewOf removes the preview if it shows routeID.
func (c *Context) ClearPreviewOf(routeID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.preview != nil && c.previewRouteID == routeID {
		c.clearPreviewLocked()
	}
}

func (c *Context) clearPreviewLocked() {
	if c.preview != nil {
		c.preview.Destroy()
	}
	c.preview = nil
	c.previewRouteID = ""
}

// Tick advances the viewport and every session to now and drops sessions
// whose drawing is gone.
func (c *Context) Tick(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.viewport.advance(now)
	kept := c.entries[:0]
	for _, e := range c.entries {
		e.session.Tick(now)
		if e.session.State().Terminal() {
			continue
		}
		kept = append(kept, e)
	}
	clear(c.entries[len(kept):])
	c.entries = kept
}

// Run drives Tick at the configured frame rate until ctx is done.
func (c *Context) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Second / time.Duration(c.cfg.FrameRate))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Tick(c.cfg.Now())
		}
	}
}

// Sessions lists the live sessions.
func (c *Context) Sessions() []SessionInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]SessionInfo, 0, len(c.entries))
	for _, e := range c.entries {
		s := e.session
		out = append(out, SessionInfo{
			RouteID:  s.RouteID(),
			State:    s.State().String(),
			Revealed: s.RevealedLength() / s.TotalLength(),
			Elapsed:  s.Elapsed(),
			Duration: s.Duration(),
		})
	}
	return out
}

// Snapshot composes the current view into an image.
func (c *Context) Snapshot() image.Image {
	c.mu.Lock()
	defer c.mu.Unlock()

	w := max(1, int(c.cfg.Screen.Width))
	h := max(1, int(c.cfg.Screen.Height))
	dc := gg.NewContext(w, h)
	dc.SetRGB(0.12, 0.12, 0.12)
	dc.Clear()

	center, scale := c.viewport.Center(), c.viewport.Scale()
	dc.Translate(float64(w)/2, float64(h)/2)
	dc.Scale(scale, scale)
	dc.Translate(-center.X, -center.Y)

	canvases := make([]*Canvas, 0, len(c.entries)+1)
	for _, e := range c.entries {
		canvases = append(canvases, e.canvas)
	}
	if c.preview != nil {
		canvases = append(canvases, c.preview)
	}

	for _, cv := range canvases {
		if !cv.settings.RenderAboveTokens {
			c.paint.drawCanvas(dc, cv)
		}
	}
	c.drawTokensLocked(dc)
	for _, cv := range canvases {
		if cv.settings.RenderAboveTokens {
			c.paint.drawCanvas(dc, cv)
		}
	}
	return dc.Image()
}

func (c *Context) drawTokensLocked(dc *gg.Context) {
	for _, t := range c.tokens {
		dc.Push()
		dc.SetRGBA(1, 1, 1, 0.8)
		dc.SetLineWidth(2)
		dc.DrawRectangle(t.X, t.Y, t.Width, t.Height)
		dc.Stroke()
		dc.Pop()
	}
}

// Bake renders a finished route into a standalone image and returns it
// with the tile placement that puts it back on the map.
func (c *Context) Bake(path []models.Point, s models.RouteSettings, labelText string, includeEndX bool) (image.Image, models.Tile, error) {
	rect, ok := spatial.Bounds(path)
	if !ok || len(path) < 2 {
		return nil, models.Tile{}, fmt.Errorf("path has no drawable points")
	}
	pad := builder.BakePadding(s)
	width := max(1, int(math.Ceil(rect.X.Hi-rect.X.Lo+pad*2)))
	height := max(1, int(math.Ceil(rect.Y.Hi-rect.Y.Lo+pad*2)))
	local := spatial.Translate(path, -rect.X.Lo+pad, -rect.Y.Lo+pad)

	cv := &Canvas{owner: c, settings: s, sceneID: c.SceneID(), inline: true}
	playback.DrawStatic(local, s, cv, labelText, includeEndX)

	dc := gg.NewContext(width, height)
	c.paint.drawCanvas(dc, cv)
	tile := models.Tile{
		SceneID: cv.sceneID,
		X:       rect.X.Lo - pad,
		Y:       rect.Y.Lo - pad,
		Width:   width,
		Height:  height,
		Locked:  true,
	}
	return dc.Image(), tile, nil
}

// WaitLabels blocks until no label rebuild is running.
func (c *Context) WaitLabels() {
	c.labels.Wait()
}

// Close clears everything and stops background work.
func (c *Context) Close() {
	c.mu.Lock()
	c.clearAllLocked()
	c.closed = true
	c.mu.Unlock()
	c.labels.Close()
	if c.writer != nil {
		c.writer.close()
	}
}
