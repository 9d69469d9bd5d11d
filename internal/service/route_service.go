package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image/png"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/jengzang/routecast/internal/broadcast"
	"github.com/jengzang/routecast/internal/builder"
	"github.com/jengzang/routecast/internal/models"
	"github.com/jengzang/routecast/internal/render"
	"github.com/jengzang/routecast/internal/repository"
	"github.com/jengzang/routecast/internal/spatial"
	"github.com/jengzang/routecast/internal/travel"
)

var (
	ErrRouteNotFound = errors.New("route not found")
	ErrTooFewPoints  = errors.New("a route needs at least two points")
	ErrInvalidImport = errors.New("invalid import file")
)

// RouteService is the scripting surface: it stores routes, builds them and
// drives playback on every viewer.
type RouteService struct {
	routes  *repository.RouteRepository
	tiles   *repository.TileRepository
	config  *ConfigService
	bc      *broadcast.Coordinator
	viewers *render.Pool
	tileDir string
	now     func() time.Time

	// serializes read-modify-write of a scene's collection in this process
	mu sync.Mutex
}

// RouteServiceConfig bundles the dependencies of a RouteService.
type RouteServiceConfig struct {
	Routes      *repository.RouteRepository
	Tiles       *repository.TileRepository
	Config      *ConfigService
	Coordinator *broadcast.Coordinator
	Viewers     *render.Pool
	TileDir     string
	Now         func() time.Time
}

// NewRouteService creates a new route service
func NewRouteService(cfg RouteServiceConfig) *RouteService {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &RouteService{
		routes:  cfg.Routes,
		tiles:   cfg.Tiles,
		config:  cfg.Config,
		bc:      cfg.Coordinator,
		viewers: cfg.Viewers,
		tileDir: cfg.TileDir,
		now:     now,
	}
}

// DrawRequest draws points right away without saving a route.
type DrawRequest struct {
	Points    []models.Point  `json:"points"`
	Settings  json.RawMessage `json:"settings,omitempty"`
	LabelText string          `json:"labelText,omitempty"`
	RouteID   string          `json:"routeId,omitempty"`
}

// CreateRouteRequest saves a new route.
type CreateRouteRequest struct {
	Name     string          `json:"name"`
	Points   []models.Point  `json:"points"`
	Settings json.RawMessage `json:"settings,omitempty"`
}

// UpdateRouteRequest changes any of a route's name, points and settings.
type UpdateRouteRequest struct {
	Name     *string         `json:"name,omitempty"`
	Points   []models.Point  `json:"points,omitempty"`
	Settings json.RawMessage `json:"settings,omitempty"`
}

// BakeOptions controls what a baked tile includes.
type BakeOptions struct {
	IncludeEndX  bool `json:"includeEndX"`
	IncludeLabel bool `json:"includeLabel"`
}

func (s *RouteService) mapSize(sceneID string) *models.Size {
	c, err := s.viewers.Get(sceneID)
	if err != nil {
		return nil
	}
	return c.MapPixelSize()
}

func validPoints(points []models.Point) ([]models.Point, error) {
	out := make([]models.Point, 0, len(points))
	for _, p := range points {
		if p.Finite() {
			out = append(out, p)
		}
	}
	if len(out) < 2 {
		return nil, ErrTooFewPoints
	}
	return out, nil
}

// DrawPoints builds points with the route defaults and plays them on every
// viewer.
func (s *RouteService) DrawPoints(ctx context.Context, sceneID string, req DrawRequest) (models.PlaybackPayload, error) {
	points, err := validPoints(req.Points)
	if err != nil {
		return models.PlaybackPayload{}, err
	}
	defaults, err := s.config.RouteDefaults(ctx)
	if err != nil {
		return models.PlaybackPayload{}, err
	}
	settings, err := s.config.MergeSettings(defaults, req.Settings)
	if err != nil {
		return models.PlaybackPayload{}, err
	}
	built := builder.Build(points, settings, s.mapSize(sceneID))
	if len(built.Path) < 2 {
		return models.PlaybackPayload{}, ErrTooFewPoints
	}
	payload := models.PlaybackPayload{
		SceneID:   sceneID,
		Path:      built.Path,
		Settings:  built.Settings,
		StartTime: s.now().UnixMilli(),
		LingerMs:  built.Settings.LingerMs.Or(0),
		RouteID:   req.RouteID,
		LabelText: req.LabelText,
	}
	if err := s.bc.Play(ctx, payload); err != nil {
		log.Printf("[RouteService] %v", err)
	}
	return payload, nil
}

// ListRoutes returns the scene's routes, optionally filtered by name.
func (s *RouteService) ListRoutes(ctx context.Context, sceneID string, filter models.RouteFilter) ([]models.RouteRecord, error) {
	return s.routes.FindRoutes(ctx, sceneID, filter)
}

// FindRoute looks a route up by id, then by case-insensitive name.
func (s *RouteService) FindRoute(ctx context.Context, sceneID, idOrName string) (*models.RouteRecord, error) {
	routes, err := s.routes.GetRoutes(ctx, sceneID)
	if err != nil {
		return nil, err
	}
	if i := indexOf(routes, idOrName); i >= 0 {
		return &routes[i], nil
	}
	return nil, ErrRouteNotFound
}

func indexOf(routes []models.RouteRecord, idOrName string) int {
	for i, r := range routes {
		if r.ID == idOrName {
			return i
		}
	}
	key := strings.TrimSpace(idOrName)
	for i, r := range routes {
		if strings.EqualFold(r.Name, key) {
			return i
		}
	}
	return -1
}

// CreateRoute saves a new route without playing it.
func (s *RouteService) CreateRoute(ctx context.Context, sceneID string, req CreateRouteRequest) (models.RouteRecord, error) {
	points, err := validPoints(req.Points)
	if err != nil {
		return models.RouteRecord{}, err
	}
	defaults, err := s.config.RouteDefaults(ctx)
	if err != nil {
		return models.RouteRecord{}, err
	}
	settings, err := s.config.MergeSettings(defaults, req.Settings)
	if err != nil {
		return models.RouteRecord{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	routes, err := s.routes.GetRoutes(ctx, sceneID)
	if err != nil {
		return models.RouteRecord{}, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = fmt.Sprintf("Route %d", len(routes)+1)
	}
	rec := builder.NewRouteRecord(points, settings, name, s.mapSize(sceneID))
	routes = append(routes, rec)
	if err := s.routes.SetRoutes(ctx, sceneID, routes); err != nil {
		return models.RouteRecord{}, err
	}
	log.Printf("[RouteService] created route %s (%q) on scene %s", rec.ID, rec.Name, sceneID)
	return rec, nil
}

// UpdateRoute renames a route, replaces its points or merges settings into
// it.
func (s *RouteService) UpdateRoute(ctx context.Context, sceneID, idOrName string, req UpdateRouteRequest) (models.RouteRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	routes, err := s.routes.GetRoutes(ctx, sceneID)
	if err != nil {
		return models.RouteRecord{}, err
	}
	i := indexOf(routes, idOrName)
	if i < 0 {
		return models.RouteRecord{}, ErrRouteNotFound
	}
	rec := routes[i]

	if req.Name != nil {
		if name := strings.TrimSpace(*req.Name); name != "" {
			rec.Name = name
		}
	}
	if req.Points != nil {
		points, err := validPoints(req.Points)
		if err != nil {
			return models.RouteRecord{}, err
		}
		rec.Points = points
	}
	if len(req.Settings) > 0 {
		settings, err := s.config.MergeSettings(rec.Settings, req.Settings)
		if err != nil {
			return models.RouteRecord{}, err
		}
		rec.Settings = settings
	}
	rec.UpdatedAt = s.now().UnixMilli()
	routes[i] = rec

	if err := s.routes.SetRoutes(ctx, sceneID, routes); err != nil {
		return models.RouteRecord{}, err
	}
	return rec, nil
}

// DeleteRoute removes a route and its local preview.
func (s *RouteService) DeleteRoute(ctx context.Context, sceneID, idOrName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	routes, err := s.routes.GetRoutes(ctx, sceneID)
	if err != nil {
		return err
	}
	i := indexOf(routes, idOrName)
	if i < 0 {
		return ErrRouteNotFound
	}
	id := routes[i].ID
	routes = append(routes[:i], routes[i+1:]...)
	if err := s.routes.SetRoutes(ctx, sceneID, routes); err != nil {
		return err
	}
	if c, err := s.viewers.Get(sceneID); err == nil {
		c.ClearPreviewOf(id)
	}
	log.Printf("[RouteService] deleted route %s on scene %s", id, sceneID)
	return nil
}

// build turns a saved route into its drawable path.
func (s *RouteService) build(sceneID string, rec models.RouteRecord) (builder.Result, error) {
	built := builder.Build(rec.Points, rec.Settings, s.mapSize(sceneID))
	if len(built.Path) < 2 || spatial.BuildPathMetrics(built.Path) == nil {
		return built, ErrTooFewPoints
	}
	return built, nil
}

// PlayRoute plays a saved route on every viewer. Any playback of the same
// route is cleared first.
func (s *RouteService) PlayRoute(ctx context.Context, sceneID, idOrName string, overrides models.PlayOverrides) (models.PlaybackPayload, error) {
	rec, err := s.FindRoute(ctx, sceneID, idOrName)
	if err != nil {
		return models.PlaybackPayload{}, err
	}
	built, err := s.build(sceneID, *rec)
	if err != nil {
		return models.PlaybackPayload{}, err
	}
	// Overrides win over map scaling, so they go on after the build.
	built.Settings = builder.ApplyColorNumbers(overrides.Apply(built.Settings).Normalize())

	label := rec.Name
	if overrides.LabelText != nil {
		label = *overrides.LabelText
	}
	payload := models.PlaybackPayload{
		SceneID:   sceneID,
		Path:      built.Path,
		Settings:  built.Settings,
		StartTime: s.now().UnixMilli(),
		LingerMs:  built.Settings.LingerMs.Or(0),
		RouteID:   rec.ID,
		LabelText: label,
	}

	if err := s.bc.Clear(ctx, sceneID, rec.ID); err != nil {
		log.Printf("[RouteService] %v", err)
	}
	if err := s.bc.Play(ctx, payload); err != nil {
		log.Printf("[RouteService] %v", err)
	}
	log.Printf("[RouteService] playing route %s on scene %s", rec.ID, sceneID)
	return payload, nil
}

// PreviewRoute draws a saved route finished, without animation, on this
// server's viewer only.
func (s *RouteService) PreviewRoute(ctx context.Context, sceneID, idOrName string) error {
	rec, err := s.FindRoute(ctx, sceneID, idOrName)
	if err != nil {
		return err
	}
	built, err := s.build(sceneID, *rec)
	if err != nil {
		return err
	}
	c, err := s.viewers.Get(sceneID)
	if err != nil {
		return err
	}
	c.Preview(built.Path, built.Settings, rec.ID, rec.Name)
	return nil
}

// ClearRoute removes one route from every viewer. Unknown ids are fine.
func (s *RouteService) ClearRoute(ctx context.Context, sceneID, routeID string) error {
	return s.bc.Clear(ctx, sceneID, routeID)
}

// ClearAll removes every route from every viewer.
func (s *RouteService) ClearAll(ctx context.Context, sceneID string) error {
	return s.bc.ClearAll(ctx, sceneID)
}

// BakeRoute renders a saved route into a PNG under the tile directory and
// records it as a tile on the scene.
func (s *RouteService) BakeRoute(ctx context.Context, sceneID, idOrName string, opts BakeOptions) (models.Tile, error) {
	rec, err := s.FindRoute(ctx, sceneID, idOrName)
	if err != nil {
		return models.Tile{}, err
	}
	built, err := s.build(sceneID, *rec)
	if err != nil {
		return models.Tile{}, err
	}
	c, err := s.viewers.Get(sceneID)
	if err != nil {
		return models.Tile{}, err
	}
	label := ""
	if opts.IncludeLabel {
		label = rec.Name
	}
	img, tile, err := c.Bake(built.Path, built.Settings, label, opts.IncludeEndX)
	if err != nil {
		return models.Tile{}, fmt.Errorf("failed to bake route %s: %w", rec.ID, err)
	}

	name := fmt.Sprintf("%s-%d.png", rec.ID, s.now().UnixMilli())
	dir := filepath.Join(s.tileDir, sceneID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return models.Tile{}, fmt.Errorf("failed to create tile directory: %w", err)
	}
	f, err := os.Create(filepath.Join(dir, name))
	if err != nil {
		return models.Tile{}, fmt.Errorf("failed to create tile file: %w", err)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return models.Tile{}, fmt.Errorf("failed to encode tile: %w", err)
	}
	if err := f.Close(); err != nil {
		return models.Tile{}, fmt.Errorf("failed to write tile: %w", err)
	}

	tile.SceneID = sceneID
	tile.RouteID = rec.ID
	tile.Src = filepath.ToSlash(filepath.Join(sceneID, name))
	tile, err = s.tiles.CreateTile(ctx, tile)
	if err != nil {
		return models.Tile{}, err
	}
	log.Printf("[RouteService] baked route %s into %s (%dx%d)", rec.ID, tile.Src, tile.Width, tile.Height)
	return tile, nil
}

// Travel estimates time and cost of a saved route.
func (s *RouteService) Travel(ctx context.Context, sceneID, idOrName string, filter models.TravelFilter) (models.TravelEstimate, error) {
	rec, err := s.FindRoute(ctx, sceneID, idOrName)
	if err != nil {
		return models.TravelEstimate{}, err
	}
	built, err := s.build(sceneID, *rec)
	if err != nil {
		return models.TravelEstimate{}, err
	}

	modes, err := s.config.TravelModes(ctx)
	if err != nil {
		return models.TravelEstimate{}, err
	}
	modeID := filter.Mode
	if modeID == "" {
		modeID = rec.Settings.TravelMode
	}
	if modeID == "" && len(modes) > 0 {
		modeID = modes[0].ID
	}
	mode, ok := travel.FindMode(modes, modeID)
	if !ok {
		return models.TravelEstimate{}, fmt.Errorf("%w: %s", travel.ErrUnknownMode, modeID)
	}
	tier := filter.Tier
	if tier == "" {
		tier = rec.Settings.FareTier
	}
	ppm := filter.PixelsPerMile
	if !(ppm > 0) {
		if ppm, err = s.config.PixelsPerMile(ctx); err != nil {
			return models.TravelEstimate{}, err
		}
	}
	currencies, err := s.config.Currencies(ctx)
	if err != nil {
		return models.TravelEstimate{}, err
	}
	ignored, err := s.config.IgnoredCurrencies(ctx)
	if err != nil {
		return models.TravelEstimate{}, err
	}

	est, err := travel.Estimate(travel.Request{
		LengthPx:      spatial.PathLength(built.Path),
		PixelsPerMile: ppm,
		Mode:          mode,
		Tier:          tier,
		Currencies:    currencies,
		Ignored:       ignored,
	})
	if err != nil {
		return models.TravelEstimate{}, err
	}
	est.RouteID = rec.ID
	return est, nil
}
