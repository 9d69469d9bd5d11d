package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"

	"github.com/jengzang/routecast/internal/models"
)

// Export returns the scene's routes as an interchange document.
func (s *RouteService) Export(ctx context.Context, sceneID string) (models.RouteExport, error) {
	routes, err := s.routes.GetRoutes(ctx, sceneID)
	if err != nil {
		return models.RouteExport{}, err
	}
	return models.RouteExport{
		SceneID:    sceneID,
		ExportedAt: s.now().UnixMilli(),
		Routes:     routes,
	}, nil
}

// ExportGeoJSON returns the scene's routes as line string features in map
// pixel coordinates.
func (s *RouteService) ExportGeoJSON(ctx context.Context, sceneID string) (*geojson.FeatureCollection, error) {
	routes, err := s.routes.GetRoutes(ctx, sceneID)
	if err != nil {
		return nil, err
	}
	fc := geojson.NewFeatureCollection()
	fc.ExtraMembers = geojson.Properties{
		"sceneId":    sceneID,
		"exportedAt": s.now().UnixMilli(),
	}
	for _, r := range routes {
		line := make(orb.LineString, len(r.Points))
		for i, p := range r.Points {
			line[i] = orb.Point{p.X, p.Y}
		}
		f := geojson.NewFeature(line)
		f.ID = r.ID
		f.Properties["name"] = r.Name
		f.Properties["settings"] = r.Settings
		f.Properties["createdAt"] = r.CreatedAt
		f.Properties["updatedAt"] = r.UpdatedAt
		f.Properties["length"] = planar.Length(line)
		fc.Append(f)
	}
	return fc, nil
}

// importedRoute is one route of an import file. Fields are loosely typed
// because files may come from older versions or other tools.
type importedRoute struct {
	ID        any             `json:"id"`
	Name      any             `json:"name"`
	RawPoints json.RawMessage `json:"points"`
	Points    []importedPoint `json:"-"`
	Settings  json.RawMessage `json:"settings"`
	CreatedAt *models.Num     `json:"createdAt"`
}

type importedPoint struct {
	X models.Num `json:"x"`
	Y models.Num `json:"y"`
}

// Import replaces the scene's routes with the routes in data: an export
// document, a bare array of routes or a GeoJSON feature collection.
// Entries that don't decode or lack two usable points are skipped; missing
// ids, names and timestamps are filled in. Only a file that is not JSON
// aborts the import.
func (s *RouteService) Import(ctx context.Context, sceneID string, data []byte) ([]models.RouteRecord, error) {
	raw, skipped, err := parseImport(data)
	if err != nil {
		return nil, err
	}

	now := s.now().UnixMilli()
	seen := make(map[string]bool, len(raw))
	routes := make([]models.RouteRecord, 0, len(raw))
	for _, r := range raw {
		points := make([]models.Point, 0, len(r.Points))
		for _, p := range r.Points {
			if pt := models.Pt(float64(p.X), float64(p.Y)); pt.Finite() {
				points = append(points, pt)
			}
		}
		if len(points) < 2 {
			skipped++
			continue
		}

		settings, err := s.config.MergeSettings(models.DefaultSettings(), r.Settings)
		if err != nil {
			settings = models.DefaultSettings().Normalize()
		}

		id := stringOf(r.ID)
		if id == "" || seen[id] {
			id = models.NewRouteID()
		}
		seen[id] = true

		name := stringOf(r.Name)
		if name == "" {
			name = "Imported Route"
		}
		created := now
		if r.CreatedAt != nil && r.CreatedAt.IsSet() {
			created = int64(*r.CreatedAt)
		}

		routes = append(routes, models.RouteRecord{
			ID:        id,
			Name:      name,
			Points:    points,
			Settings:  settings,
			CreatedAt: created,
			UpdatedAt: now,
		})
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.routes.SetRoutes(ctx, sceneID, routes); err != nil {
		return nil, err
	}
	if c, err := s.viewers.Get(sceneID); err == nil {
		c.ClearPreview()
	}
	log.Printf("[RouteService] imported %d routes into scene %s, skipped %d", len(routes), sceneID, skipped)
	return routes, nil
}

func stringOf(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return fmt.Sprintf("%g", v)
	default:
		return fmt.Sprint(v)
	}
}

func parseImport(data []byte) ([]importedRoute, int, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, 0, fmt.Errorf("%w: empty file", ErrInvalidImport)
	}
	if data[0] == '[' {
		return decodeRoutes(data)
	}

	var doc struct {
		Type   string          `json:"type"`
		Routes json.RawMessage `json:"routes"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrInvalidImport, err)
	}
	if doc.Type == "FeatureCollection" {
		routes, err := parseGeoJSON(data)
		return routes, 0, err
	}
	if len(doc.Routes) > 0 && doc.Routes[0] == '[' {
		return decodeRoutes(doc.Routes)
	}
	return nil, 0, nil
}

// decodeRoutes decodes a JSON array of routes one entry at a time. Entries
// and points that don't decode are skipped rather than failing the file.
func decodeRoutes(data []byte) ([]importedRoute, int, error) {
	var entries []json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrInvalidImport, err)
	}
	routes := make([]importedRoute, 0, len(entries))
	skipped := 0
	for _, e := range entries {
		var r importedRoute
		if err := json.Unmarshal(e, &r); err != nil {
			skipped++
			continue
		}
		var points []json.RawMessage
		if err := json.Unmarshal(r.RawPoints, &points); err == nil {
			for _, raw := range points {
				var p importedPoint
				if err := json.Unmarshal(raw, &p); err == nil {
					r.Points = append(r.Points, p)
				}
			}
		}
		routes = append(routes, r)
	}
	return routes, skipped, nil
}

func parseGeoJSON(data []byte) ([]importedRoute, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImport, err)
	}
	var routes []importedRoute
	for _, f := range fc.Features {
		line, ok := f.Geometry.(orb.LineString)
		if !ok {
			continue
		}
		r := importedRoute{ID: f.ID, Name: f.Properties["name"]}
		for _, p := range line {
			r.Points = append(r.Points, importedPoint{X: models.Num(p.X()), Y: models.Num(p.Y())})
		}
		if settings, ok := f.Properties["settings"]; ok {
			if raw, err := json.Marshal(settings); err == nil {
				r.Settings = raw
			}
		}
		if created, ok := f.Properties["createdAt"].(float64); ok {
			n := models.Num(created)
			r.CreatedAt = &n
		}
		routes = append(routes, r)
	}
	return routes, nil
}
