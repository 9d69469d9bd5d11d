package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jengzang/routecast/internal/database"
	"github.com/jengzang/routecast/internal/models"
)

// RouteRepository stores the route collection of each scene
type RouteRepository struct {
	db *sql.DB
}

// NewRouteRepository creates a new route repository
func NewRouteRepository(db *sql.DB) *RouteRepository {
	return &RouteRepository{db: db}
}

// GetRoutes returns the scene's routes in their saved order. The result is
// freshly decoded, so callers may modify it.
func (r *RouteRepository) GetRoutes(ctx context.Context, sceneID string) ([]models.RouteRecord, error) {
	return r.query(ctx, sceneID, models.RouteFilter{})
}

// FindRoutes returns the scene's routes matching filter.
func (r *RouteRepository) FindRoutes(ctx context.Context, sceneID string, filter models.RouteFilter) ([]models.RouteRecord, error) {
	return r.query(ctx, sceneID, filter)
}

func (r *RouteRepository) query(ctx context.Context, sceneID string, filter models.RouteFilter) ([]models.RouteRecord, error) {
	query := `SELECT id, name, points, settings, created_at, updated_at
		FROM routes`

	conditions := []string{"scene_id = ?"}
	args := []interface{}{sceneID}
	if name := strings.TrimSpace(filter.Name); name != "" {
		conditions = append(conditions, "name LIKE ? ESCAPE '\\'")
		args = append(args, "%"+escapeLike(name)+"%")
	}
	query += " WHERE " + strings.Join(conditions, " AND ") + " ORDER BY position"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query routes: %w", err)
	}
	defer rows.Close()

	routes := []models.RouteRecord{}
	for rows.Next() {
		var (
			rec              models.RouteRecord
			points, settings string
		)
		if err := rows.Scan(&rec.ID, &rec.Name, &points, &settings, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan route: %w", err)
		}
		if err := json.Unmarshal([]byte(points), &rec.Points); err != nil {
			return nil, fmt.Errorf("failed to decode points of route %s: %w", rec.ID, err)
		}
		rec.Settings = models.DefaultSettings()
		if err := json.Unmarshal([]byte(settings), &rec.Settings); err != nil {
			return nil, fmt.Errorf("failed to decode settings of route %s: %w", rec.ID, err)
		}
		routes = append(routes, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read routes: %w", err)
	}
	return routes, nil
}

// GetRoute returns one route, or nil if the scene has no route with id.
func (r *RouteRepository) GetRoute(ctx context.Context, sceneID, id string) (*models.RouteRecord, error) {
	routes, err := r.GetRoutes(ctx, sceneID)
	if err != nil {
		return nil, err
	}
	for i := range routes {
		if routes[i].ID == id {
			return &routes[i], nil
		}
	}
	return nil, nil
}

// SetRoutes replaces the scene's whole collection in one transaction. The
// last writer wins.
func (r *RouteRepository) SetRoutes(ctx context.Context, sceneID string, routes []models.RouteRecord) error {
	return database.Transaction(r.db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM routes WHERE scene_id = ?", sceneID); err != nil {
			return fmt.Errorf("failed to clear routes: %w", err)
		}

		stmt, err := tx.PrepareContext(ctx, `INSERT INTO routes
			(scene_id, id, position, name, points, settings, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("failed to prepare insert: %w", err)
		}
		defer stmt.Close()

		for i, rec := range routes {
			points, err := json.Marshal(rec.Points)
			if err != nil {
				return fmt.Errorf("failed to encode points of route %s: %w", rec.ID, err)
			}
			settings, err := json.Marshal(rec.Settings)
			if err != nil {
				return fmt.Errorf("failed to encode settings of route %s: %w", rec.ID, err)
			}
			if _, err := stmt.ExecContext(ctx, sceneID, rec.ID, i, rec.Name, string(points), string(settings), rec.CreatedAt, rec.UpdatedAt); err != nil {
				return fmt.Errorf("failed to insert route %s: %w", rec.ID, err)
			}
		}
		return nil
	})
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
