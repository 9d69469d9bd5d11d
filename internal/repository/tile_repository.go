package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jengzang/routecast/internal/models"
)

// TileRepository stores baked route images
type TileRepository struct {
	db *sql.DB
}

// NewTileRepository creates a new tile repository
func NewTileRepository(db *sql.DB) *TileRepository {
	return &TileRepository{db: db}
}

// CreateTile saves t and returns it with its id and creation time set.
func (r *TileRepository) CreateTile(ctx context.Context, t models.Tile) (models.Tile, error) {
	if t.CreatedAt == 0 {
		t.CreatedAt = models.NowMillis()
	}
	res, err := r.db.ExecContext(ctx, `INSERT INTO tiles
		(scene_id, route_id, x, y, width, height, src, locked, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.SceneID, t.RouteID, t.X, t.Y, t.Width, t.Height, t.Src, t.Locked, t.CreatedAt)
	if err != nil {
		return t, fmt.Errorf("failed to create tile: %w", err)
	}
	if t.ID, err = res.LastInsertId(); err != nil {
		return t, fmt.Errorf("failed to read tile id: %w", err)
	}
	return t, nil
}

// ListTiles returns the scene's tiles, oldest first.
func (r *TileRepository) ListTiles(ctx context.Context, sceneID string) ([]models.Tile, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, scene_id, route_id, x, y, width, height, src, locked, created_at
		FROM tiles WHERE scene_id = ? ORDER BY id`, sceneID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tiles: %w", err)
	}
	defer rows.Close()

	tiles := []models.Tile{}
	for rows.Next() {
		var t models.Tile
		if err := rows.Scan(&t.ID, &t.SceneID, &t.RouteID, &t.X, &t.Y, &t.Width, &t.Height, &t.Src, &t.Locked, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan tile: %w", err)
		}
		tiles = append(tiles, t)
	}
	return tiles, rows.Err()
}
