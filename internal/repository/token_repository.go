package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jengzang/routecast/internal/models"
)

// TokenRepository stores marker tokens
type TokenRepository struct {
	db *sql.DB
}

// NewTokenRepository creates a new token repository
func NewTokenRepository(db *sql.DB) *TokenRepository {
	return &TokenRepository{db: db}
}

// GetToken returns a token, or nil if the scene has no token with id.
func (r *TokenRepository) GetToken(ctx context.Context, sceneID, id string) (*models.Token, error) {
	var t models.Token
	err := r.db.QueryRowContext(ctx, `SELECT id, scene_id, name, image, x, y, width, height
		FROM tokens WHERE scene_id = ? AND id = ?`, sceneID, id).
		Scan(&t.ID, &t.SceneID, &t.Name, &t.Image, &t.X, &t.Y, &t.Width, &t.Height)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get token: %w", err)
	}
	return &t, nil
}

// ListTokens returns the scene's tokens ordered by name.
func (r *TokenRepository) ListTokens(ctx context.Context, sceneID string) ([]models.Token, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, scene_id, name, image, x, y, width, height
		FROM tokens WHERE scene_id = ? ORDER BY name, id`, sceneID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tokens: %w", err)
	}
	defer rows.Close()

	tokens := []models.Token{}
	for rows.Next() {
		var t models.Token
		if err := rows.Scan(&t.ID, &t.SceneID, &t.Name, &t.Image, &t.X, &t.Y, &t.Width, &t.Height); err != nil {
			return nil, fmt.Errorf("failed to scan token: %w", err)
		}
		tokens = append(tokens, t)
	}
	return tokens, rows.Err()
}

// SaveToken inserts or replaces a token.
func (r *TokenRepository) SaveToken(ctx context.Context, t models.Token) error {
	_, err := r.db.ExecContext(ctx, `INSERT INTO tokens
		(scene_id, id, name, image, x, y, width, height, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(scene_id, id) DO UPDATE SET
			name = excluded.name, image = excluded.image,
			x = excluded.x, y = excluded.y,
			width = excluded.width, height = excluded.height,
			updated_at = excluded.updated_at`,
		t.SceneID, t.ID, t.Name, t.Image, t.X, t.Y, t.Width, t.Height, models.NowMillis())
	if err != nil {
		return fmt.Errorf("failed to save token %s: %w", t.ID, err)
	}
	return nil
}

// UpdateTokenPosition moves a token. Unknown tokens are ignored.
func (r *TokenRepository) UpdateTokenPosition(ctx context.Context, sceneID, id string, x, y float64) error {
	_, err := r.db.ExecContext(ctx, "UPDATE tokens SET x = ?, y = ?, updated_at = ? WHERE scene_id = ? AND id = ?",
		x, y, models.NowMillis(), sceneID, id)
	if err != nil {
		return fmt.Errorf("failed to move token %s: %w", id, err)
	}
	return nil
}

// DeleteToken removes a token.
func (r *TokenRepository) DeleteToken(ctx context.Context, sceneID, id string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM tokens WHERE scene_id = ? AND id = ?", sceneID, id); err != nil {
		return fmt.Errorf("failed to delete token %s: %w", id, err)
	}
	return nil
}
