package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"

	"github.com/google/uuid"

	"github.com/jengzang/routecast/internal/models"
	"github.com/jengzang/routecast/internal/repository"
)

var ErrInvalidToken = errors.New("invalid token")

// SceneService manages the tokens routes can drive and lists baked tiles
type SceneService struct {
	tokens *repository.TokenRepository
	tiles  *repository.TileRepository
}

// NewSceneService creates a new scene service
func NewSceneService(tokens *repository.TokenRepository, tiles *repository.TileRepository) *SceneService {
	return &SceneService{tokens: tokens, tiles: tiles}
}

// ListTokens returns the scene's tokens.
func (s *SceneService) ListTokens(ctx context.Context, sceneID string) ([]models.Token, error) {
	return s.tokens.ListTokens(ctx, sceneID)
}

// SaveToken creates or replaces a token. An empty id gets a fresh one.
func (s *SceneService) SaveToken(ctx context.Context, sceneID string, t models.Token) (models.Token, error) {
	t.SceneID = sceneID
	t.ID = strings.TrimSpace(t.ID)
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.Name = strings.TrimSpace(t.Name)
	if t.Name == "" {
		t.Name = t.ID
	}
	for _, v := range []float64{t.X, t.Y, t.Width, t.Height} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return models.Token{}, fmt.Errorf("%w: coordinates must be finite", ErrInvalidToken)
		}
	}
	if t.Width <= 0 || t.Height <= 0 {
		return models.Token{}, fmt.Errorf("%w: width and height must be positive", ErrInvalidToken)
	}
	if err := s.tokens.SaveToken(ctx, t); err != nil {
		return models.Token{}, err
	}
	log.Printf("[SceneService] saved token %s (%q) on scene %s", t.ID, t.Name, sceneID)
	return t, nil
}

// DeleteToken removes a token.
func (s *SceneService) DeleteToken(ctx context.Context, sceneID, id string) error {
	return s.tokens.DeleteToken(ctx, sceneID, id)
}

// ListTiles returns the tiles baked on the scene.
func (s *SceneService) ListTiles(ctx context.Context, sceneID string) ([]models.Tile, error) {
	return s.tiles.ListTiles(ctx, sceneID)
}
