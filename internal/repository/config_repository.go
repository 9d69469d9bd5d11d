package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jengzang/routecast/internal/models"
)

// ConfigRepository stores global settings as JSON values
type ConfigRepository struct {
	db *sql.DB
}

// NewConfigRepository creates a new config repository
func NewConfigRepository(db *sql.DB) *ConfigRepository {
	return &ConfigRepository{db: db}
}

// Get decodes the value stored under key into dst. It reports false when
// nothing is stored.
func (r *ConfigRepository) Get(ctx context.Context, key string, dst any) (bool, error) {
	raw, err := r.GetRaw(ctx, key)
	if err != nil || raw == nil {
		return false, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("failed to decode config %s: %w", key, err)
	}
	return true, nil
}

// GetRaw returns the JSON stored under key, or nil.
func (r *ConfigRepository) GetRaw(ctx context.Context, key string) (json.RawMessage, error) {
	var value string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get config %s: %w", key, err)
	}
	return json.RawMessage(value), nil
}

// Set stores value under key.
func (r *ConfigRepository) Set(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode config %s: %w", key, err)
	}
	_, err = r.db.ExecContext(ctx, `INSERT INTO config (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, string(data), models.NowMillis())
	if err != nil {
		return fmt.Errorf("failed to set config %s: %w", key, err)
	}
	return nil
}

// Delete removes key.
func (r *ConfigRepository) Delete(ctx context.Context, key string) error {
	if _, err := r.db.ExecContext(ctx, "DELETE FROM config WHERE key = ?", key); err != nil {
		return fmt.Errorf("failed to delete config %s: %w", key, err)
	}
	return nil
}
