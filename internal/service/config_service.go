package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/jengzang/routecast/internal/models"
	"github.com/jengzang/routecast/internal/repository"
	"github.com/jengzang/routecast/internal/travel"
)

// DefaultPixelsPerMile is the map scale used for travel estimates until
// one is configured.
const DefaultPixelsPerMile = 50.0

var (
	ErrUnknownConfigKey = errors.New("unknown config key")
	ErrInvalidConfig    = errors.New("invalid config value")
)

// ConfigService reads and validates the global settings
type ConfigService struct {
	repo *repository.ConfigRepository
}

// NewConfigService creates a new config service
func NewConfigService(repo *repository.ConfigRepository) *ConfigService {
	return &ConfigService{repo: repo}
}

// RouteDefaults returns the built-in route defaults with the stored
// overrides applied.
func (s *ConfigService) RouteDefaults(ctx context.Context) (models.RouteSettings, error) {
	settings := models.DefaultSettings()
	raw, err := s.repo.GetRaw(ctx, models.ConfigRouteSettings)
	if err != nil {
		return settings, err
	}
	if raw != nil {
		if err := json.Unmarshal(raw, &settings); err != nil {
			return models.DefaultSettings(), fmt.Errorf("failed to decode stored route defaults: %w", err)
		}
	}
	return settings.Normalize(), nil
}

// MergeSettings decodes raw over base and normalizes the result. Fields
// missing from raw keep their base value.
func (s *ConfigService) MergeSettings(base models.RouteSettings, raw json.RawMessage) (models.RouteSettings, error) {
	out := base.Clone()
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, &out); err != nil {
			return base, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}
	return out.Normalize(), nil
}

// TravelModes returns the configured travel modes, or the built-in ones.
func (s *ConfigService) TravelModes(ctx context.Context) ([]models.TravelMode, error) {
	var modes []models.TravelMode
	ok, err := s.repo.Get(ctx, models.ConfigTravelModes, &modes)
	if err != nil {
		return nil, err
	}
	if !ok || len(modes) == 0 {
		return models.DefaultTravelModes(), nil
	}
	return modes, nil
}

// Currencies returns the configured denominations, or gp/sp/cp.
func (s *ConfigService) Currencies(ctx context.Context) ([]models.Currency, error) {
	var currencies []models.Currency
	ok, err := s.repo.Get(ctx, models.ConfigCurrencies, &currencies)
	if err != nil {
		return nil, err
	}
	if !ok || len(travel.ValidCurrencies(currencies)) == 0 {
		return models.DefaultCurrencies(), nil
	}
	return currencies, nil
}

// IgnoredCurrencies returns the currency keys left out of cost breakdowns.
func (s *ConfigService) IgnoredCurrencies(ctx context.Context) ([]string, error) {
	var ignored []string
	if _, err := s.repo.Get(ctx, models.ConfigIgnoredCurrencies, &ignored); err != nil {
		return nil, err
	}
	return ignored, nil
}

// PixelsPerMile returns the configured map scale.
func (s *ConfigService) PixelsPerMile(ctx context.Context) (float64, error) {
	var ppm float64
	ok, err := s.repo.Get(ctx, models.ConfigPixelsPerMile, &ppm)
	if err != nil {
		return 0, err
	}
	if !ok || !(ppm > 0) {
		return DefaultPixelsPerMile, nil
	}
	return ppm, nil
}

// Get returns the effective value of key as JSON.
func (s *ConfigService) Get(ctx context.Context, key string) (any, error) {
	switch key {
	case models.ConfigRouteSettings:
		return s.RouteDefaults(ctx)
	case models.ConfigTravelModes:
		return s.TravelModes(ctx)
	case models.ConfigCurrencies:
		return s.Currencies(ctx)
	case models.ConfigIgnoredCurrencies:
		ignored, err := s.IgnoredCurrencies(ctx)
		if ignored == nil {
			ignored = []string{}
		}
		return ignored, err
	case models.ConfigPixelsPerMile:
		return s.PixelsPerMile(ctx)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownConfigKey, key)
}

// Reset drops the stored value of key and returns the default.
func (s *ConfigService) Reset(ctx context.Context, key string) (any, error) {
	switch key {
	case models.ConfigRouteSettings, models.ConfigTravelModes, models.ConfigCurrencies,
		models.ConfigIgnoredCurrencies, models.ConfigPixelsPerMile:
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownConfigKey, key)
	}
	if err := s.repo.Delete(ctx, key); err != nil {
		return nil, err
	}
	return s.Get(ctx, key)
}

// Set validates raw for key and stores it. It returns the stored value.
func (s *ConfigService) Set(ctx context.Context, key string, raw json.RawMessage) (any, error) {
	var value any
	switch key {
	case models.ConfigRouteSettings:
		settings, err := s.MergeSettings(models.DefaultSettings(), raw)
		if err != nil {
			return nil, err
		}
		settings.ScaleMapSize = nil
		value = settings
	case models.ConfigTravelModes:
		var modes []models.TravelMode
		if err := json.Unmarshal(raw, &modes); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		for i, m := range modes {
			if m.ID == "" {
				return nil, fmt.Errorf("%w: travel mode %d has no id", ErrInvalidConfig, i)
			}
		}
		value = modes
	case models.ConfigCurrencies:
		var currencies []models.Currency
		if err := json.Unmarshal(raw, &currencies); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		value = travel.ValidCurrencies(currencies)
	case models.ConfigIgnoredCurrencies:
		var ignored []string
		if err := json.Unmarshal(raw, &ignored); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		value = ignored
	case models.ConfigPixelsPerMile:
		var ppm float64
		if err := json.Unmarshal(raw, &ppm); err != nil || !(ppm > 0) || math.IsInf(ppm, 0) {
			return nil, fmt.Errorf("%w: pixels per mile must be a positive number", ErrInvalidConfig)
		}
		value = ppm
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownConfigKey, key)
	}
	if err := s.repo.Set(ctx, key, value); err != nil {
		return nil, err
	}
	return value, nil
}
