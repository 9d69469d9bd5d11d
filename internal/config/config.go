package config

import (
	"log"
	"os"
	"strconv"
)

// Config holds the application configuration
type Config struct {
	Port      string
	DBPath    string
	JWTSecret string

	AssetDir string // marker images and sounds
	TileDir  string // baked route images
	FontPath string // optional TrueType label font

	ScreenWidth  int
	ScreenHeight int
	FrameRate    int

	RateLimit int // mutating requests per minute per client
}

// Load reads the configuration from the environment
func Load() *Config {
	return &Config{
		Port:         env("PORT", ":8080"),
		DBPath:       env("DB_PATH", "./data/routes/routes.db"),
		JWTSecret:    env("JWT_SECRET", "your-secret-key-change-in-production"),
		AssetDir:     env("ASSET_DIR", "./data/assets"),
		TileDir:      env("TILE_DIR", "./data/tiles"),
		FontPath:     os.Getenv("FONT_PATH"),
		ScreenWidth:  envInt("SCREEN_WIDTH", 1920),
		ScreenHeight: envInt("SCREEN_HEIGHT", 1080),
		FrameRate:    envInt("FRAME_RATE", 60),
		RateLimit:    envInt("RATE_LIMIT", 120),
	}
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Printf("[Config] ignoring %s=%q, using %d", key, v, def)
		return def
	}
	return n
}
