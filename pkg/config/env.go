package config

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"
)

// Environment variables that override file values.
const (
	EnvGPSDAddr   = "CARNAV_GPSD_ADDR"
	EnvTileURL    = "CARNAV_TILE_URL"
	EnvServerAddr = "CARNAV_SERVER_ADDR"
)

// LoadEnv loads the given dotenv files, skipping those that do not exist.
// Variables already present in the environment win.
func LoadEnv(paths ...string) {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			slog.Warn("Failed to load env file", "path", p, "error", err)
			continue
		}
		slog.Debug("Loaded env file", "path", p)
	}
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvGPSDAddr); v != "" {
		cfg.GPS.GPSDAddr = v
	}
	if v := os.Getenv(EnvTileURL); v != "" {
		cfg.Map.TileURL = v
	}
	if v := os.Getenv(EnvServerAddr); v != "" {
		cfg.Server.Address = v
	}
}
