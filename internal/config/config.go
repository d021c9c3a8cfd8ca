package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration, sourced from the environment.
type Config struct {
	Port          string
	DBPath        string
	LogLevel      string
	SessionSecret string
}

// Load reads .env (if present) and then the LARDER_* environment variables.
// LARDER_SESSION_SECRET is required; everything else has a default.
func Load() (Config, error) {
	// Missing .env is fine; vars may come from the process environment.
	_ = godotenv.Load()

	cfg := Config{
		Port:          getenv("LARDER_PORT", "8080"),
		DBPath:        getenv("LARDER_DB_PATH", "larder.db"),
		LogLevel:      getenv("LARDER_LOG_LEVEL", "info"),
		SessionSecret: os.Getenv("LARDER_SESSION_SECRET"),
	}

	if cfg.SessionSecret == "" {
		return Config{}, fmt.Errorf("LARDER_SESSION_SECRET is required")
	}
	if len(cfg.SessionSecret) < 32 {
		return Config{}, fmt.Errorf("LARDER_SESSION_SECRET must be at least 32 characters")
	}

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
