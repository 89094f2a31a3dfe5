package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// AppConfig holds the complete application configuration.
type AppConfig struct {
	DataPath       string `env:"DATA_PATH"`
	DefaultSamples int    `env:"MCS_DEFAULT_SAMPLES" envDefault:"10000"`
	Workers        int    `env:"MCS_WORKERS"`
	Seed           uint64 `env:"MCS_SEED"`
	DBPath         string `env:"MCS_DB_PATH"`
	MetricsAddr    string `env:"MCS_METRICS_ADDR"`
}

// Load loads the configuration from .env files and environment variables.
func Load() (*AppConfig, error) {
	// 1. Try to load from the executable's directory (highest priority for MCP servers)
	exePath, err := os.Executable()
	exeDir := ""
	if err == nil {
		exeDir = filepath.Dir(exePath)
		envPath := filepath.Join(exeDir, ".env")
		if err := godotenv.Load(envPath); err == nil {
			log.Debug().Str("path", envPath).Msg("Loaded configuration from binary directory")
		}
	}

	// 2. Fallback to current working directory (useful for development/go run)
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file found in working directory, relying on environment variables or binary-relative .env")
	}

	// 3. Populate from the environment
	cfg := &AppConfig{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	// 4. Resolve defaults that depend on the host
	if cfg.DataPath == "" {
		if exeDir != "" {
			cfg.DataPath = exeDir
		} else {
			cfg.DataPath = "."
		}
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	if cfg.DefaultSamples <= 0 {
		return nil, fmt.Errorf("MCS_DEFAULT_SAMPLES must be positive, got %d", cfg.DefaultSamples)
	}
	if cfg.DBPath == "" {
		cfg.DBPath = filepath.Join(cfg.DataPath, "mcs-engine.db")
	}

	return cfg, nil
}
