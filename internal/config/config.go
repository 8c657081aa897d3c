// Package config loads the runtime configuration of the command line tools from the
// environment, optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"omr-scanner/internal/page"
	"omr-scanner/internal/settings"

	"github.com/joho/godotenv"
)

// Config holds runtime options. Recognition parameters live in the settings file.
type Config struct {
	SettingsPath string  // OMR_SETTINGS, empty for built-in defaults
	DebugDir     string  // OMR_DEBUG_DIR, empty disables overlays
	Workers      int     // OMR_WORKERS, 0 for one per CPU
	DPI          float64 // OMR_DPI
	LogLevel     slog.Level

	OTLPEndpoint string // OTEL_EXPORTER_OTLP_ENDPOINT
}

// Load reads envFile (when it exists) into the environment without overriding
// variables that are already set, then builds and validates the configuration.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read %s: %w", envFile, err)
		}
	}

	cfg := &Config{
		SettingsPath: getEnvOrDefault("OMR_SETTINGS", ""),
		DebugDir:     getEnvOrDefault("OMR_DEBUG_DIR", ""),
		Workers:      getEnvAsIntOrDefault("OMR_WORKERS", 0),
		DPI:          getEnvAsFloatOrDefault("OMR_DPI", page.DefaultDPI),
		LogLevel:     parseLevel(getEnvOrDefault("OMR_LOG_LEVEL", "info")),
		OTLPEndpoint: getEnvOrDefault("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks ranges.
func (c *Config) Validate() error {
	if c.Workers < 0 || c.Workers > 256 {
		return fmt.Errorf("OMR_WORKERS must be between 0 and 256, got %d", c.Workers)
	}
	if c.DPI < 50 || c.DPI > 1200 {
		return fmt.Errorf("OMR_DPI must be between 50 and 1200, got %g", c.DPI)
	}
	return nil
}

// Settings loads the recognition settings and turns on overlays when a debug
// directory is configured.
func (c *Config) Settings() (settings.Settings, error) {
	s := settings.Default()
	if c.SettingsPath != "" {
		var err error
		if s, err = settings.Load(c.SettingsPath); err != nil {
			return settings.Settings{}, err
		}
	}
	if c.DebugDir != "" {
		s.ExportDebugImages = true
	}
	return s, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsIntOrDefault(key string, defaultValue int) int {
	value, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloatOrDefault(key string, defaultValue float64) float64 {
	value, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func parseLevel(s string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return level
}
