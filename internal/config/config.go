// Package config loads the daemon configuration. Secrets and deployment
// knobs come from environment variables (optionally via a .env file);
// user-entered tracking settings live in an optional YAML file.
package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/grimsteel/smarttag-go/smarttag"
)

// Config is the daemon's runtime configuration.
type Config struct {
	// Origin overrides the provider backend. Empty means the production
	// origin.
	Origin string

	// Email and Password are the parent portal credentials used for the
	// initial login and for recovery when the refresh token dies.
	Email    string
	Password string

	// PollInterval is how often the coordinator polls. The portal updates
	// slowly, so hourly is plenty.
	PollInterval time.Duration

	// RideLimit is the page size requested from the riding-activity
	// endpoint per student.
	RideLimit int

	// DBPath is the SQLite file holding persisted tokens and settings.
	DBPath string

	// StorageKey, when set, is a 32-byte key encrypting the persisted
	// credential blob at rest.
	StorageKey []byte

	// ListenAddr is the status/metrics HTTP listen address.
	ListenAddr string

	// NATSURL enables snapshot publishing when non-empty.
	NATSURL string

	// SettingsPath is the YAML settings file location.
	SettingsPath string

	Settings Settings
}

// Load populates Config from the environment (after loading .env if present)
// and from the settings file when one exists.
func Load() (*Config, error) {
	// Ignore a missing .env; the environment may be fully populated already.
	_ = godotenv.Load()

	cfg := &Config{
		Origin:       GetEnv("SMARTTAG_ORIGIN", smarttag.DefaultOrigin),
		Email:        os.Getenv("SMARTTAG_EMAIL"),
		Password:     os.Getenv("SMARTTAG_PASSWORD"),
		PollInterval: durationEnv("POLL_INTERVAL", time.Hour),
		RideLimit:    intEnv("RIDE_LIMIT", 30),
		DBPath:       GetEnv("DB_PATH", "./smarttag.db"),
		ListenAddr:   GetEnv("LISTEN_ADDR", ":8080"),
		NATSURL:      os.Getenv("NATS_URL"),
		SettingsPath: GetEnv("SETTINGS_FILE", "smarttag.yml"),
	}

	if cfg.Email == "" || cfg.Password == "" {
		return nil, fmt.Errorf("SMARTTAG_EMAIL and SMARTTAG_PASSWORD must be set")
	}
	if cfg.RideLimit <= 0 {
		return nil, fmt.Errorf("RIDE_LIMIT must be positive")
	}

	if keyHex := os.Getenv("STORAGE_KEY"); keyHex != "" {
		key, err := hex.DecodeString(keyHex)
		if err != nil {
			return nil, fmt.Errorf("invalid STORAGE_KEY: %w", err)
		}
		if len(key) != 32 {
			return nil, fmt.Errorf("STORAGE_KEY must be 32 bytes, got %d", len(key))
		}
		cfg.StorageKey = key
	}

	settings, err := LoadSettings(cfg.SettingsPath)
	if err != nil {
		return nil, err
	}
	cfg.Settings = settings

	// The settings file wins over the environment for user-facing knobs.
	if settings.Origin != "" {
		cfg.Origin = settings.Origin
	}
	if settings.PollIntervalMinutes > 0 {
		cfg.PollInterval = time.Duration(settings.PollIntervalMinutes) * time.Minute
	}

	return cfg, nil
}

// GetEnv returns the value of envVar, or defaultValue when unset or empty.
func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

func durationEnv(envVar string, fallback time.Duration) time.Duration {
	value := os.Getenv(envVar)
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

func intEnv(envVar string, fallback int) int {
	value := os.Getenv(envVar)
	if value == "" {
		return fallback
	}
	var parsed int
	if _, err := fmt.Sscanf(value, "%d", &parsed); err != nil {
		return fallback
	}
	return parsed
}
