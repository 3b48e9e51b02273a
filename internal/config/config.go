// Package config handles Meridian configuration.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// Config holds all configuration.
type Config struct {
	// Paths
	DataDir string `json:"data_dir"`

	// Server
	Server ServerConfig `json:"server"`

	// Providers
	Google GoogleConfig `json:"google"`

	// Behavior
	Retry RetryConfig `json:"retry"`
	Sync  SyncConfig  `json:"sync"`

	Debug bool `json:"debug"`
}

// ServerConfig for the HTTP API server.
type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// GoogleConfig for the Google providers.
type GoogleConfig struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	RedirectURL  string `json:"redirect_url"`
	CalendarID   string `json:"calendar_id"`
}

// RetryConfig for transient-error backoff.
type RetryConfig struct {
	MaxAttempts int `json:"max_attempts"`
	BaseDelayMS int `json:"base_delay_ms"`
	MaxDelayMS  int `json:"max_delay_ms"`
	PacingMinMS int `json:"pacing_min_ms"`
	PacingMaxMS int `json:"pacing_max_ms"`
}

// SyncConfig for sync behavior.
type SyncConfig struct {
	PageSize         int  `json:"page_size"`
	MailLimit        int  `json:"mail_limit"`
	IncludeCancelled bool `json:"include_cancelled"`
}

// Default returns default configuration.
func Default() *Config {
	home, _ := os.UserHomeDir()

	return &Config{
		DataDir: filepath.Join(home, ".meridian"),
		Server: ServerConfig{
			Host: "localhost",
			Port: 8084,
		},
		Google: GoogleConfig{
			ClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
			ClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
			RedirectURL:  "http://localhost:8765/callback",
			CalendarID:   "primary",
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			BaseDelayMS: 500,
			MaxDelayMS:  8000,
			PacingMinMS: 20,
			PacingMaxMS: 60,
		},
		Sync: SyncConfig{
			PageSize:  100,
			MailLimit: 500,
		},
	}
}

// Load loads config from file, falling back to defaults. Google
// credentials in the environment win over the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = filepath.Join(cfg.DataDir, "config.json")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if id := os.Getenv("GOOGLE_CLIENT_ID"); id != "" {
		cfg.Google.ClientID = id
	}
	if secret := os.Getenv("GOOGLE_CLIENT_SECRET"); secret != "" {
		cfg.Google.ClientSecret = secret
	}

	return cfg, nil
}

// Save saves config to file.
func (c *Config) Save(path string) error {
	if path == "" {
		path = filepath.Join(c.DataDir, "config.json")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// DatabasePath returns the SQLite file location under the data dir.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "meridian.db")
}

// BaseDelay returns the retry base delay as a duration.
func (c RetryConfig) BaseDelay() time.Duration {
	return time.Duration(c.BaseDelayMS) * time.Millisecond
}

// MaxDelay returns the retry delay cap as a duration.
func (c RetryConfig) MaxDelay() time.Duration {
	return time.Duration(c.MaxDelayMS) * time.Millisecond
}

// PacingMin returns the lower pacing bound as a duration.
func (c RetryConfig) PacingMin() time.Duration {
	return time.Duration(c.PacingMinMS) * time.Millisecond
}

// PacingMax returns the upper pacing bound as a duration.
func (c RetryConfig) PacingMax() time.Duration {
	return time.Duration(c.PacingMaxMS) * time.Millisecond
}
