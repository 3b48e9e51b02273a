package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Server.Port != 8084 {
		t.Errorf("port = %d, want 8084", cfg.Server.Port)
	}
	if cfg.Google.CalendarID != "primary" {
		t.Errorf("calendar = %q, want primary", cfg.Google.CalendarID)
	}
	if cfg.Retry.MaxAttempts != 3 {
		t.Errorf("max attempts = %d, want 3", cfg.Retry.MaxAttempts)
	}
	if cfg.Sync.PageSize != 100 || cfg.Sync.MailLimit != 500 {
		t.Errorf("sync = %+v", cfg.Sync)
	}
	if filepath.Base(cfg.DataDir) != ".meridian" {
		t.Errorf("data dir = %q", cfg.DataDir)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8084 {
		t.Errorf("port = %d, want default", cfg.Server.Port)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")

	cfg := Default()
	cfg.Server.Port = 9001
	cfg.Sync.IncludeCancelled = true
	cfg.Debug = true
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Server.Port != 9001 {
		t.Errorf("port = %d, want 9001", loaded.Server.Port)
	}
	if !loaded.Sync.IncludeCancelled || !loaded.Debug {
		t.Errorf("loaded = %+v", loaded)
	}
}

func TestLoadEnvOverridesCredentials(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	cfg := Default()
	cfg.Google.ClientID = "file-id"
	cfg.Google.ClientSecret = "file-secret"
	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	t.Setenv("GOOGLE_CLIENT_ID", "env-id")
	t.Setenv("GOOGLE_CLIENT_SECRET", "env-secret")

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Google.ClientID != "env-id" || loaded.Google.ClientSecret != "env-secret" {
		t.Errorf("credentials = %q / %q, want env values", loaded.Google.ClientID, loaded.Google.ClientSecret)
	}
}

func TestLoadBadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for malformed config")
	}
}

func TestRetryDurations(t *testing.T) {
	rc := RetryConfig{BaseDelayMS: 500, MaxDelayMS: 8000, PacingMinMS: 20, PacingMaxMS: 60}

	if rc.BaseDelay() != 500*time.Millisecond {
		t.Errorf("base = %v", rc.BaseDelay())
	}
	if rc.MaxDelay() != 8*time.Second {
		t.Errorf("max = %v", rc.MaxDelay())
	}
	if rc.PacingMin() != 20*time.Millisecond || rc.PacingMax() != 60*time.Millisecond {
		t.Errorf("pacing = %v / %v", rc.PacingMin(), rc.PacingMax())
	}
}

func TestDatabasePath(t *testing.T) {
	cfg := &Config{DataDir: "/tmp/meridian"}
	if got := cfg.DatabasePath(); got != filepath.Join("/tmp/meridian", "meridian.db") {
		t.Errorf("path = %q", got)
	}
}
