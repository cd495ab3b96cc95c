package config

import (
	"os"
	"path/filepath"
	"testing"
)

// ── Load / Defaults ──

func TestLoadReturnsDefaults(t *testing.T) {
	os.Unsetenv("STOCKPULSE_STORE_TIMESERIES")
	os.Unsetenv("STOCKPULSE_STORE_SQLITE_PATH")
	os.Unsetenv("STOCKPULSE_API_PORT")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Store.Timeseries != "sqlite" {
		t.Errorf("Store.Timeseries: got %q, want %q", cfg.Store.Timeseries, "sqlite")
	}
	if cfg.Store.SQLitePath == "" {
		t.Error("Store.SQLitePath should have a default")
	}
	if cfg.Store.S3.Region != "auto" {
		t.Errorf("Store.S3.Region: got %q, want %q", cfg.Store.S3.Region, "auto")
	}
	if cfg.Store.S3.RatePerSec != 50 {
		t.Errorf("Store.S3.RatePerSec: got %d, want 50", cfg.Store.S3.RatePerSec)
	}

	if cfg.Pipeline.Workers != 8 {
		t.Errorf("Pipeline.Workers: got %d, want 8", cfg.Pipeline.Workers)
	}
	if cfg.Pipeline.DailySchedule != "30 22 * * MON-FRI" {
		t.Errorf("Pipeline.DailySchedule: got %q", cfg.Pipeline.DailySchedule)
	}
	if cfg.Pipeline.WeeklySchedule != "0 8 * * SUN" {
		t.Errorf("Pipeline.WeeklySchedule: got %q", cfg.Pipeline.WeeklySchedule)
	}

	if cfg.API.Host != "0.0.0.0" {
		t.Errorf("API.Host: got %q, want %q", cfg.API.Host, "0.0.0.0")
	}
	if cfg.API.Port != 8080 {
		t.Errorf("API.Port: got %d, want 8080", cfg.API.Port)
	}
	if len(cfg.API.CORSOrigins) != 1 {
		t.Errorf("API.CORSOrigins: got %v", cfg.API.CORSOrigins)
	}

	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level: got %q, want %q", cfg.Logging.Level, "info")
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Logging.Format: got %q, want %q", cfg.Logging.Format, "text")
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("STOCKPULSE_API_PORT", "9191")
	t.Setenv("STOCKPULSE_STORE_TIMESERIES", "s3")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.API.Port != 9191 {
		t.Errorf("API.Port: got %d, want env override 9191", cfg.API.Port)
	}
	if cfg.Store.Timeseries != "s3" {
		t.Errorf("Store.Timeseries: got %q, want env override s3", cfg.Store.Timeseries)
	}
}

// ── LoadFromFile ──

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
store:
  timeseries: s3
  s3:
    bucket: pulse-data
    endpoint: https://example.r2.cloudflarestorage.com
pipeline:
  workers: 3
api:
  port: 7070
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() error: %v", err)
	}
	if cfg.Store.Timeseries != "s3" {
		t.Errorf("Store.Timeseries: got %q", cfg.Store.Timeseries)
	}
	if cfg.Store.S3.Bucket != "pulse-data" {
		t.Errorf("Store.S3.Bucket: got %q", cfg.Store.S3.Bucket)
	}
	if cfg.Store.S3.Endpoint != "https://example.r2.cloudflarestorage.com" {
		t.Errorf("Store.S3.Endpoint: got %q", cfg.Store.S3.Endpoint)
	}
	if cfg.Pipeline.Workers != 3 {
		t.Errorf("Pipeline.Workers: got %d, want 3", cfg.Pipeline.Workers)
	}
	if cfg.API.Port != 7070 {
		t.Errorf("API.Port: got %d, want 7070", cfg.API.Port)
	}
	// Untouched sections keep their defaults.
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level: got %q, want default", cfg.Logging.Level)
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	if _, err := LoadFromFile("/nonexistent/config.yaml"); err == nil {
		t.Error("expected error for missing config file")
	}
}

// ── Credentials ──

func TestCheckCredentialsSQLiteNeedsNone(t *testing.T) {
	cfg := &Config{}
	cfg.Store.Timeseries = "sqlite"
	if got := CheckCredentials(cfg); len(got) != 0 {
		t.Errorf("sqlite backend should need no credentials, got %v", got)
	}
}

func TestCheckCredentialsS3(t *testing.T) {
	cfg := &Config{}
	cfg.Store.Timeseries = "s3"

	t.Setenv("AWS_ACCESS_KEY_ID", "AKIAEXAMPLEKEY12345")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "")

	statuses := CheckCredentials(cfg)
	if len(statuses) != 2 {
		t.Fatalf("got %d statuses, want 2", len(statuses))
	}
	if !statuses[0].IsSet || statuses[0].Source != SourceEnv {
		t.Errorf("access key status = %+v", statuses[0])
	}
	if statuses[0].Masked != "AKI...345" {
		t.Errorf("masked = %q", statuses[0].Masked)
	}
	if statuses[1].IsSet || statuses[1].Source != SourceNone {
		t.Errorf("secret key status = %+v", statuses[1])
	}
}

func TestMaskSecret(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"short", "***"},
		{"12345678", "***"},
		{"AKIAEXAMPLEKEY12345", "AKI...345"},
	}
	for _, c := range cases {
		if got := maskSecret(c.in); got != c.want {
			t.Errorf("maskSecret(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
