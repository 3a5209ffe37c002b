package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"seatbook/internal/models"
)

func TestLoadConfig(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	t.Setenv("SEATBOOK_JWT_SECRET", "s3cret")

	yamlContent := `
app:
  environment: production
  timezone: Asia/Kolkata
database:
  path: "test.db"
api:
  enabled: true
  jwt_secret: "${SEATBOOK_JWT_SECRET}"
  cors_origins: ["https://app.example.com"]
booking:
  cancel_grace_minutes: 90
sweep:
  enabled: true
`
	if err := os.WriteFile(configPath, []byte(yamlContent), 0o644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.API.JWTSecret != "s3cret" {
		t.Errorf("expected expanded jwt secret, got %q", cfg.API.JWTSecret)
	}
	if !cfg.App.IsProduction() {
		t.Errorf("expected production environment")
	}
	if cfg.App.Location().String() != "Asia/Kolkata" {
		t.Errorf("expected Asia/Kolkata location, got %s", cfg.App.Location())
	}
	if cfg.Booking.CancelGraceMinutes != 90 {
		t.Errorf("expected cancel grace 90, got %d", cfg.Booking.CancelGraceMinutes)
	}
	if cfg.Booking.MonthlyWindowDays != models.DefaultMonthlyWindowDays {
		t.Errorf("expected default monthly window, got %d", cfg.Booking.MonthlyWindowDays)
	}
	if len(cfg.API.CORSOrigins) != 1 {
		t.Errorf("expected 1 cors origin, got %d", len(cfg.API.CORSOrigins))
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidateConfig(t *testing.T) {
	base := func() Config {
		cfg := Config{Database: DatabaseConfig{Path: "path"}}
		cfg.applyDefaults()
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "valid config", mutate: func(*Config) {}},
		{name: "missing database path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: true},
		{name: "api without secret", mutate: func(c *Config) { c.API.Enabled = true }, wantErr: true},
		{name: "placeholder secret", mutate: func(c *Config) {
			c.API.Enabled = true
			c.API.JWTSecret = "CHANGE_ME"
		}, wantErr: true},
		{name: "api with secret", mutate: func(c *Config) {
			c.API.Enabled = true
			c.API.JWTSecret = "x"
		}},
		{name: "bad timezone", mutate: func(c *Config) { c.App.Timezone = "Mars/Olympus" }, wantErr: true},
		{name: "negative retries", mutate: func(c *Config) { c.Sweep.Retry.MaxRetries = -1 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()

	if cfg.API.HTTP.Port != 8080 {
		t.Errorf("expected default http port 8080, got %d", cfg.API.HTTP.Port)
	}
	if cfg.Booking.MaxRangeDays != models.DefaultMaxRangeDays {
		t.Errorf("expected default max range %d, got %d", models.DefaultMaxRangeDays, cfg.Booking.MaxRangeDays)
	}
	if cfg.Booking.Currency != models.DefaultCurrency {
		t.Errorf("expected default currency %s, got %s", models.DefaultCurrency, cfg.Booking.Currency)
	}
	if cfg.Sweep.GraceMinutes != models.SweepGraceMinutes {
		t.Errorf("expected default sweep grace %d, got %d", models.SweepGraceMinutes, cfg.Sweep.GraceMinutes)
	}
	if cfg.Sweep.Retry.MaxRetries != 3 {
		t.Errorf("expected default retries 3, got %d", cfg.Sweep.Retry.MaxRetries)
	}
	if cfg.App.Location() != time.UTC {
		t.Errorf("expected UTC when timezone unset")
	}
}
