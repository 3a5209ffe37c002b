package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"seatbook/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Backup     BackupConfig     `yaml:"backup"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
	Booking    BookingConfig    `yaml:"booking"`
	Sweep      SweepConfig      `yaml:"sweep"`
	Exports    ExportConfig     `yaml:"exports"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
	// IANA zone that booking dates and slot times are interpreted in.
	Timezone string `yaml:"timezone"`
}

// IsProduction hides internal error details from API responses.
func (a AppConfig) IsProduction() bool {
	return a.Environment == "production"
}

// Location resolves Timezone, falling back to UTC.
func (a AppConfig) Location() *time.Location {
	if a.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type BackupConfig struct {
	Enabled         bool   `yaml:"enabled"`
	IntervalMinutes int    `yaml:"interval_minutes"`
	RetentionDays   int    `yaml:"retention_days"`
	StoragePath     string `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type APIConfig struct {
	Enabled     bool               `yaml:"enabled"`
	HTTP        APIHTTPConfig      `yaml:"http"`
	JWTSecret   string             `yaml:"jwt_secret"`
	RateLimit   APIRateLimitConfig `yaml:"rate_limit"`
	CORSOrigins []string           `yaml:"cors_origins"`
}

type APIHTTPConfig struct {
	Port int `yaml:"port"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type BookingConfig struct {
	MaxRangeDays            int    `yaml:"max_range_days"`
	MonthlyWindowDays       int    `yaml:"monthly_window_days"`
	CancelGraceMinutes      int    `yaml:"cancel_grace_minutes"`
	MonthlyCancelGraceHours int    `yaml:"monthly_cancel_grace_hours"`
	Currency                string `yaml:"currency"`
}

type SweepConfig struct {
	Enabled         bool        `yaml:"enabled"`
	IntervalMinutes int         `yaml:"interval_minutes"`
	GraceMinutes    int         `yaml:"grace_minutes"`
	LockTTLSeconds  int         `yaml:"lock_ttl_seconds"`
	Retry           RetryConfig `yaml:"retry"`
}

type RetryConfig struct {
	MaxRetries          int `yaml:"max_retries"`
	InitialDelaySeconds int `yaml:"initial_delay_seconds"`
	MaxDelaySeconds     int `yaml:"max_delay_seconds"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional outside of local development
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// ${VAR} references are resolved before parsing
	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}
	if c.API.Enabled && (c.API.JWTSecret == "" || c.API.JWTSecret == "CHANGE_ME") {
		return errors.New("api jwt secret is required")
	}
	if c.App.Timezone != "" {
		if _, err := time.LoadLocation(c.App.Timezone); err != nil {
			return fmt.Errorf("invalid timezone %q: %w", c.App.Timezone, err)
		}
	}
	if c.Booking.MaxRangeDays < 1 {
		return errors.New("booking max_range_days must be positive")
	}
	if c.Booking.MonthlyWindowDays < 1 {
		return errors.New("booking monthly_window_days must be positive")
	}
	if c.Sweep.Retry.MaxRetries < 0 {
		return errors.New("sweep retry max_retries cannot be negative")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "seatbook"
	}
	if c.App.Environment == "" {
		c.App.Environment = "development"
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.API.RateLimit.RPS == 0 {
		c.API.RateLimit.RPS = 20
	}
	if c.API.RateLimit.Burst == 0 {
		c.API.RateLimit.Burst = 40
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}

	if c.Booking.MaxRangeDays == 0 {
		c.Booking.MaxRangeDays = models.DefaultMaxRangeDays
	}
	if c.Booking.MonthlyWindowDays == 0 {
		c.Booking.MonthlyWindowDays = models.DefaultMonthlyWindowDays
	}
	if c.Booking.CancelGraceMinutes == 0 {
		c.Booking.CancelGraceMinutes = models.CancelGraceMinutes
	}
	if c.Booking.MonthlyCancelGraceHours == 0 {
		c.Booking.MonthlyCancelGraceHours = models.MonthlyCancelGraceHours
	}
	if c.Booking.Currency == "" {
		c.Booking.Currency = models.DefaultCurrency
	}

	if c.Sweep.IntervalMinutes == 0 {
		c.Sweep.IntervalMinutes = models.SweepIntervalMinutes
	}
	if c.Sweep.GraceMinutes == 0 {
		c.Sweep.GraceMinutes = models.SweepGraceMinutes
	}
	if c.Sweep.LockTTLSeconds == 0 {
		c.Sweep.LockTTLSeconds = 300
	}
	if c.Sweep.Retry.MaxRetries == 0 {
		c.Sweep.Retry.MaxRetries = 3
	}
	if c.Sweep.Retry.InitialDelaySeconds == 0 {
		c.Sweep.Retry.InitialDelaySeconds = 5
	}
	if c.Sweep.Retry.MaxDelaySeconds == 0 {
		c.Sweep.Retry.MaxDelaySeconds = 60
	}

	if c.Backup.IntervalMinutes == 0 {
		c.Backup.IntervalMinutes = 24 * 60
	}
	if c.Backup.StoragePath == "" {
		c.Backup.StoragePath = "./backups"
	}
	if c.Exports.Path == "" {
		c.Exports.Path = "./exports"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}
