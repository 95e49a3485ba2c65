// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

const (
	defaultCadences    = "daily=0 1 * * *;hourly=0 * * * *"
	devIntervalCadence = "*/5 * * * *"
)

// Config holds application configuration
type Config struct {
	Location              *time.Location // Resolved TimeZone; snapshot dates are computed in it
	DataDir               string         // Base directory for both databases (always absolute)
	LogLevel              string
	TimeZone              string
	PriceFeedURL          string // Empty disables the websocket price feed
	SnapshotCadences      []Cadence
	Backup                BackupConfig
	Port                  int
	SnapshotWriteAttempts int
	DevMode               bool
}

// Cadence is one named snapshot schedule
type Cadence struct {
	Name string
	Spec string // Standard 5-field cron expression
}

// BackupConfig holds the S3-compatible history backup settings
type BackupConfig struct {
	Bucket          string
	Prefix          string
	Region          string
	Endpoint        string // Custom endpoint for R2 / MinIO, empty for AWS
	AccessKeyID     string
	SecretAccessKey string
	Schedule        string
	RetentionDays   int
}

// Enabled reports whether history backups are configured
func (b BackupConfig) Enabled() bool {
	return b.Bucket != ""
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	absDataDir, err := filepath.Abs(getEnv("TRACKER_DATA_DIR", "./data"))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:               absDataDir,
		Port:                  getEnvAsInt("GO_PORT", 8001),
		DevMode:               getEnvAsBool("DEV_MODE", false),
		LogLevel:              getEnv("LOG_LEVEL", "info"),
		TimeZone:              getEnv("TIME_ZONE", "UTC"),
		PriceFeedURL:          getEnv("PRICE_FEED_URL", ""),
		SnapshotWriteAttempts: getEnvAsInt("SNAPSHOT_WRITE_ATTEMPTS", 1),
		Backup: BackupConfig{
			Bucket:          getEnv("BACKUP_S3_BUCKET", ""),
			Prefix:          getEnv("BACKUP_S3_PREFIX", "tracker/"),
			Region:          getEnv("BACKUP_S3_REGION", "auto"),
			Endpoint:        getEnv("BACKUP_S3_ENDPOINT", ""),
			AccessKeyID:     getEnv("BACKUP_S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("BACKUP_S3_SECRET_ACCESS_KEY", ""),
			Schedule:        getEnv("BACKUP_SCHEDULE", "0 3 * * *"),
			RetentionDays:   getEnvAsInt("BACKUP_RETENTION_DAYS", 30),
		},
	}

	cfg.Location, err = time.LoadLocation(cfg.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("invalid TIME_ZONE %q: %w", cfg.TimeZone, err)
	}

	cfg.SnapshotCadences, err = ParseCadences(getEnv("SNAPSHOT_CADENCES", defaultCadences))
	if err != nil {
		return nil, err
	}
	if cfg.DevMode && !hasCadence(cfg.SnapshotCadences, "interval") {
		cfg.SnapshotCadences = append(cfg.SnapshotCadences, Cadence{Name: "interval", Spec: devIntervalCadence})
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// PortfolioDBPath returns the path of the current-state database
func (c *Config) PortfolioDBPath() string {
	return filepath.Join(c.DataDir, "portfolio.db")
}

// HistoryDBPath returns the path of the append-only snapshot database
func (c *Config) HistoryDBPath() string {
	return filepath.Join(c.DataDir, "history.db")
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid GO_PORT %d", c.Port)
	}
	if c.SnapshotWriteAttempts < 1 {
		return fmt.Errorf("SNAPSHOT_WRITE_ATTEMPTS must be at least 1, got %d", c.SnapshotWriteAttempts)
	}
	if c.Location == nil {
		return fmt.Errorf("time zone not resolved")
	}

	seen := make(map[string]bool, len(c.SnapshotCadences))
	for _, cadence := range c.SnapshotCadences {
		if seen[cadence.Name] {
			return fmt.Errorf("duplicate snapshot cadence %q", cadence.Name)
		}
		seen[cadence.Name] = true
		if _, err := cron.ParseStandard(cadence.Spec); err != nil {
			return fmt.Errorf("invalid schedule for cadence %q: %w", cadence.Name, err)
		}
	}

	if c.Backup.Enabled() {
		if _, err := cron.ParseStandard(c.Backup.Schedule); err != nil {
			return fmt.Errorf("invalid BACKUP_SCHEDULE: %w", err)
		}
		if c.Backup.RetentionDays < 0 {
			return fmt.Errorf("BACKUP_RETENTION_DAYS must not be negative")
		}
	}

	return nil
}

// ParseCadences parses "name=spec;name=spec" into cadences.
// Empty segments are ignored; the schedules themselves are checked by Validate.
func ParseCadences(value string) ([]Cadence, error) {
	cadences := make([]Cadence, 0)
	for _, part := range strings.Split(value, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, spec, ok := strings.Cut(part, "=")
		name = strings.TrimSpace(name)
		spec = strings.TrimSpace(spec)
		if !ok || name == "" || spec == "" {
			return nil, fmt.Errorf("invalid snapshot cadence %q, expected name=cron", part)
		}
		cadences = append(cadences, Cadence{Name: name, Spec: spec})
	}
	return cadences, nil
}

func hasCadence(cadences []Cadence, name string) bool {
	for _, c := range cadences {
		if c.Name == name {
			return true
		}
	}
	return false
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
