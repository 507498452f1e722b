// Package config provides configuration management functionality.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
)

// Config holds application configuration
type Config struct {
	DataDir  string // Base directory for the orders database (always absolute)
	LogLevel string
	Port     int
	DevMode  bool

	// Account
	MarginAccount   bool
	MarginLeverage  decimal.Decimal
	CommissionFlat  decimal.Decimal
	CommissionTiers string // "shares:amount,..."; overrides CommissionFlat when set

	// Order lifecycle
	FillDelay     time.Duration
	OrderLifetime time.Duration

	// Background jobs
	AnalysisSchedule     string
	AnalysisLookbackDays int
	SettlementSchedule   string

	// S3-compatible backups of the orders database (disabled without a bucket)
	BackupBucket          string
	BackupRegion          string
	BackupEndpoint        string // e.g. an R2 or MinIO URL; empty means AWS
	BackupAccessKeyID     string
	BackupSecretAccessKey string
	BackupPrefix          string
	BackupSchedule        string
	BackupRetentionDays   int // 0 keeps every backup
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("TRADESIM_DATA_DIR", "./data")

	// Always resolve to absolute path
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	// Ensure directory exists
	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:              absDataDir,
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		Port:                 getEnvAsInt("GO_PORT", 8001),
		DevMode:              getEnvAsBool("DEV_MODE", false),
		MarginAccount:        getEnvAsBool("MARGIN_ACCOUNT", false),
		CommissionTiers:      getEnv("COMMISSION_TIERS", ""),
		FillDelay:            getEnvAsDuration("FILL_DELAY", 0),
		OrderLifetime:        getEnvAsDuration("ORDER_LIFETIME", 24*time.Hour),
		AnalysisSchedule:     getEnv("ANALYSIS_SCHEDULE", "@daily"),
		AnalysisLookbackDays: getEnvAsInt("ANALYSIS_LOOKBACK_DAYS", 1),
		SettlementSchedule:   getEnv("SETTLEMENT_SCHEDULE", "@hourly"),

		BackupBucket:          getEnv("BACKUP_S3_BUCKET", ""),
		BackupRegion:          getEnv("BACKUP_S3_REGION", "us-east-1"),
		BackupEndpoint:        getEnv("BACKUP_S3_ENDPOINT", ""),
		BackupAccessKeyID:     getEnv("BACKUP_S3_ACCESS_KEY_ID", ""),
		BackupSecretAccessKey: getEnv("BACKUP_S3_SECRET_ACCESS_KEY", ""),
		BackupPrefix:          getEnv("BACKUP_S3_PREFIX", "backups/"),
		BackupSchedule:        getEnv("BACKUP_SCHEDULE", "@daily"),
		BackupRetentionDays:   getEnvAsInt("BACKUP_RETENTION_DAYS", 30),
	}

	if cfg.CommissionFlat, err = getEnvAsDecimal("COMMISSION_FLAT", "7.95"); err != nil {
		return nil, err
	}
	if cfg.MarginLeverage, err = getEnvAsDecimal("MARGIN_LEVERAGE", "2"); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the loaded values
func (c *Config) Validate() error {
	var errs []error

	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("GO_PORT %d out of range", c.Port))
	}
	if c.CommissionFlat.IsNegative() {
		errs = append(errs, errors.New("COMMISSION_FLAT cannot be negative"))
	}
	if c.MarginAccount && !c.MarginLeverage.IsPositive() {
		errs = append(errs, errors.New("MARGIN_LEVERAGE must be positive"))
	}
	if err := validateTiers(c.CommissionTiers); err != nil {
		errs = append(errs, err)
	}
	if c.FillDelay < 0 {
		errs = append(errs, errors.New("FILL_DELAY cannot be negative"))
	}
	if c.OrderLifetime < 0 {
		errs = append(errs, errors.New("ORDER_LIFETIME cannot be negative"))
	}
	if c.AnalysisLookbackDays < 1 {
		errs = append(errs, errors.New("ANALYSIS_LOOKBACK_DAYS must be at least 1"))
	}
	if err := validateSchedule("ANALYSIS_SCHEDULE", c.AnalysisSchedule); err != nil {
		errs = append(errs, err)
	}
	if err := validateSchedule("SETTLEMENT_SCHEDULE", c.SettlementSchedule); err != nil {
		errs = append(errs, err)
	}

	if c.BackupEnabled() {
		if err := validateSchedule("BACKUP_SCHEDULE", c.BackupSchedule); err != nil {
			errs = append(errs, err)
		}
		if c.BackupRetentionDays < 0 {
			errs = append(errs, errors.New("BACKUP_RETENTION_DAYS cannot be negative"))
		}
		if (c.BackupAccessKeyID == "") != (c.BackupSecretAccessKey == "") {
			errs = append(errs, errors.New("BACKUP_S3_ACCESS_KEY_ID and BACKUP_S3_SECRET_ACCESS_KEY must be set together"))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// BackupEnabled reports whether a backup bucket is configured
func (c *Config) BackupEnabled() bool {
	return strings.TrimSpace(c.BackupBucket) != ""
}

// validateSchedule parses with the same options the scheduler uses
func validateSchedule(name, schedule string) error {
	if strings.TrimSpace(schedule) == "" {
		return fmt.Errorf("%s cannot be empty", name)
	}
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(schedule); err != nil {
		return fmt.Errorf("%s %q: %w", name, schedule, err)
	}
	return nil
}

// validateTiers checks the shape of a tier list; trading parses it for real
func validateTiers(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fields := strings.SplitN(part, ":", 2)
		if len(fields) != 2 {
			return fmt.Errorf("COMMISSION_TIERS entry %q: expected shares:amount", part)
		}
		for _, field := range fields {
			if _, err := decimal.NewFromString(strings.TrimSpace(field)); err != nil {
				return fmt.Errorf("COMMISSION_TIERS entry %q: %w", part, err)
			}
		}
	}
	return nil
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

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvAsDecimal fails on a malformed value instead of silently using the default
func getEnvAsDecimal(key, defaultValue string) (decimal.Decimal, error) {
	value := getEnv(key, defaultValue)
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return d, nil
}
