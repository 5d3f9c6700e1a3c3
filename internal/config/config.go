// Package config loads run configuration from the environment and an
// optional broker YAML override file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/rupeelab/backtest/internal/domain"
)

// Config holds application configuration.
type Config struct {
	DataDir      string // Directory holding the CSV exports
	DataCacheDir string // Parsed-series snapshot cache
	ReportDir    string // Root for run artifact directories
	HistoryDB    string // SQLite archive for imported bars
	Benchmark    string // Benchmark symbol for alpha/beta
	KeepRuns     int    // Report dirs kept by maintenance, 0 keeps all
	LogLevel     string
	LogPretty    bool

	Broker domain.BrokerConfig

	Backup BackupConfig
}

// BackupConfig describes the optional S3-compatible artifact backup.
// Disabled when Bucket is empty.
type BackupConfig struct {
	Bucket        string
	Endpoint      string
	Region        string
	AccessKey     string
	SecretKey     string
	RetentionDays int // Remote archives older than this rotate out, 0 keeps all
}

// Enabled reports whether backup is configured.
func (b BackupConfig) Enabled() bool { return b.Bucket != "" }

// Load reads configuration from environment variables. A .env file in
// the working directory is honored when present. brokerFile optionally
// overrides the default broker parameters.
func Load(brokerFile string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DataDir:      getEnv("DATA_DIR", "data"),
		DataCacheDir: getEnv("DATA_CACHE_DIR", filepath.Join("data", "cache")),
		ReportDir:    getEnv("REPORT_DIR", "reports"),
		HistoryDB:    getEnv("HISTORY_DB", filepath.Join("data", "history.db")),
		Benchmark:    getEnv("BENCHMARK_SYMBOL", "NIFTYBEES"),
		KeepRuns:     getEnvAsInt("REPORT_KEEP_RUNS", 0),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		LogPretty:    getEnvAsBool("LOG_PRETTY", false),
		Broker:       domain.DefaultBrokerConfig(),
		Backup: BackupConfig{
			Bucket:        getEnv("BACKUP_S3_BUCKET", ""),
			Endpoint:      getEnv("BACKUP_S3_ENDPOINT", ""),
			Region:        getEnv("BACKUP_S3_REGION", "auto"),
			AccessKey:     getEnv("BACKUP_S3_ACCESS_KEY", ""),
			SecretKey:     getEnv("BACKUP_S3_SECRET_KEY", ""),
			RetentionDays: getEnvAsInt("BACKUP_RETENTION_DAYS", 90),
		},
	}

	if brokerFile != "" {
		if err := loadBrokerFile(brokerFile, &cfg.Broker); err != nil {
			return nil, err
		}
	}
	if err := cfg.Broker.Validate(); err != nil {
		return nil, domain.NewConfigError("invalid broker config: %s", err)
	}
	return cfg, nil
}

// loadBrokerFile overlays YAML values onto the defaults. Fields absent
// from the file keep their default.
func loadBrokerFile(path string, broker *domain.BrokerConfig) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return domain.NewConfigError("read broker config %s: %s", path, err)
	}
	if err := yaml.Unmarshal(raw, broker); err != nil {
		return domain.NewConfigError("parse broker config %s: %s", path, err)
	}
	return nil
}

// EnsureDirs creates the writable directories the run needs.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.DataCacheDir, c.ReportDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
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
