// Package config provides configuration management for the memdump-analysis service.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. MEMDUMP_DATABASE_HOST.
const EnvPrefix = "MEMDUMP"

// Config holds all configuration for the application.
type Config struct {
	Analysis  AnalysisConfig  `mapstructure:"analysis"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Log       LogConfig       `mapstructure:"log"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// AnalysisConfig holds analysis-related configuration.
type AnalysisConfig struct {
	Version           string `mapstructure:"version"`
	DataDir           string `mapstructure:"data_dir"`
	Profile           string `mapstructure:"profile"` // quick, standard or detailed
	MaxConcurrency    int    `mapstructure:"max_concurrency"`
	ClassifyCacheSize int    `mapstructure:"classify_cache_size"`
	CategoryFile      string `mapstructure:"category_file"`
	KeepOutputs       bool   `mapstructure:"keep_outputs"`
}

// DatabaseConfig holds database connection configuration.
type DatabaseConfig struct {
	Type     string `mapstructure:"type"` // postgres, mysql or sqlite
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"` // file path for sqlite
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	MaxConns int    `mapstructure:"max_conns"`
	LogSQL   bool   `mapstructure:"log_sql"`
}

// StorageConfig holds object storage configuration.
type StorageConfig struct {
	Type      string `mapstructure:"type"` // cos or local
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	SecretID  string `mapstructure:"secret_id"`
	SecretKey string `mapstructure:"secret_key"`
	Domain    string `mapstructure:"domain"`     // e.g., "myqcloud.com"
	Scheme    string `mapstructure:"scheme"`     // e.g., "https" or "http"
	LocalPath string `mapstructure:"local_path"` // for local storage
}

// SchedulerConfig holds scheduler configuration.
type SchedulerConfig struct {
	PollInterval  int `mapstructure:"poll_interval"` // in seconds
	WorkerCount   int `mapstructure:"worker_count"`
	PrioritySlots int `mapstructure:"priority_slots"`
	TaskBatchSize int `mapstructure:"task_batch_size"`
	TaskTimeout   int `mapstructure:"task_timeout"` // in seconds, 0 disables
}

// PollDuration returns the poll interval as a duration.
func (s SchedulerConfig) PollDuration() time.Duration {
	return time.Duration(s.PollInterval) * time.Second
}

// TimeoutDuration returns the per-task timeout, zero if disabled.
func (s SchedulerConfig) TimeoutDuration() time.Duration {
	return time.Duration(s.TaskTimeout) * time.Second
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`      // text or json
	OutputPath string `mapstructure:"output_path"` // empty logs to stdout
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// TelemetryConfig holds OpenTelemetry tracing configuration. The standard
// OTEL_* environment variables take precedence over it.
type TelemetryConfig struct {
	Enabled     bool              `mapstructure:"enabled"`
	ServiceName string            `mapstructure:"service_name"`
	Endpoint    string            `mapstructure:"endpoint"`
	Protocol    string            `mapstructure:"protocol"` // grpc or http
	Insecure    bool              `mapstructure:"insecure"`
	Sampler     string            `mapstructure:"sampler"`
	SampleRatio float64           `mapstructure:"sample_ratio"`
	Headers     map[string]string `mapstructure:"headers"`
	Attributes  map[string]string `mapstructure:"attributes"`
}

// defaults covers every key so that AutomaticEnv can override any of them.
var defaults = map[string]interface{}{
	"analysis.version":             "1.0.0",
	"analysis.data_dir":            "./data",
	"analysis.profile":             "standard",
	"analysis.max_concurrency":     4,
	"analysis.classify_cache_size": 4096,
	"analysis.category_file":       "",
	"analysis.keep_outputs":        false,

	"database.type":      "sqlite",
	"database.host":      "localhost",
	"database.port":      5432,
	"database.database":  "./data/memdump.db",
	"database.user":      "",
	"database.password":  "",
	"database.max_conns": 10,
	"database.log_sql":   false,

	"storage.type":       "local",
	"storage.bucket":     "",
	"storage.region":     "",
	"storage.secret_id":  "",
	"storage.secret_key": "",
	"storage.domain":     "myqcloud.com",
	"storage.scheme":     "https",
	"storage.local_path": "./storage",

	"scheduler.poll_interval":   2,
	"scheduler.worker_count":    5,
	"scheduler.priority_slots":  2,
	"scheduler.task_batch_size": 10,
	"scheduler.task_timeout":    600,

	"log.level":        "info",
	"log.format":       "text",
	"log.output_path":  "",
	"log.max_size_mb":  100,
	"log.max_backups":  5,
	"log.max_age_days": 30,
	"log.compress":     true,

	"telemetry.enabled":      false,
	"telemetry.service_name": "memdump-analyzer",
	"telemetry.endpoint":     "",
	"telemetry.protocol":     "grpc",
	"telemetry.insecure":     false,
	"telemetry.sampler":      "always_on",
	"telemetry.sample_ratio": 1.0,
}

var searchPaths = []string{".", "./configs", "/etc/memdump-analysis"}

func newViper() *viper.Viper {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads configPath, or config.yaml from the search paths when it is
// empty. A missing file leaves the defaults in place.
func Load(configPath string) (*Config, error) {
	v := newViper()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		for _, p := range searchPaths {
			v.AddConfigPath(p)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return unmarshal(v)
}

// LoadFromReader loads configuration held in memory in any encoding viper
// supports.
func LoadFromReader(configType string, content []byte) (*Config, error) {
	v := newViper()
	v.SetConfigType(configType)
	if err := v.ReadConfig(bytes.NewReader(content)); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return unmarshal(v)
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// Validate reports every invalid setting at once. Storage settings are
// checked by the storage package when the backend is built.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...interface{}) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	switch c.Database.Type {
	case "postgres", "mysql":
		check(c.Database.Host != "", "database host is required")
	case "sqlite":
		check(c.Database.Database != "", "sqlite database path is required")
	default:
		check(false, "unsupported database type: %s", c.Database.Type)
	}

	check(slices.Contains(profiles, c.Analysis.Profile), "unsupported analysis profile: %s", c.Analysis.Profile)
	check(c.Analysis.MaxConcurrency >= 1, "analysis max concurrency must be at least 1")

	check(c.Scheduler.WorkerCount >= 1, "worker count must be at least 1")
	check(c.Scheduler.PrioritySlots >= 0 && c.Scheduler.PrioritySlots <= c.Scheduler.WorkerCount,
		"priority slots must be between 0 and worker count")

	check(slices.Contains(telemetryProtocols, c.Telemetry.Protocol), "unsupported telemetry protocol: %s", c.Telemetry.Protocol)
	check(c.Telemetry.SampleRatio >= 0 && c.Telemetry.SampleRatio <= 1, "telemetry sample ratio must be between 0 and 1")

	return errors.Join(errs...)
}

var (
	profiles           = []string{"quick", "standard", "detailed"}
	telemetryProtocols = []string{"", "grpc", "http", "http/protobuf"}
)

// EnsureDataDir creates the data directory if it is set.
func (c *Config) EnsureDataDir() error {
	if c.Analysis.DataDir == "" {
		return nil
	}
	return os.MkdirAll(c.Analysis.DataDir, 0755)
}

// GetTaskDir returns the working directory of a task under the data directory.
func (c *Config) GetTaskDir(taskUUID string) string {
	return filepath.Join(c.Analysis.DataDir, taskUUID)
}
