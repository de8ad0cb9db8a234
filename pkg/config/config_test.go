package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configFile := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte(content), 0644))
	return configFile
}

func validConfig() *Config {
	return &Config{
		Analysis: AnalysisConfig{
			Profile:        "standard",
			MaxConcurrency: 1,
		},
		Database: DatabaseConfig{
			Type: "postgres",
			Host: "localhost",
		},
		Storage: StorageConfig{
			Type: "local",
		},
		Scheduler: SchedulerConfig{
			WorkerCount: 1,
		},
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	configFile := writeConfig(t, `
storage:
  type: local
`)

	cfg, err := Load(configFile)
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	// Check default values
	assert.Equal(t, "1.0.0", cfg.Analysis.Version)
	assert.Equal(t, "./data", cfg.Analysis.DataDir)
	assert.Equal(t, "standard", cfg.Analysis.Profile)
	assert.Equal(t, 4, cfg.Analysis.MaxConcurrency)
	assert.Equal(t, 4096, cfg.Analysis.ClassifyCacheSize)
	assert.Equal(t, "sqlite", cfg.Database.Type)
	assert.Equal(t, "./data/memdump.db", cfg.Database.Database)
	assert.Equal(t, 2, cfg.Scheduler.PollInterval)
	assert.Equal(t, 2*time.Second, cfg.Scheduler.PollDuration())
	assert.Equal(t, 10*time.Minute, cfg.Scheduler.TimeoutDuration())
	assert.Equal(t, 5, cfg.Scheduler.WorkerCount)
	assert.Equal(t, 100, cfg.Log.MaxSizeMB)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.True(t, cfg.Log.Compress)
	assert.False(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "memdump-analyzer", cfg.Telemetry.ServiceName)
	assert.Equal(t, "grpc", cfg.Telemetry.Protocol)
	assert.Equal(t, 1.0, cfg.Telemetry.SampleRatio)
}

func TestLoad_CustomValues(t *testing.T) {
	configFile := writeConfig(t, `
analysis:
  version: "2.0.0"
  data_dir: "/tmp/data"
  profile: detailed
  max_concurrency: 10
  classify_cache_size: 128
  category_file: /etc/memdump/categories.yaml
database:
  type: postgres
  host: db.example.com
  port: 5432
  database: memdump_analysis
  user: admin
  password: secret
storage:
  type: local
  local_path: /tmp/storage
scheduler:
  poll_interval: 5
  worker_count: 8
log:
  level: debug
  output_path: /var/log/memdump/analyzer.log
  max_backups: 2
telemetry:
  enabled: true
  endpoint: http://otel-collector:4318
  protocol: http
  sampler: traceidratio
  sample_ratio: 0.25
  headers:
    authorization: Bearer abc
`)

	cfg, err := Load(configFile)
	require.NoError(t, err)

	assert.Equal(t, "2.0.0", cfg.Analysis.Version)
	assert.Equal(t, "/tmp/data", cfg.Analysis.DataDir)
	assert.Equal(t, "detailed", cfg.Analysis.Profile)
	assert.Equal(t, 10, cfg.Analysis.MaxConcurrency)
	assert.Equal(t, 128, cfg.Analysis.ClassifyCacheSize)
	assert.Equal(t, "/etc/memdump/categories.yaml", cfg.Analysis.CategoryFile)
	assert.Equal(t, "db.example.com", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "memdump_analysis", cfg.Database.Database)
	assert.Equal(t, 8, cfg.Scheduler.WorkerCount)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 2, cfg.Log.MaxBackups)
	assert.True(t, cfg.Telemetry.Enabled)
	assert.Equal(t, "http", cfg.Telemetry.Protocol)
	assert.Equal(t, 0.25, cfg.Telemetry.SampleRatio)
	assert.Equal(t, map[string]string{"authorization": "Bearer abc"}, cfg.Telemetry.Headers)
}

func TestLoad_EnvironmentOverride(t *testing.T) {
	t.Setenv("MEMDUMP_DATABASE_HOST", "env.example.com")
	t.Setenv("MEMDUMP_ANALYSIS_PROFILE", "quick")

	configFile := writeConfig(t, `
database:
  type: mysql
  host: file.example.com
`)

	cfg, err := Load(configFile)
	require.NoError(t, err)
	assert.Equal(t, "env.example.com", cfg.Database.Host)
	assert.Equal(t, "quick", cfg.Analysis.Profile)
}

func TestLoad_InvalidDatabaseType(t *testing.T) {
	configFile := writeConfig(t, `
database:
  type: oracle
  host: localhost
`)

	_, err := Load(configFile)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database type")
}

func TestLoad_InvalidProfile(t *testing.T) {
	configFile := writeConfig(t, `
analysis:
  profile: exhaustive
`)

	_, err := Load(configFile)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported analysis profile")
}

func TestLoad_MalformedFile(t *testing.T) {
	configFile := writeConfig(t, "database: [unterminated\n")
	_, err := Load(configFile)
	assert.Error(t, err)
}

func TestLoad_COSWithCredentials(t *testing.T) {
	configFile := writeConfig(t, `
storage:
  type: cos
  bucket: test-bucket
  region: ap-guangzhou
  secret_id: test-id
  secret_key: test-key
`)

	cfg, err := Load(configFile)
	require.NoError(t, err)
	assert.Equal(t, "cos", cfg.Storage.Type)
	assert.Equal(t, "test-bucket", cfg.Storage.Bucket)
	assert.Equal(t, "https", cfg.Storage.Scheme)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "empty host", mutate: func(c *Config) { c.Database.Host = "" }, wantErr: "database host is required"},
		{name: "sqlite without path", mutate: func(c *Config) { c.Database.Type = "sqlite" }, wantErr: "sqlite database path is required"},
		{name: "sqlite", mutate: func(c *Config) { c.Database = DatabaseConfig{Type: "sqlite", Database: ":memory:"} }},
		{name: "worker count", mutate: func(c *Config) { c.Scheduler.WorkerCount = 0 }, wantErr: "worker count must be at least 1"},
		{name: "priority slots", mutate: func(c *Config) { c.Scheduler.PrioritySlots = 2 }, wantErr: "priority slots"},
		{name: "concurrency", mutate: func(c *Config) { c.Analysis.MaxConcurrency = 0 }, wantErr: "max concurrency"},
		{name: "profile", mutate: func(c *Config) { c.Analysis.Profile = "" }, wantErr: "unsupported analysis profile"},
		{name: "telemetry protocol", mutate: func(c *Config) { c.Telemetry.Protocol = "zipkin" }, wantErr: "unsupported telemetry protocol"},
		{name: "sample ratio", mutate: func(c *Config) { c.Telemetry.SampleRatio = 1.5 }, wantErr: "sample ratio"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestValidate_ReportsEveryProblem(t *testing.T) {
	cfg := validConfig()
	cfg.Database.Type = "oracle"
	cfg.Scheduler.WorkerCount = 0
	cfg.Telemetry.SampleRatio = -1

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database type: oracle")
	assert.Contains(t, err.Error(), "worker count must be at least 1")
	assert.Contains(t, err.Error(), "telemetry sample ratio")
	assert.NotContains(t, err.Error(), "priority slots")
}

func TestGetTaskDir(t *testing.T) {
	cfg := &Config{
		Analysis: AnalysisConfig{
			DataDir: "/tmp/data",
		},
	}

	taskDir := cfg.GetTaskDir("task-uuid-123")
	assert.Equal(t, "/tmp/data/task-uuid-123", taskDir)
}

func TestEnsureDataDir(t *testing.T) {
	dir := t.TempDir()
	dataDir := filepath.Join(dir, "analysis", "data")

	cfg := &Config{
		Analysis: AnalysisConfig{
			DataDir: dataDir,
		},
	}

	err := cfg.EnsureDataDir()
	require.NoError(t, err)

	_, err = os.Stat(dataDir)
	assert.NoError(t, err)
}

func TestLoad_FileNotFound(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	require.NoError(t, err)
	assert.NotNil(t, cfg)
	assert.Equal(t, "sqlite", cfg.Database.Type)
}

func TestLoadFromReader(t *testing.T) {
	content := []byte(`
database:
  type: mysql
  host: mysql.local
storage:
  type: local
`)
	cfg, err := LoadFromReader("yaml", content)
	require.NoError(t, err)
	assert.Equal(t, "mysql", cfg.Database.Type)
	assert.Equal(t, "mysql.local", cfg.Database.Host)
}
