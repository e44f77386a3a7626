package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Resolve()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, filepath.Join("./data/vitalog", "vitalog.db"), cfg.Store.SQLitePath)
	assert.Equal(t, filepath.Join("./data/vitalog", "exports"), cfg.Export.Path)
	assert.True(t, cfg.ShouldRunIngest())
	assert.True(t, cfg.ShouldRunQuery())
	assert.True(t, cfg.ShouldRunRepair())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad mode", func(c *Config) { c.Mode = "compact" }},
		{"empty data dir", func(c *Config) { c.DataDir = "" }},
		{"bad driver", func(c *Config) { c.Store.Driver = "mysql" }},
		{"postgres without host", func(c *Config) { c.Store.Driver = DriverPostgres; c.Store.Postgres.Host = "" }},
		{"bad export type", func(c *Config) { c.Export.Type = "gcs" }},
		{"s3 without bucket", func(c *Config) { c.Export.Type = "s3" }},
		{"zero stripes", func(c *Config) { c.Ingest.LockStripes = 0 }},
		{"run after a day", func(c *Config) { c.Repair.RunAfter = 25 * time.Hour }},
		{"zero lookback", func(c *Config) { c.Repair.Lookback = 0 }},
		{"kafka without brokers", func(c *Config) { c.Kafka.Enabled = true; c.Kafka.Brokers = nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Resolve()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestModes(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mode = ModeRepair
	assert.False(t, cfg.ShouldRunIngest())
	assert.False(t, cfg.ShouldRunQuery())
	assert.True(t, cfg.ShouldRunRepair())
}

func TestLoadFromFile_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vitalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode: query
data_dir: /var/lib/vitalog
store:
  driver: postgres
  postgres:
    host: db.internal
    database: metrics
repair:
  enabled: true
  check_interval: 1m
  run_after: 2h
  lookback: 3
export:
  type: s3
  s3:
    bucket: vitalog-reports
    use_path_style: true
kafka:
  enabled: true
  brokers: [kafka-1:9092, kafka-2:9092]
  topic: metric-events
log:
  level: debug
`), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	cfg.Resolve()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, ModeQuery, cfg.Mode)
	assert.Equal(t, DriverPostgres, cfg.Store.Driver)
	assert.Equal(t, "db.internal", cfg.Store.Postgres.Host)
	assert.Equal(t, 5432, cfg.Store.Postgres.Port, "unset fields keep defaults")
	assert.Equal(t, time.Minute, cfg.Repair.CheckInterval)
	assert.Equal(t, 2*time.Hour, cfg.Repair.RunAfter)
	assert.Equal(t, 3, cfg.Repair.Lookback)
	assert.Equal(t, "vitalog-reports", cfg.Export.S3.Bucket)
	assert.True(t, cfg.Export.S3.UsePathStyle)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "vitalog", cfg.Kafka.GroupID)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromFile_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vitalog.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"mode":"ingest","ingest":{"lock_stripes":64}}`), 0644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, ModeIngest, cfg.Mode)
	assert.Equal(t, 64, cfg.Ingest.LockStripes)
}

func TestLoadFromFile_Errors(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "vitalog.toml")
	require.NoError(t, os.WriteFile(path, []byte("mode = 'all'"), 0644))
	_, err = LoadFromFile(path)
	assert.Error(t, err)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("VITALOG_MODE", "repair")
	t.Setenv("VITALOG_STORE_DRIVER", "postgres")
	t.Setenv("VITALOG_POSTGRES_PORT", "6543")
	t.Setenv("VITALOG_REPAIR_RUN_AFTER", "45m")
	t.Setenv("VITALOG_REPAIR_LOOKBACK", "2")
	t.Setenv("VITALOG_KAFKA_BROKERS", "a:9092,b:9092")
	t.Setenv("VITALOG_GRPC_ENABLED", "false")
	t.Setenv("VITALOG_INGEST_LOCK_STRIPES", "not-a-number")

	cfg := DefaultConfig()
	LoadFromEnv(cfg)

	assert.Equal(t, ModeRepair, cfg.Mode)
	assert.Equal(t, DriverPostgres, cfg.Store.Driver)
	assert.Equal(t, 6543, cfg.Store.Postgres.Port)
	assert.Equal(t, 45*time.Minute, cfg.Repair.RunAfter)
	assert.Equal(t, 2, cfg.Repair.Lookback)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.False(t, cfg.GRPC.Enabled)
	assert.Equal(t, 256, cfg.Ingest.LockStripes, "unparsable values are ignored")
}

func TestEnsureDirectories(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = filepath.Join(t.TempDir(), "data")
	cfg.Resolve()
	require.NoError(t, cfg.EnsureDirectories())

	for _, dir := range []string{cfg.DataDir, cfg.Export.Path} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}
