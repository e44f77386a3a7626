// Package config provides unified configuration for all vitalog services.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vitalog/vitalog/internal/consumer"
	"github.com/vitalog/vitalog/internal/logging"
	"github.com/vitalog/vitalog/internal/repair"
	"github.com/vitalog/vitalog/internal/storage"
	"github.com/vitalog/vitalog/internal/store/postgres"
)

// Mode represents the service mode to run.
type Mode string

const (
	ModeAll    Mode = "all"
	ModeIngest Mode = "ingest"
	ModeQuery  Mode = "query"
	ModeRepair Mode = "repair"
)

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds the unified configuration for all vitalog services.
type Config struct {
	// Mode specifies which services to run: all, ingest, query, repair
	Mode Mode `json:"mode" yaml:"mode"`

	// DataDir is the base directory for local files
	DataDir string `json:"data_dir" yaml:"data_dir"`

	HTTP   HTTPConfig      `json:"http" yaml:"http"`
	GRPC   GRPCConfig      `json:"grpc" yaml:"grpc"`
	Store  StoreConfig     `json:"store" yaml:"store"`
	Ingest IngestConfig    `json:"ingest" yaml:"ingest"`
	Repair RepairConfig    `json:"repair" yaml:"repair"`
	Export ExportConfig    `json:"export" yaml:"export"`
	Kafka  consumer.Config `json:"kafka" yaml:"kafka"`
	Log    logging.Config  `json:"log" yaml:"log"`
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	IngestAddr string `json:"ingest_addr" yaml:"ingest_addr"`
	QueryAddr  string `json:"query_addr" yaml:"query_addr"`
	RepairAddr string `json:"repair_addr" yaml:"repair_addr"`

	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout" yaml:"idle_timeout"`
}

// GRPCConfig holds gRPC server configuration.
type GRPCConfig struct {
	Addr    string `json:"addr" yaml:"addr"`
	Enabled bool   `json:"enabled" yaml:"enabled"`
}

// StoreConfig selects and configures the event and aggregate backend.
type StoreConfig struct {
	// Driver is sqlite or postgres
	Driver string `json:"driver" yaml:"driver"`

	// SQLitePath is the database file (defaults to DataDir/vitalog.db)
	SQLitePath string `json:"sqlite_path" yaml:"sqlite_path"`

	Postgres postgres.Config `json:"postgres" yaml:"postgres"`
}

// IngestConfig holds ingest service configuration.
type IngestConfig struct {
	// LockStripes is the number of key and date lock stripes
	LockStripes int `json:"lock_stripes" yaml:"lock_stripes"`
}

// RepairConfig holds the scheduled repair configuration.
type RepairConfig struct {
	// Enabled runs the repair daemon in the repair server
	Enabled bool `json:"enabled" yaml:"enabled"`

	repair.DaemonConfig `yaml:",inline"`

	// Export writes a daily snapshot after each scheduled repair
	Export bool `json:"export" yaml:"export"`
}

// ExportConfig holds snapshot storage configuration.
type ExportConfig struct {
	// Type is the storage type: local, s3
	Type string `json:"type" yaml:"type"`

	// Path is the local storage path (for local type)
	Path string `json:"path" yaml:"path"`

	S3 storage.S3Config `json:"s3" yaml:"s3"`
}

// DefaultConfig returns the default configuration for local development.
func DefaultConfig() *Config {
	return &Config{
		Mode:    ModeAll,
		DataDir: "./data/vitalog",
		HTTP: HTTPConfig{
			IngestAddr:   ":8080",
			QueryAddr:    ":8081",
			RepairAddr:   ":8082",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		GRPC: GRPCConfig{
			Addr:    ":9090",
			Enabled: true,
		},
		Store: StoreConfig{
			Driver:   DriverSQLite,
			Postgres: postgres.DefaultConfig(),
		},
		Ingest: IngestConfig{
			LockStripes: 256,
		},
		Repair: RepairConfig{
			Enabled:      true,
			DaemonConfig: repair.DefaultDaemonConfig(),
			Export:       true,
		},
		Export: ExportConfig{
			Type: "local",
			S3:   storage.DefaultS3Config(),
		},
		Kafka: consumer.DefaultConfig(),
		Log:   logging.DefaultConfig(),
	}
}

// Resolve resolves relative paths and sets defaults based on DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data/vitalog"
	}
	if c.Store.SQLitePath == "" {
		c.Store.SQLitePath = filepath.Join(c.DataDir, "vitalog.db")
	}
	if c.Export.Path == "" {
		c.Export.Path = filepath.Join(c.DataDir, "exports")
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeAll, ModeIngest, ModeQuery, ModeRepair:
	default:
		return fmt.Errorf("invalid mode: %s (must be all, ingest, query, or repair)", c.Mode)
	}

	if c.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}

	switch c.Store.Driver {
	case DriverSQLite:
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("store.sqlite_path is required when driver is sqlite")
		}
	case DriverPostgres:
		if c.Store.Postgres.Host == "" || c.Store.Postgres.Database == "" {
			return fmt.Errorf("store.postgres.host and store.postgres.database are required when driver is postgres")
		}
	default:
		return fmt.Errorf("invalid store driver: %s (must be sqlite or postgres)", c.Store.Driver)
	}

	if c.Export.Type != "local" && c.Export.Type != "s3" {
		return fmt.Errorf("invalid export type: %s (must be local or s3)", c.Export.Type)
	}
	if c.Export.Type == "s3" && c.Export.S3.Bucket == "" {
		return fmt.Errorf("export.s3.bucket is required when export type is s3")
	}

	if c.Ingest.LockStripes < 1 {
		return fmt.Errorf("ingest.lock_stripes must be positive, got %d", c.Ingest.LockStripes)
	}

	if c.Repair.Enabled {
		if c.Repair.CheckInterval <= 0 {
			return fmt.Errorf("repair.check_interval must be positive")
		}
		if c.Repair.RunAfter < 0 || c.Repair.RunAfter >= 24*time.Hour {
			return fmt.Errorf("repair.run_after must be within a day, got %s", c.Repair.RunAfter)
		}
		if c.Repair.Lookback < 1 {
			return fmt.Errorf("repair.lookback must be at least 1, got %d", c.Repair.Lookback)
		}
	}

	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 || c.Kafka.Topic == "" || c.Kafka.GroupID == "" {
			return fmt.Errorf("kafka.brokers, kafka.topic and kafka.group_id are required when kafka is enabled")
		}
	}

	return nil
}

// ShouldRunIngest returns true if the ingest service should run.
func (c *Config) ShouldRunIngest() bool {
	return c.Mode == ModeAll || c.Mode == ModeIngest
}

// ShouldRunQuery returns true if the query service should run.
func (c *Config) ShouldRunQuery() bool {
	return c.Mode == ModeAll || c.Mode == ModeQuery
}

// ShouldRunRepair returns true if the repair service should run.
func (c *Config) ShouldRunRepair() bool {
	return c.Mode == ModeAll || c.Mode == ModeRepair
}

// LoadFromFile loads configuration from a YAML or JSON file.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the VITALOG_ prefix.
func LoadFromEnv(cfg *Config) {
	setString(&cfg.DataDir, "VITALOG_DATA_DIR")
	if v := os.Getenv("VITALOG_MODE"); v != "" {
		cfg.Mode = Mode(v)
	}

	setString(&cfg.HTTP.IngestAddr, "VITALOG_HTTP_INGEST_ADDR")
	setString(&cfg.HTTP.QueryAddr, "VITALOG_HTTP_QUERY_ADDR")
	setString(&cfg.HTTP.RepairAddr, "VITALOG_HTTP_REPAIR_ADDR")

	setString(&cfg.GRPC.Addr, "VITALOG_GRPC_ADDR")
	setBool(&cfg.GRPC.Enabled, "VITALOG_GRPC_ENABLED")

	setString(&cfg.Store.Driver, "VITALOG_STORE_DRIVER")
	setString(&cfg.Store.SQLitePath, "VITALOG_SQLITE_PATH")
	setString(&cfg.Store.Postgres.Host, "VITALOG_POSTGRES_HOST")
	setInt(&cfg.Store.Postgres.Port, "VITALOG_POSTGRES_PORT")
	setString(&cfg.Store.Postgres.Database, "VITALOG_POSTGRES_DATABASE")
	setString(&cfg.Store.Postgres.User, "VITALOG_POSTGRES_USER")
	setString(&cfg.Store.Postgres.Password, "VITALOG_POSTGRES_PASSWORD")
	setString(&cfg.Store.Postgres.SSLMode, "VITALOG_POSTGRES_SSLMODE")

	setInt(&cfg.Ingest.LockStripes, "VITALOG_INGEST_LOCK_STRIPES")

	setBool(&cfg.Repair.Enabled, "VITALOG_REPAIR_ENABLED")
	setDuration(&cfg.Repair.CheckInterval, "VITALOG_REPAIR_CHECK_INTERVAL")
	setDuration(&cfg.Repair.RunAfter, "VITALOG_REPAIR_RUN_AFTER")
	setInt(&cfg.Repair.Lookback, "VITALOG_REPAIR_LOOKBACK")
	setBool(&cfg.Repair.Export, "VITALOG_REPAIR_EXPORT")

	setString(&cfg.Export.Type, "VITALOG_EXPORT_TYPE")
	setString(&cfg.Export.Path, "VITALOG_EXPORT_PATH")
	setString(&cfg.Export.S3.Bucket, "VITALOG_S3_BUCKET")
	setString(&cfg.Export.S3.Prefix, "VITALOG_S3_PREFIX")
	setString(&cfg.Export.S3.Region, "VITALOG_S3_REGION")
	setString(&cfg.Export.S3.Endpoint, "VITALOG_S3_ENDPOINT")
	setBool(&cfg.Export.S3.UsePathStyle, "VITALOG_S3_USE_PATH_STYLE")

	setBool(&cfg.Kafka.Enabled, "VITALOG_KAFKA_ENABLED")
	if v := os.Getenv("VITALOG_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	setString(&cfg.Kafka.Topic, "VITALOG_KAFKA_TOPIC")
	setString(&cfg.Kafka.GroupID, "VITALOG_KAFKA_GROUP_ID")

	setString(&cfg.Log.Level, "VITALOG_LOG_LEVEL")
	setString(&cfg.Log.Format, "VITALOG_LOG_FORMAT")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v == "true" || v == "1"
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

// EnsureDirectories creates all required local directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.DataDir}
	if c.Store.Driver == DriverSQLite {
		dirs = append(dirs, filepath.Dir(c.Store.SQLitePath))
	}
	if c.Export.Type == "local" {
		dirs = append(dirs, c.Export.Path)
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
