package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/vitalog/vitalog/internal/config"
)

func TestLoadConfig_FlagsOverrideEnvAndFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vitalog.yaml")
	if err := os.WriteFile(path, []byte("mode: query\nhttp:\n  query_addr: \":7000\"\n"), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	t.Setenv("VITALOG_HTTP_QUERY_ADDR", ":7001")

	cfg, err := loadConfig(flags{configFile: path})
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if cfg.Mode != config.ModeQuery {
		t.Errorf("mode = %s, want query from file", cfg.Mode)
	}
	if cfg.HTTP.QueryAddr != ":7001" {
		t.Errorf("query addr = %s, want env value :7001", cfg.HTTP.QueryAddr)
	}

	cfg, err = loadConfig(flags{configFile: path, httpQuery: ":7002", mode: "all", logLevel: "debug"})
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if cfg.Mode != config.ModeAll {
		t.Errorf("mode = %s, want all from flag", cfg.Mode)
	}
	if cfg.HTTP.QueryAddr != ":7002" {
		t.Errorf("query addr = %s, want flag value :7002", cfg.HTTP.QueryAddr)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log level = %s, want debug", cfg.Log.Level)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := loadConfig(flags{configFile: filepath.Join(t.TempDir(), "absent.yaml")}); err == nil {
		t.Error("expected error for missing config file")
	}
}
