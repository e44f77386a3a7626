// Package main implements the unified vitalog binary.
// It runs the ingest, query and repair services together or one at a time
// based on the --mode flag.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/felixgeelhaar/bolt/v3"

	"github.com/vitalog/vitalog/internal/app"
	"github.com/vitalog/vitalog/internal/config"
	"github.com/vitalog/vitalog/internal/logging"
)

var (
	version = "dev"
	commit  = "unknown"
)

type flags struct {
	configFile string
	dataDir    string
	mode       string
	httpIngest string
	httpQuery  string
	httpRepair string
	grpcAddr   string
	logLevel   string
}

func main() {
	var (
		f           flags
		showVersion bool
		showHelp    bool
	)

	flag.StringVar(&f.configFile, "config", "", "Path to configuration file (YAML or JSON)")
	flag.StringVar(&f.dataDir, "data-dir", "", "Base directory for the SQLite database and local exports")
	flag.StringVar(&f.mode, "mode", "", "Service mode: all, ingest, query, repair")
	flag.StringVar(&f.httpIngest, "http-ingest", "", "HTTP address for ingest service")
	flag.StringVar(&f.httpQuery, "http-query", "", "HTTP address for query service")
	flag.StringVar(&f.httpRepair, "http-repair", "", "HTTP address for repair service")
	flag.StringVar(&f.grpcAddr, "grpc-addr", "", "gRPC server address")
	flag.StringVar(&f.logLevel, "log-level", "", "Log level: trace, debug, info, warn, error")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showHelp, "help", false, "Show help message")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "vitalog - personal metric events and daily aggregates\n\n")
		fmt.Fprintf(os.Stderr, "Usage: vitalog [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  vitalog --data-dir /var/lib/vitalog\n")
		fmt.Fprintf(os.Stderr, "  vitalog --mode ingest --config /etc/vitalog/config.yaml\n")
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  VITALOG_MODE            Service mode (all, ingest, query, repair)\n")
		fmt.Fprintf(os.Stderr, "  VITALOG_DATA_DIR        Base directory for data files\n")
		fmt.Fprintf(os.Stderr, "  VITALOG_STORE_DRIVER    Store driver (sqlite, postgres)\n")
		fmt.Fprintf(os.Stderr, "  VITALOG_POSTGRES_HOST   Postgres host when the driver is postgres\n")
		fmt.Fprintf(os.Stderr, "  VITALOG_KAFKA_BROKERS   Comma separated Kafka brokers\n")
	}

	flag.Parse()

	if showHelp {
		flag.Usage()
		os.Exit(0)
	}
	if showVersion {
		fmt.Printf("vitalog version %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	cfg, err := loadConfig(f)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := logging.New(cfg.Log, os.Stdout)
	printBanner(logger, cfg)

	application, err := app.New(cfg, app.WithLogger(logger))
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := application.Start(ctx); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}

	<-ctx.Done()
	logging.With(logger.Info(), logging.Component("main")).Msg("received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := application.Stop(shutdownCtx); err != nil {
		logging.With(logger.Error(), logging.Component("main"), logging.Error(err)).Msg("shutdown error")
		os.Exit(1)
	}
}

// loadConfig layers the configuration file, then environment, then flags.
func loadConfig(f flags) (*config.Config, error) {
	var cfg *config.Config
	if f.configFile != "" {
		var err error
		cfg, err = config.LoadFromFile(f.configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	} else {
		cfg = config.DefaultConfig()
	}

	config.LoadFromEnv(cfg)

	if f.dataDir != "" {
		cfg.DataDir = f.dataDir
	}
	if f.mode != "" {
		cfg.Mode = config.Mode(f.mode)
	}
	if f.httpIngest != "" {
		cfg.HTTP.IngestAddr = f.httpIngest
	}
	if f.httpQuery != "" {
		cfg.HTTP.QueryAddr = f.httpQuery
	}
	if f.httpRepair != "" {
		cfg.HTTP.RepairAddr = f.httpRepair
	}
	if f.grpcAddr != "" {
		cfg.GRPC.Addr = f.grpcAddr
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	return cfg, nil
}

func printBanner(logger *bolt.Logger, cfg *config.Config) {
	e := logging.With(logger.Info(), logging.Component("main"),
		logging.Str("version", version),
		logging.Str("commit", commit),
		logging.Str("mode", string(cfg.Mode)),
		logging.Str("data_dir", cfg.DataDir),
		logging.Str("store", cfg.Store.Driver))
	if cfg.ShouldRunIngest() {
		e = logging.With(e, logging.Str("ingest_addr", cfg.HTTP.IngestAddr))
		if cfg.Kafka.Enabled {
			e = logging.With(e, logging.Str("kafka_topic", cfg.Kafka.Topic))
		}
	}
	if cfg.ShouldRunQuery() {
		e = logging.With(e, logging.Str("query_addr", cfg.HTTP.QueryAddr))
	}
	if cfg.ShouldRunRepair() {
		e = logging.With(e, logging.Str("repair_addr", cfg.HTTP.RepairAddr),
			logging.Str("export", cfg.Export.Type))
	}
	if cfg.GRPC.Enabled {
		e = logging.With(e, logging.Str("grpc_addr", cfg.GRPC.Addr))
	}
	e.Msg("starting vitalog")
}
