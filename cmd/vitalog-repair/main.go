// Package main implements the vitalog-repair binary, which recomputes daily
// aggregates from the event log for one date or a range of dates.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vitalog/vitalog/internal/app"
	"github.com/vitalog/vitalog/internal/config"
	"github.com/vitalog/vitalog/internal/logging"
	"github.com/vitalog/vitalog/internal/metrics"
	"github.com/vitalog/vitalog/internal/repair"
	"github.com/vitalog/vitalog/internal/report"
	"github.com/vitalog/vitalog/pkg/types"
)

// maxRangeDays bounds a single invocation.
const maxRangeDays = 366

type options struct {
	configFile string
	dataDir    string
	date       string
	from       string
	to         string
	export     bool
	diff       bool
	list       bool
}

func main() {
	var opts options
	flag.StringVar(&opts.configFile, "config", "", "Path to configuration file (YAML or JSON)")
	flag.StringVar(&opts.dataDir, "data-dir", "", "Base directory for the SQLite database and local exports")
	flag.StringVar(&opts.date, "date", "", "Date to repair (YYYY-MM-DD, default yesterday UTC)")
	flag.StringVar(&opts.from, "from", "", "First date of a range to repair")
	flag.StringVar(&opts.to, "to", "", "Last date of a range to repair")
	flag.BoolVar(&opts.export, "export", false, "Write a daily snapshot for each repaired date")
	flag.BoolVar(&opts.diff, "diff", false, "Report drift between stored aggregates and the event log without writing")
	flag.BoolVar(&opts.list, "list", false, "List the dates that have an exported snapshot and exit")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := run(ctx, opts, os.Stdout, time.Now); err != nil {
		log.Fatalf("vitalog-repair: %v", err)
	}
}

func run(ctx context.Context, opts options, out io.Writer, now func() time.Time) error {
	if opts.list {
		return listSnapshots(ctx, opts, out)
	}

	from, to, err := resolveDates(opts, now)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	logger := logging.New(cfg.Log, os.Stderr)

	st, err := app.OpenStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	m := metrics.New()
	agg := repair.NewAggregator(st, st, repair.WithLogger(logger), repair.WithMetrics(m))
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")

	if opts.diff {
		for d := from; !d.After(to); d = d.AddDays(1) {
			drift, err := agg.Diff(ctx, d)
			if err != nil {
				return err
			}
			if err := enc.Encode(map[string]interface{}{"date": d, "drift": drift}); err != nil {
				return err
			}
		}
		return nil
	}

	var exporter *report.Exporter
	if opts.export {
		objects, err := app.OpenExportStorage(ctx, cfg)
		if err != nil {
			return fmt.Errorf("failed to open export storage: %w", err)
		}
		exporter = report.NewExporter(report.NewService(st), objects,
			report.WithExportLogger(logger), report.WithExportMetrics(m))
	}

	results, err := agg.RepairRange(ctx, from, to)
	for _, res := range results {
		summary := map[string]interface{}{
			"date":    res.Date,
			"users":   res.Users,
			"events":  res.Events,
			"skipped": res.Skipped,
		}
		if exporter != nil {
			key, exportErr := exporter.ExportDaily(ctx, res.Date)
			if exportErr != nil {
				return exportErr
			}
			summary["snapshot"] = key
		}
		if encErr := enc.Encode(summary); encErr != nil {
			return encErr
		}
	}
	return err
}

// listSnapshots prints the dates present in export storage.
func listSnapshots(ctx context.Context, opts options, out io.Writer) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	objects, err := app.OpenExportStorage(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open export storage: %w", err)
	}
	dates, err := report.ListDaily(ctx, objects)
	if err != nil {
		return err
	}
	return json.NewEncoder(out).Encode(map[string]interface{}{"snapshots": dates})
}

// resolveDates returns the inclusive range to process. --date and
// --from/--to are exclusive; with neither, yesterday UTC is used.
func resolveDates(opts options, now func() time.Time) (types.Date, types.Date, error) {
	if opts.date != "" && (opts.from != "" || opts.to != "") {
		return types.Date{}, types.Date{}, fmt.Errorf("--date cannot be combined with --from/--to")
	}
	if opts.date != "" {
		d, err := types.ParseDate(opts.date)
		if err != nil {
			return types.Date{}, types.Date{}, err
		}
		return d, d, nil
	}
	if opts.from == "" && opts.to == "" {
		d := types.DateOf(now()).AddDays(-1)
		return d, d, nil
	}
	if opts.from == "" || opts.to == "" {
		return types.Date{}, types.Date{}, fmt.Errorf("--from and --to must be given together")
	}
	from, err := types.ParseDate(opts.from)
	if err != nil {
		return types.Date{}, types.Date{}, err
	}
	to, err := types.ParseDate(opts.to)
	if err != nil {
		return types.Date{}, types.Date{}, err
	}
	if to.Before(from) {
		return types.Date{}, types.Date{}, fmt.Errorf("--to %s is before --from %s", to, from)
	}
	if to.Start().Sub(from.Start()) >= maxRangeDays*24*time.Hour {
		return types.Date{}, types.Date{}, fmt.Errorf("range exceeds %d days", maxRangeDays)
	}
	return from, to, nil
}

func loadConfig(opts options) (*config.Config, error) {
	var cfg *config.Config
	if opts.configFile != "" {
		var err error
		cfg, err = config.LoadFromFile(opts.configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	} else {
		cfg = config.DefaultConfig()
	}
	config.LoadFromEnv(cfg)
	if opts.dataDir != "" {
		cfg.DataDir = opts.dataDir
	}

	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}
	return cfg, nil
}
