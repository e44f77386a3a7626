package repair

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/felixgeelhaar/bolt/v3"

	"github.com/vitalog/vitalog/internal/logging"
	"github.com/vitalog/vitalog/pkg/types"
)

// DaemonConfig holds configuration for the scheduled repair loop.
type DaemonConfig struct {
	// CheckInterval is how often the daemon wakes to see whether a run is due.
	CheckInterval time.Duration `json:"check_interval" yaml:"check_interval"`

	// RunAfter is the offset past UTC midnight after which yesterday is repaired.
	RunAfter time.Duration `json:"run_after" yaml:"run_after"`

	// Lookback is how many days before today are repaired on each daily run.
	Lookback int `json:"lookback" yaml:"lookback"`
}

// DefaultDaemonConfig repairs yesterday shortly after midnight UTC.
func DefaultDaemonConfig() DaemonConfig {
	return DaemonConfig{
		CheckInterval: 5 * time.Minute,
		RunAfter:      30 * time.Minute,
		Lookback:      1,
	}
}

// Exporter publishes a date's aggregates after it has been repaired.
type Exporter interface {
	ExportDaily(ctx context.Context, date types.Date) (string, error)
}

// Daemon runs RepairDay for yesterday once per UTC day.
type Daemon struct {
	config   DaemonConfig
	agg      *Aggregator
	exporter Exporter
	now      func() time.Time
	logger   *bolt.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	lastRun types.Date
}

// DaemonOption configures a Daemon.
type DaemonOption func(*Daemon)

// WithExporter exports each repaired date.
func WithExporter(e Exporter) DaemonOption {
	return func(d *Daemon) { d.exporter = e }
}

func WithDaemonClock(now func() time.Time) DaemonOption {
	return func(d *Daemon) { d.now = now }
}

func WithDaemonLogger(l *bolt.Logger) DaemonOption {
	return func(d *Daemon) { d.logger = l }
}

// NewDaemon creates a repair daemon around agg.
func NewDaemon(config DaemonConfig, agg *Aggregator, opts ...DaemonOption) *Daemon {
	if config.CheckInterval <= 0 {
		config.CheckInterval = DefaultDaemonConfig().CheckInterval
	}
	if config.Lookback <= 0 {
		config.Lookback = 1
	}
	d := &Daemon{config: config, agg: agg, now: time.Now, logger: logging.Nop()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start begins the repair loop. It runs until the context is cancelled or Stop is called.
func (d *Daemon) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("repair: daemon is already running")
	}

	ctx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.running = true
	d.done = make(chan struct{})
	d.mu.Unlock()

	go d.run(ctx)
	return nil
}

// Stop stops the loop and waits for an in-progress run to finish.
func (d *Daemon) Stop() error {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return nil
	}
	cancel, done := d.cancel, d.done
	d.mu.Unlock()

	cancel()
	<-done

	d.mu.Lock()
	d.running = false
	d.mu.Unlock()
	return nil
}

func (d *Daemon) run(ctx context.Context) {
	defer close(d.done)

	d.RunOnce(ctx)

	ticker := time.NewTicker(d.config.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.RunOnce(ctx)
		}
	}
}

// RunOnce repairs the lookback window if today's run is due and has not
// happened yet. It reports whether a run was attempted.
func (d *Daemon) RunOnce(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}

	now := d.now().UTC()
	today := types.DateOf(now)
	yesterday := today.AddDays(-1)

	d.mu.Lock()
	due := now.Sub(today.Start()) >= d.config.RunAfter && d.lastRun != yesterday
	d.mu.Unlock()
	if !due {
		return false
	}

	results, err := d.agg.RepairRange(ctx, today.AddDays(-d.config.Lookback), yesterday)
	if err != nil {
		// lastRun stays put so the next tick retries.
		logging.With(d.logger.Error(), logging.Component("repair"), logging.Operation("scheduled"),
			logging.Count("completed", len(results)), logging.Error(err)).Msg("scheduled repair failed")
		return true
	}

	for _, res := range results {
		d.export(ctx, res.Date)
	}

	d.mu.Lock()
	d.lastRun = yesterday
	d.mu.Unlock()
	return true
}

// Trigger repairs date immediately, regardless of schedule, and exports it.
func (d *Daemon) Trigger(ctx context.Context, date types.Date) (*Result, error) {
	res, err := d.agg.RepairDay(ctx, date)
	if err != nil {
		return nil, err
	}
	d.export(ctx, date)
	return res, nil
}

// LastRun returns the most recent date repaired by the schedule.
func (d *Daemon) LastRun() types.Date {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastRun
}

// export publishes date's snapshot. The exporter records the outcome in
// its own logs and metrics; a failure does not fail the repair.
func (d *Daemon) export(ctx context.Context, date types.Date) {
	if d.exporter == nil {
		return
	}
	_, _ = d.exporter.ExportDaily(ctx, date)
}
