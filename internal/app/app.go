// Package app wires the vitalog services together and manages their lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/felixgeelhaar/bolt/v3"
	"google.golang.org/grpc"

	grpcapi "github.com/vitalog/vitalog/internal/api/grpc"
	httpapi "github.com/vitalog/vitalog/internal/api/http"
	"github.com/vitalog/vitalog/internal/config"
	"github.com/vitalog/vitalog/internal/consumer"
	"github.com/vitalog/vitalog/internal/ingest"
	"github.com/vitalog/vitalog/internal/keylock"
	"github.com/vitalog/vitalog/internal/logging"
	"github.com/vitalog/vitalog/internal/metrics"
	"github.com/vitalog/vitalog/internal/repair"
	"github.com/vitalog/vitalog/internal/report"
	"github.com/vitalog/vitalog/internal/server"
	"github.com/vitalog/vitalog/internal/store"
)

// App manages all vitalog service lifecycles.
type App struct {
	cfg     *config.Config
	logger  *bolt.Logger
	metrics *metrics.Metrics

	// Shared resources
	store    store.Store
	locks    *keylock.Locker
	shutdown *server.ShutdownManager

	// Services
	ingest     *ingest.Service
	reports    *report.Service
	aggregator *repair.Aggregator
	exporter   *report.Exporter
	daemon     *repair.Daemon
	consumer   *consumer.Consumer

	// Listeners by name: ingest, query, repair, grpc
	addrs map[string]net.Addr

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Option configures an App.
type Option func(*App)

// WithLogger replaces the logger built from the configuration.
func WithLogger(l *bolt.Logger) Option {
	return func(a *App) { a.logger = l }
}

// New creates a new App with the given configuration.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	a := &App{
		cfg:     cfg,
		metrics: metrics.New(),
		addrs:   make(map[string]net.Addr),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.logger == nil {
		a.logger = logging.New(cfg.Log, os.Stdout)
	}
	return a, nil
}

// Start opens the store and starts all services the mode selects.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("app is already running")
	}
	a.running = true
	a.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if err := a.initSharedResources(ctx); err != nil {
		a.abort()
		return fmt.Errorf("failed to initialize shared resources: %w", err)
	}

	steps := []struct {
		name    string
		enabled bool
		start   func(context.Context) error
	}{
		{"ingest", a.cfg.ShouldRunIngest(), a.startIngestService},
		{"query", a.cfg.ShouldRunQuery(), a.startQueryService},
		{"repair", a.cfg.ShouldRunRepair(), a.startRepairService},
		{"grpc", a.cfg.GRPC.Enabled, a.startGRPCService},
	}
	for _, step := range steps {
		if !step.enabled {
			continue
		}
		if err := step.start(ctx); err != nil {
			a.abort()
			return fmt.Errorf("failed to start %s service: %w", step.name, err)
		}
	}

	logging.With(a.logger.Info(), logging.Component("app"), logging.Str("mode", string(a.cfg.Mode)),
		logging.Str("store", a.cfg.Store.Driver)).Msg("vitalog started")
	return nil
}

// initSharedResources opens the store and builds the services. Ingest and
// repair share one Locker so a repair excludes ingest on its date.
func (a *App) initSharedResources(ctx context.Context) error {
	a.shutdown = server.NewShutdownManager(server.DefaultShutdownConfig(), a.logger)

	st, err := OpenStore(ctx, a.cfg)
	if err != nil {
		return err
	}
	a.store = st
	a.shutdown.RegisterCloser("store", st)

	a.locks = keylock.New(a.cfg.Ingest.LockStripes)
	a.ingest = ingest.NewService(st, st,
		ingest.WithLocker(a.locks),
		ingest.WithLogger(a.logger),
		ingest.WithMetrics(a.metrics))
	a.reports = report.NewService(st)
	a.aggregator = repair.NewAggregator(st, st,
		repair.WithLocker(a.locks),
		repair.WithLogger(a.logger),
		repair.WithMetrics(a.metrics))
	return nil
}

func (a *App) serveHTTP(name, addr string, handler http.Handler) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	a.setAddr(name, lis.Addr())

	srv := &http.Server{
		Handler:      handler,
		ReadTimeout:  a.cfg.HTTP.ReadTimeout,
		WriteTimeout: a.cfg.HTTP.WriteTimeout,
		IdleTimeout:  a.cfg.HTTP.IdleTimeout,
	}
	a.shutdown.RegisterCloser(name+" http", server.HTTPServerCloser{Server: srv})

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		logging.With(a.logger.Info(), logging.Component(name), logging.Str("addr", lis.Addr().String())).Msg("http server listening")
		if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.With(a.logger.Error(), logging.Component(name), logging.Error(err)).Msg("http server failed")
		}
	}()
	return nil
}

func (a *App) newRouter(service string) *httpapi.Router {
	mw := httpapi.ChainMiddleware(
		server.ShutdownMiddleware(a.shutdown),
		httpapi.RecoveryMiddleware,
		httpapi.RequestIDMiddleware,
		httpapi.CorrelationIDMiddleware,
		httpapi.ContentTypeMiddleware,
		httpapi.LoggingMiddleware(a.logger),
	)
	return httpapi.NewRouter(service, a.metrics, a.store, mw)
}

// startIngestService serves the ingest endpoints and, when enabled, the
// Kafka consumer.
func (a *App) startIngestService(ctx context.Context) error {
	rt := a.newRouter("vitalog-ingest")
	rt.MountIngest(httpapi.NewIngestHandler(a.ingest))
	if err := a.serveHTTP("ingest", a.cfg.HTTP.IngestAddr, rt); err != nil {
		return err
	}

	if !a.cfg.Kafka.Enabled {
		return nil
	}
	c, err := consumer.New(a.cfg.Kafka, a.ingest, consumer.WithLogger(a.logger), consumer.WithMetrics(a.metrics))
	if err != nil {
		return fmt.Errorf("failed to create kafka consumer: %w", err)
	}
	a.consumer = c
	a.shutdown.RegisterCloser("kafka consumer", c)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logging.With(a.logger.Error(), logging.Component("consumer"), logging.Error(err)).Msg("consumer stopped with error")
		}
	}()
	return nil
}

func (a *App) startQueryService(ctx context.Context) error {
	rt := a.newRouter("vitalog-query")
	rt.MountQuery(httpapi.NewQueryHandler(a.reports, nil))
	return a.serveHTTP("query", a.cfg.HTTP.QueryAddr, rt)
}

// startRepairService serves on-demand repair and runs the daily daemon.
func (a *App) startRepairService(ctx context.Context) error {
	if a.cfg.Repair.Export {
		objects, err := OpenExportStorage(ctx, a.cfg)
		if err != nil {
			return fmt.Errorf("failed to open export storage: %w", err)
		}
		a.exporter = report.NewExporter(a.reports, objects,
			report.WithExportLogger(a.logger), report.WithExportMetrics(a.metrics))
	}

	rt := a.newRouter("vitalog-repair")
	rt.MountRepair(httpapi.NewRepairHandler(a.aggregator, nil))
	if err := a.serveHTTP("repair", a.cfg.HTTP.RepairAddr, rt); err != nil {
		return err
	}

	if !a.cfg.Repair.Enabled {
		return nil
	}
	opts := []repair.DaemonOption{repair.WithDaemonLogger(a.logger)}
	if a.exporter != nil {
		opts = append(opts, repair.WithExporter(a.exporter))
	}
	a.daemon = repair.NewDaemon(a.cfg.Repair.DaemonConfig, a.aggregator, opts...)
	if err := a.daemon.Start(ctx); err != nil {
		return err
	}
	a.shutdown.RegisterCloser("repair daemon", server.CloserFunc(a.daemon.Stop))
	return nil
}

// startGRPCService serves MetricsService with only the methods of the
// services this mode runs.
func (a *App) startGRPCService(ctx context.Context) error {
	var (
		submitter grpcapi.EventSubmitter
		reporter  grpcapi.Reporter
		repairer  grpcapi.DayRepairer
	)
	if a.cfg.ShouldRunIngest() {
		submitter = a.ingest
	}
	if a.cfg.ShouldRunQuery() {
		reporter = a.reports
	}
	if a.cfg.ShouldRunRepair() {
		repairer = a.aggregator
	}

	lis, err := net.Listen("tcp", a.cfg.GRPC.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", a.cfg.GRPC.Addr, err)
	}
	a.setAddr("grpc", lis.Addr())

	srv, hs := grpcapi.NewGRPCServer(grpcapi.NewServer(submitter, reporter, repairer), a.logger)
	a.shutdown.RegisterCloser("grpc", server.CloserFunc(func() error {
		hs.Shutdown()
		gracefulStop(srv, 10*time.Second)
		return nil
	}))

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		logging.With(a.logger.Info(), logging.Component("grpc"), logging.Str("addr", lis.Addr().String())).Msg("grpc server listening")
		if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			logging.With(a.logger.Error(), logging.Component("grpc"), logging.Error(err)).Msg("grpc server failed")
		}
	}()
	return nil
}

// gracefulStop falls back to a hard stop when in-flight calls outlast timeout.
func gracefulStop(srv *grpc.Server, timeout time.Duration) {
	done := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		srv.Stop()
	}
}

// Addr returns the bound address of a named listener (ingest, query,
// repair or grpc), or nil if it is not running.
func (a *App) Addr(name string) net.Addr {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.addrs[name]
}

func (a *App) setAddr(name string, addr net.Addr) {
	a.mu.Lock()
	a.addrs[name] = addr
	a.mu.Unlock()
}

// Stop gracefully stops all services and releases resources.
func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return nil
	}
	a.running = false
	a.mu.Unlock()

	logging.With(a.logger.Info(), logging.Component("app")).Msg("initiating graceful shutdown")

	if a.cancel != nil {
		a.cancel()
	}
	err := a.shutdown.Shutdown(ctx, "stop requested")

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		logging.With(a.logger.Warn(), logging.Component("app")).Msg("shutdown timeout, some goroutines may not have finished")
	}

	logging.With(a.logger.Info(), logging.Component("app")).Msg("vitalog stopped")
	return err
}

// abort releases whatever Start managed to open before failing.
func (a *App) abort() {
	if a.cancel != nil {
		a.cancel()
	}
	if a.shutdown != nil {
		a.shutdown.Shutdown(context.Background(), "start failed")
	}
	a.wg.Wait()

	a.mu.Lock()
	a.running = false
	a.mu.Unlock()
}
