// Package server coordinates graceful shutdown of the vitalog servers.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/felixgeelhaar/bolt/v3"

	"github.com/vitalog/vitalog/internal/logging"
)

// ShutdownManager tracks in-flight requests and closes registered
// resources in reverse registration order once shutdown begins.
type ShutdownManager struct {
	shutdownTimeout time.Duration
	drainTimeout    time.Duration
	logger          *bolt.Logger

	shutdownCh     chan struct{}
	shutdownOnce   sync.Once
	inFlight       int64
	isShuttingDown int32

	closers   []namedCloser
	closersMu sync.Mutex
}

type namedCloser struct {
	name   string
	closer io.Closer
}

// ShutdownConfig holds configuration for the shutdown manager.
type ShutdownConfig struct {
	// ShutdownTimeout bounds the whole shutdown. Default: 30 seconds
	ShutdownTimeout time.Duration

	// DrainTimeout bounds the wait for in-flight requests. Default: 15 seconds
	DrainTimeout time.Duration
}

// DefaultShutdownConfig returns the default shutdown configuration.
func DefaultShutdownConfig() ShutdownConfig {
	return ShutdownConfig{
		ShutdownTimeout: 30 * time.Second,
		DrainTimeout:    15 * time.Second,
	}
}

// NewShutdownManager creates a shutdown manager. A nil logger discards output.
func NewShutdownManager(config ShutdownConfig, logger *bolt.Logger) *ShutdownManager {
	def := DefaultShutdownConfig()
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = def.ShutdownTimeout
	}
	if config.DrainTimeout <= 0 {
		config.DrainTimeout = def.DrainTimeout
	}
	if logger == nil {
		logger = logging.Nop()
	}

	return &ShutdownManager{
		shutdownTimeout: config.ShutdownTimeout,
		drainTimeout:    config.DrainTimeout,
		logger:          logger,
		shutdownCh:      make(chan struct{}),
	}
}

// RegisterCloser adds a resource to close during shutdown. Closers run
// in reverse order of registration, so register the store before the
// servers that use it.
func (sm *ShutdownManager) RegisterCloser(name string, closer io.Closer) {
	sm.closersMu.Lock()
	defer sm.closersMu.Unlock()
	sm.closers = append(sm.closers, namedCloser{name: name, closer: closer})
}

// Shutdown stops accepting tracked requests, waits for in-flight ones to
// drain, then closes every registered resource. Only the first call has
// any effect; it returns the joined errors of the drain and the closers.
func (sm *ShutdownManager) Shutdown(ctx context.Context, reason string) error {
	var shutdownErr error

	sm.shutdownOnce.Do(func() {
		atomic.StoreInt32(&sm.isShuttingDown, 1)
		close(sm.shutdownCh)
		logging.With(sm.logger.Info(), logging.Component("shutdown"), logging.Str("reason", reason)).Msg("shutdown started")
		start := time.Now()

		shutdownCtx, cancel := context.WithTimeout(ctx, sm.shutdownTimeout)
		defer cancel()

		var errs []error
		if err := sm.drainInFlight(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("drain failed: %w", err))
		}

		sm.closersMu.Lock()
		closers := sm.closers
		sm.closersMu.Unlock()

		for i := len(closers) - 1; i >= 0; i-- {
			c := closers[i]
			if err := c.closer.Close(); err != nil {
				logging.With(sm.logger.Error(), logging.Component("shutdown"), logging.Str("resource", c.name),
					logging.Error(err)).Msg("close failed")
				errs = append(errs, fmt.Errorf("close %s: %w", c.name, err))
			}
		}

		shutdownErr = errors.Join(errs...)
		logging.With(sm.logger.Info(), logging.Component("shutdown"), logging.Duration(time.Since(start))).Msg("shutdown complete")
	})

	return shutdownErr
}

// drainInFlight waits for all in-flight requests to complete.
func (sm *ShutdownManager) drainInFlight(ctx context.Context) error {
	drainCtx, cancel := context.WithTimeout(ctx, sm.drainTimeout)
	defer cancel()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if atomic.LoadInt64(&sm.inFlight) == 0 {
			return nil
		}

		select {
		case <-drainCtx.Done():
			if remaining := atomic.LoadInt64(&sm.inFlight); remaining > 0 {
				return fmt.Errorf("timeout waiting for %d in-flight requests", remaining)
			}
			return nil
		case <-ticker.C:
		}
	}
}

// TrackRequest increments the in-flight counter. It returns false once
// shutdown has begun and the request should be rejected.
func (sm *ShutdownManager) TrackRequest() bool {
	if atomic.LoadInt32(&sm.isShuttingDown) == 1 {
		return false
	}
	atomic.AddInt64(&sm.inFlight, 1)
	return true
}

// UntrackRequest decrements the in-flight counter.
func (sm *ShutdownManager) UntrackRequest() {
	atomic.AddInt64(&sm.inFlight, -1)
}

// IsShuttingDown returns true if shutdown has been initiated.
func (sm *ShutdownManager) IsShuttingDown() bool {
	return atomic.LoadInt32(&sm.isShuttingDown) == 1
}

// InFlightCount returns the current number of in-flight requests.
func (sm *ShutdownManager) InFlightCount() int64 {
	return atomic.LoadInt64(&sm.inFlight)
}

// ShutdownCh returns a channel that is closed when shutdown begins.
func (sm *ShutdownManager) ShutdownCh() <-chan struct{} {
	return sm.shutdownCh
}

// HTTPServerCloser shuts an http.Server down gracefully when closed.
type HTTPServerCloser struct {
	Server  *http.Server
	Timeout time.Duration
}

// Close implements io.Closer.
func (c HTTPServerCloser) Close() error {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return c.Server.Shutdown(ctx)
}

// ShutdownMiddleware tracks in-flight requests and rejects new ones with
// 503 once shutdown has begun.
func ShutdownMiddleware(sm *ShutdownManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !sm.TrackRequest() {
				w.Header().Set("Connection", "close")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusServiceUnavailable)
				io.WriteString(w, `{"error":"shutting down","code":"UNAVAILABLE"}`+"\n")
				return
			}
			defer sm.UntrackRequest()

			next.ServeHTTP(w, r)
		})
	}
}

// CloserFunc is an adapter to allow ordinary functions to be used as io.Closer.
type CloserFunc func() error

// Close calls the underlying function.
func (f CloserFunc) Close() error {
	return f()
}
