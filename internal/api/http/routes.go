package http

import (
	"context"
	"net/http"
	"time"

	"github.com/vitalog/vitalog/internal/metrics"
)

// Pinger reports backend health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Router mounts handlers on a mux behind a shared middleware chain.
type Router struct {
	mux     *http.ServeMux
	mw      func(http.Handler) http.Handler
	metrics *metrics.Metrics
}

// NewRouter creates a router serving /health for service and /metrics.
func NewRouter(service string, m *metrics.Metrics, db Pinger, mw func(http.Handler) http.Handler) *Router {
	if mw == nil {
		mw = DefaultMiddleware()
	}
	rt := &Router{mux: http.NewServeMux(), mw: mw, metrics: m}
	rt.mux.HandleFunc("GET /health", HealthHandler(service, db))
	rt.mux.Handle("GET /metrics", m.Handler())
	return rt
}

// Handle mounts h at pattern, labelling metrics with the pattern.
func (rt *Router) Handle(pattern string, h http.HandlerFunc) {
	rt.mux.Handle(pattern, rt.metrics.WrapHandler(pattern, rt.mw(h)))
}

// ServeHTTP implements http.Handler.
func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rt.mux.ServeHTTP(w, r)
}

// MountIngest registers the ingest endpoints.
func (rt *Router) MountIngest(h *IngestHandler) {
	rt.Handle("POST /v1/events", h.Events)
	rt.Handle("POST /v1/backfill", h.Backfill)
}

// MountQuery registers the read endpoints.
func (rt *Router) MountQuery(h *QueryHandler) {
	rt.Handle("GET /v1/users/{user_id}/weekly", h.Weekly)
	rt.Handle("GET /v1/daily", h.Daily)
}

// MountRepair registers the repair endpoints.
func (rt *Router) MountRepair(h *RepairHandler) {
	rt.Handle("POST /v1/repair", h.Repair)
	rt.Handle("GET /v1/repair/diff", h.Diff)
}

// HealthHandler reports healthy when db answers a ping within two seconds.
func HealthHandler(service string, db Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if db != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := db.Ping(ctx); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "service": service, "error": err.Error()})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": service})
	}
}
