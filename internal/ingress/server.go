// Package ingress is the HTTP API that validates and enqueues new delivery
// jobs, and exposes the per-store delivery history.
package ingress

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hookqueue/hookqueue/internal/auth"
	"github.com/hookqueue/hookqueue/internal/health"
	"github.com/hookqueue/hookqueue/internal/history"
	"github.com/hookqueue/hookqueue/internal/logging"
	"github.com/hookqueue/hookqueue/internal/queue"
)

// NewRouter wires the ingress routes. validator may be nil, which disables
// bearer auth; check may be nil, which makes /healthz unconditional.
func NewRouter(store queue.Store, recorder history.Recorder, check health.Checker,
	reg *prometheus.Registry, validator *auth.JWTValidator, log *logging.Logger) *chi.Mux {

	httpLogger := httplog.NewLogger("hookqueue-api", httplog.Options{
		JSON: true,
	})

	r := chi.NewRouter()
	r.Use(httplog.RequestLogger(httpLogger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	if validator != nil {
		r.Use(validator.HTTPMiddleware)
	}

	r.Get("/healthz", health.HTTPHandler(check))
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Route("/v1", func(r chi.Router) {
		r.Post("/jobs", postJob(store, log).ServeHTTP)
		r.Get("/stores/{store_id}/history", getHistory(recorder).ServeHTTP)
	})

	return r
}

// Serve runs the ingress HTTP server until it fails or is shut down.
func Serve(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 35 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}
