package server

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opcoord/opcoord/internal/api"
	"github.com/opcoord/opcoord/internal/core"
	"github.com/opcoord/opcoord/internal/idempotency"
	"github.com/opcoord/opcoord/internal/invoker"
	"github.com/opcoord/opcoord/internal/state"
	"github.com/opcoord/opcoord/internal/wait"
)

// Deps are the collaborators the router exposes over HTTP.
type Deps struct {
	Store       state.Store
	Manager     *idempotency.Manager
	Coordinator *wait.Coordinator
	Registry    *invoker.Registry
	Publisher   core.EventPublisher
	Subscriber  core.EventSubscriber
}

// NewRouter creates and configures the HTTP router.
func NewRouter(deps Deps, logger *slog.Logger, cfg Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(metricsMiddleware)
	r.Use(api.RequestID)
	r.Use(api.RequestLogger(logger))

	if cfg.APIKey != "" {
		// The webhook path authenticates by signature, not API key.
		r.Use(api.KeyAuth(cfg.APIKey, "/metrics", "/v1/health", "/v1/events"))
	}

	r.Handle("/metrics", promhttp.Handler())

	operationHandler := api.NewOperationHandler(deps.Manager, deps.Registry, deps.Publisher)
	waitHandler := api.NewWaitHandler(deps.Coordinator, deps.Registry)
	eventHandler := api.NewEventHandler(deps.Coordinator)
	systemHandler := api.NewSystemHandler(deps.Store, deps.Registry)

	r.Get("/v1/health", systemHandler.Health)
	r.Get("/v1/operations", systemHandler.Operations)

	r.Post("/v1/operations", operationHandler.Submit)
	r.Get("/v1/operations/{key}", func(w http.ResponseWriter, req *http.Request) {
		operationHandler.Lookup(w, req, chi.URLParam(req, "key"))
	})

	r.Post("/v1/waits", waitHandler.Create)
	r.Get("/v1/waits", waitHandler.List)
	r.Delete("/v1/waits/{id}", waitHandler.Cancel)

	r.Post("/v1/events", eventHandler.Deliver)

	if deps.Subscriber != nil {
		sseHandler := api.NewSSEHandler(deps.Subscriber)
		r.Get("/v1/events/stream", sseHandler.Stream)
	}

	return r
}

var httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: "opcoord",
	Name:      "http_request_duration_seconds",
	Help:      "HTTP request latency by method, path, and status.",
	Buckets:   prometheus.DefBuckets,
}, []string{"method", "path", "status"})

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sc := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sc, r)

		routePattern := chi.RouteContext(r.Context()).RoutePattern()
		if routePattern == "" {
			routePattern = "unmatched"
		}
		httpDuration.WithLabelValues(r.Method, routePattern, strconv.Itoa(sc.code)).
			Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.code = code
	s.ResponseWriter.WriteHeader(code)
}

// Flush passes through so SSE streaming works behind the middleware.
func (s *statusRecorder) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
