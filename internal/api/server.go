// Package api exposes the analysis engine over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"comment-insights/internal/common/logger"
	"comment-insights/internal/common/metrics"
	"comment-insights/internal/engine/orchestrator"
	"comment-insights/internal/models"
)

const defaultMaxBodyBytes = 8 << 20

// Analyzer is the orchestrator surface the API needs.
type Analyzer interface {
	AnalyzeAll(ctx context.Context, items []string, opts ...orchestrator.RunOption) (*models.AggregatedAnalysis, error)
}

// ReadinessCheck reports whether a dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

type Options struct {
	Analyzer     Analyzer
	Logger       logger.Logger
	Checks       map[string]ReadinessCheck
	MaxBodyBytes int64
	// History enables /v1/runs and /v1/usage when set.
	History RunHistory
	// Metrics serves /metrics; defaults to the Prometheus default gatherer.
	Metrics http.Handler
}

type Server struct {
	analyzer     Analyzer
	logger       logger.Logger
	checks       map[string]ReadinessCheck
	maxBodyBytes int64
	history      RunHistory
	metrics      http.Handler
}

func NewServer(opts Options) *Server {
	s := &Server{
		analyzer:     opts.Analyzer,
		logger:       opts.Logger,
		checks:       opts.Checks,
		maxBodyBytes: opts.MaxBodyBytes,
		history:      opts.History,
		metrics:      opts.Metrics,
	}
	if s.logger == nil {
		s.logger = logger.NewNoOpLogger()
	}
	if s.maxBodyBytes <= 0 {
		s.maxBodyBytes = defaultMaxBodyBytes
	}
	if s.metrics == nil {
		s.metrics = promhttp.Handler()
	}
	return s
}

// Router builds the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.instrument)

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Method(http.MethodGet, "/metrics", s.metrics)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/analyses", s.handleAnalyze)
		if s.history != nil {
			r.Get("/runs", s.handleRuns)
			r.Get("/usage", s.handleUsage)
		}
	})
	return r
}

// instrument records request counts and latency per route pattern and logs
// each request.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)

		metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(route).Observe(elapsed.Seconds())

		if route == "/metrics" || route == "/health" {
			return
		}
		s.logger.Info("http request", map[string]interface{}{
			"method":     r.Method,
			"route":      route,
			"status":     status,
			"durationMs": elapsed.Milliseconds(),
			"requestId":  middleware.GetReqID(r.Context()),
		})
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	failures := make(map[string]string)
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			failures[name] = err.Error()
		}
	}
	if len(failures) > 0 {
		s.logger.Warn("readiness check failed", map[string]interface{}{"failures": failures})
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":   "not_ready",
			"failures": failures,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
