package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/jjcapestany/space-trace/internal/analysis"
	"github.com/jjcapestany/space-trace/internal/auth"
	"github.com/jjcapestany/space-trace/internal/health"
	"github.com/jjcapestany/space-trace/internal/httputil"
	"github.com/jjcapestany/space-trace/internal/metrics"
	"github.com/jjcapestany/space-trace/internal/registry"
	"github.com/jjcapestany/space-trace/internal/stream"
	"github.com/jjcapestany/space-trace/internal/tle"
)

// TLEConfig holds TLE ingestion settings.
type TLEConfig struct {
	EnableFetch     bool
	SourceURL       string
	ExtraSourceURLs []string
	CacheDir        string
	MaxFiles        int
	MaxAge          time.Duration
}

// Deps are the components the HTTP surface serves.
type Deps struct {
	TLEs     *tle.Store
	Loader   *tle.Loader
	TLE      TLEConfig
	Flights  registry.Store
	Analysis *analysis.Service
	Stream   *stream.Handler
	DB       health.Pinger // nil with the in-memory registry
}

// Server holds the HTTP server and its dependencies.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a configured HTTP server.
func NewServer(addr string, logger *slog.Logger, authCfg auth.Config, deps Deps) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           NewHandler(logger, authCfg, deps),
			ReadTimeout:       10 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			// Analyses can run up to the analysis timeout; SSE clears its own deadline.
			WriteTimeout: 90 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		logger: logger,
	}
}

// NewHandler builds the routed handler with the full middleware chain:
// metrics -> logging -> request id -> auth -> mux.
func NewHandler(logger *slog.Logger, authCfg auth.Config, deps Deps) http.Handler {
	h := &handlers{deps: deps, logger: logger}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", health.Healthz)
	mux.HandleFunc("GET /readyz", health.Readyz(deps.TLEs, deps.DB))
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("GET /api/v1/tle/metadata", h.tleMetadata)
	mux.HandleFunc("POST /api/v1/tle/fetch", h.tleFetch)
	mux.HandleFunc("GET /api/v1/propagate/{norad_id}", h.propagate)

	mux.HandleFunc("POST /api/register-flight", h.registerFlight)
	mux.HandleFunc("GET /api/register-flight", h.listFlights)
	mux.HandleFunc("GET /api/register-flight/{id}", h.getFlight)
	mux.HandleFunc("PUT /api/register-flight/{id}", h.updateFlight)
	mux.HandleFunc("DELETE /api/register-flight/{id}", h.deleteFlight)
	mux.HandleFunc("PUT /api/register-flight/{id}/visibility", h.setVisibility)

	mux.HandleFunc("GET /api/v1/flights/{id}/trajectory", h.trajectory)
	mux.HandleFunc("POST /api/v1/flights/{id}/safety", h.runSafety)
	mux.HandleFunc("GET /api/v1/flights/{id}/safety", h.latestSafety)
	mux.HandleFunc("GET /api/v1/conflicts", h.conflicts)

	if deps.Stream != nil {
		mux.HandleFunc("GET /api/v1/stream/conflicts", deps.Stream.HandleConflicts)
	}

	var handler http.Handler = mux
	handler = auth.Middleware(authCfg)(handler)
	handler = httputil.RequestIDMiddleware(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = metrics.Middleware(handler)
	return handler
}

// HTTPServer returns the underlying *http.Server for external control (e.g. shutdown).
func (s *Server) HTTPServer() *http.Server {
	return s.httpServer
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// probePath returns true for health/readiness probe paths that should not log at INFO.
func probePath(path string) bool {
	return path == "/healthz" || path == "/readyz" || path == "/metrics"
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

// Flush keeps SSE working through the recorder.
func (sr *statusRecorder) Flush() {
	if f, ok := sr.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

func loggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sr := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(sr, r)

			duration := time.Since(start)
			level := slog.LevelInfo
			if probePath(r.URL.Path) {
				level = slog.LevelDebug
			}

			logger.Log(r.Context(), level, "request",
				"component", "api",
				"method", r.Method,
				"path", r.URL.Path,
				"status", strconv.Itoa(sr.statusCode),
				"duration_ms", duration.Milliseconds(),
				"remote_ip", httputil.ClientIP(r, false),
				"request_id", sr.Header().Get(httputil.RequestIDHeader),
			)
		})
	}
}
