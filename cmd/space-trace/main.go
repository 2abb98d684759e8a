package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jjcapestany/space-trace/internal/analysis"
	"github.com/jjcapestany/space-trace/internal/api"
	"github.com/jjcapestany/space-trace/internal/auth"
	"github.com/jjcapestany/space-trace/internal/health"
	"github.com/jjcapestany/space-trace/internal/metrics"
	"github.com/jjcapestany/space-trace/internal/observability"
	"github.com/jjcapestany/space-trace/internal/orbit"
	"github.com/jjcapestany/space-trace/internal/proximity"
	"github.com/jjcapestany/space-trace/internal/registry"
	"github.com/jjcapestany/space-trace/internal/stream"
	"github.com/jjcapestany/space-trace/internal/tle"
)

const (
	defaultTLESourceURL = "https://celestrak.org/NORAD/elements/gp.php?GROUP=active&FORMAT=tle"
	tleCheckInterval    = time.Minute
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(os.Getenv("SPACETRACE_LOG_LEVEL")),
	}))

	addr := os.Getenv("SPACETRACE_HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	// Graceful shutdown on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, loadTracingConfig(logger), logger)
	if err != nil {
		logger.Error("invalid tracing configuration", "error", err)
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(context.Background(), shutdownTracing, logger)

	authCfg, err := loadAuthConfig(logger)
	if err != nil {
		logger.Error("invalid auth configuration", "error", err)
		os.Exit(1)
	}

	tleCfg := loadTLEConfig(logger)
	store := tle.NewStore()
	var fetcher *tle.Fetcher
	if tleCfg.EnableFetch {
		fetcher = tle.NewFetcher(tleCfg.SourceURL, logger, tleCfg.ExtraSourceURLs...)
	}
	loader := tle.NewLoader(fetcher, tle.NewCache(tleCfg.CacheDir, tleCfg.MaxFiles), store, logger)

	if _, err := loader.LoadCached(); err != nil {
		logger.Info("no usable TLE cache, starting without TLE data", "error", err)
	}

	flights, db, err := openRegistry(ctx, logger)
	if err != nil {
		logger.Error("flight registry unavailable", "error", err)
		os.Exit(1)
	}
	if pg, ok := flights.(*registry.PostgresStore); ok {
		defer pg.Close()
	}

	workers := loadPropWorkers(logger)
	pool := orbit.NewWorkerPool(workers, logger)
	metrics.SetPropagationWorkers(pool.Workers())

	svc := analysis.NewService(
		store,
		orbit.NewRecordCache(logger),
		proximity.NewIndex(pool, logger),
		flights,
		loadAnalysisConfig(logger),
		logger,
	)
	if _, err := svc.RefreshConflicts(ctx); err != nil {
		logger.Warn("initial conflict scan failed", "error", err)
	}

	streamHandler := stream.NewHandler(svc, store, loadStreamConfig(logger), logger)

	srv := api.NewServer(addr, logger, authCfg, api.Deps{
		TLEs:     store,
		Loader:   loader,
		TLE:      tleCfg,
		Flights:  flights,
		Analysis: svc,
		Stream:   streamHandler,
		DB:       db,
	})

	if tleCfg.EnableFetch {
		go func() {
			if _, err := loader.RefreshIfStale(ctx, tleCfg.MaxAge); err != nil {
				logger.Warn("initial TLE fetch failed", "error", err)
			}
		}()
	}
	go loader.Run(ctx, tleCheckInterval, tleCfg.MaxAge)

	go func() {
		logger.Info("starting server", "addr", addr, "auth_enabled", authCfg.Enabled, "tle_fetch_enabled", tleCfg.EnableFetch)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server listen error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.HTTPServer().Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

func logLevel(v string) slog.Level {
	switch strings.ToLower(v) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// openRegistry returns the Postgres store when SPACETRACE_DATABASE_URL is
// set and the in-memory store otherwise. db is nil for the in-memory store.
func openRegistry(ctx context.Context, logger *slog.Logger) (registry.Store, health.Pinger, error) {
	url := os.Getenv("SPACETRACE_DATABASE_URL")
	if url == "" {
		logger.Info("registry: using in-memory store")
		return registry.NewMemoryStore(), nil, nil
	}

	cfg := registry.DefaultPoolConfig()
	if n, ok := positiveIntEnv(logger, "SPACETRACE_DATABASE_MAX_CONNS", int(cfg.MaxConns)); ok {
		cfg.MaxConns = int32(n)
	}
	pg, err := registry.NewPostgresStore(ctx, url, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	if err := pg.Migrate(ctx); err != nil {
		pg.Close()
		return nil, nil, err
	}
	logger.Info("registry: using postgres store", "max_conns", cfg.MaxConns)
	return pg, pg, nil
}

// positiveIntEnv parses name as a positive integer. It returns (def, false)
// when name is unset, or set but invalid, which is also logged.
func positiveIntEnv(logger *slog.Logger, name string, def int) (int, bool) {
	v := os.Getenv(name)
	if v == "" {
		return def, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		logger.Warn("invalid "+name+" value, using default", "value", v, "default", def)
		return def, false
	}
	return n, true
}

func secondsEnv(logger *slog.Logger, name string, def time.Duration) time.Duration {
	n, ok := positiveIntEnv(logger, name, int(def.Seconds()))
	if !ok {
		return def
	}
	return time.Duration(n) * time.Second
}

func loadAuthConfig(logger *slog.Logger) (auth.Config, error) {
	cfg := auth.Config{}

	enabledStr := os.Getenv("SPACETRACE_AUTH_ENABLED")
	if enabledStr != "" {
		enabled, err := strconv.ParseBool(enabledStr)
		if err != nil {
			return cfg, errors.New("SPACETRACE_AUTH_ENABLED must be a boolean value (true/false/1/0)")
		}
		cfg.Enabled = enabled
	}

	if cfg.Enabled {
		cfg.Token = os.Getenv("SPACETRACE_AUTH_TOKEN")
		if cfg.Token == "" {
			return cfg, errors.New("SPACETRACE_AUTH_TOKEN is required when auth is enabled")
		}
		logger.Info("auth enabled")
	}

	return cfg, nil
}

func loadTracingConfig(logger *slog.Logger) observability.TracingConfig {
	cfg := observability.DefaultTracingConfig()

	if v := os.Getenv("SPACETRACE_TRACING_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			logger.Warn("invalid SPACETRACE_TRACING_ENABLED value, tracing stays disabled", "value", v)
		} else {
			cfg.Enabled = enabled
		}
	}
	if v := os.Getenv("SPACETRACE_TRACING_EXPORTER"); v != "" {
		cfg.Exporter = strings.ToLower(v)
	}
	cfg.Endpoint = os.Getenv("SPACETRACE_OTLP_ENDPOINT")

	if v := os.Getenv("SPACETRACE_TRACING_SAMPLE_RATIO"); v != "" {
		ratio, err := strconv.ParseFloat(v, 64)
		if err != nil || ratio < 0 || ratio > 1 {
			logger.Warn("invalid SPACETRACE_TRACING_SAMPLE_RATIO value, using default", "value", v, "default", cfg.SampleRatio)
		} else {
			cfg.SampleRatio = ratio
		}
	}
	return cfg
}

func loadTLEConfig(logger *slog.Logger) api.TLEConfig {
	cfg := api.TLEConfig{
		EnableFetch: true,
		SourceURL:   defaultTLESourceURL,
		CacheDir:    "/tmp/space-trace/tle",
		MaxFiles:    5,
		MaxAge:      24 * time.Hour,
		ExtraSourceURLs: []string{
			// ISS (NORAD 25544), a well-documented reference object.
			"https://celestrak.org/NORAD/elements/gp.php?CATNR=25544&FORMAT=tle",
		},
	}

	if v := os.Getenv("SPACETRACE_ENABLE_TLE_FETCH"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			logger.Warn("invalid SPACETRACE_ENABLE_TLE_FETCH value, defaulting to false", "value", v)
			cfg.EnableFetch = false
		} else {
			cfg.EnableFetch = enabled
		}
	}
	if v := os.Getenv("SPACETRACE_TLE_SOURCE_URL"); v != "" {
		cfg.SourceURL = v
	}
	if v, ok := os.LookupEnv("SPACETRACE_TLE_EXTRA_URLS"); ok {
		cfg.ExtraSourceURLs = nil
		for _, u := range strings.Split(v, ",") {
			if u = strings.TrimSpace(u); u != "" {
				cfg.ExtraSourceURLs = append(cfg.ExtraSourceURLs, u)
			}
		}
	}
	if v := os.Getenv("SPACETRACE_TLE_CACHE_DIR"); v != "" {
		cfg.CacheDir = v
	}
	if n, ok := positiveIntEnv(logger, "SPACETRACE_TLE_CACHE_MAX_FILES", cfg.MaxFiles); ok {
		cfg.MaxFiles = n
	}
	cfg.MaxAge = secondsEnv(logger, "SPACETRACE_TLE_MAX_AGE", cfg.MaxAge)

	logger.Info("tle config",
		"fetch_enabled", cfg.EnableFetch,
		"source_url", cfg.SourceURL,
		"extra_sources", len(cfg.ExtraSourceURLs),
		"cache_dir", cfg.CacheDir,
		"max_age_seconds", cfg.MaxAge.Seconds(),
	)
	return cfg
}

func loadPropWorkers(logger *slog.Logger) int {
	n, _ := positiveIntEnv(logger, "SPACETRACE_PROP_WORKERS", runtime.NumCPU())
	logger.Info("propagation config", "workers", n)
	return n
}

func loadAnalysisConfig(logger *slog.Logger) analysis.Config {
	cfg := analysis.DefaultConfig()
	if n, ok := positiveIntEnv(logger, "SPACETRACE_ANALYSIS_PARALLELISM", cfg.Parallelism); ok {
		cfg.Parallelism = n
	}
	cfg.Timeout = secondsEnv(logger, "SPACETRACE_ANALYSIS_TIMEOUT", cfg.Timeout)

	logger.Info("analysis config",
		"parallelism", cfg.Parallelism,
		"timeout_seconds", cfg.Timeout.Seconds(),
	)
	return cfg
}

func loadStreamConfig(logger *slog.Logger) stream.Config {
	cfg := stream.Config{
		MaxConcurrentPerIP: 10,
		KeepaliveInterval:  30 * time.Second,
		PollInterval:       2 * time.Second,
	}

	if n, ok := positiveIntEnv(logger, "SPACETRACE_STREAM_MAX_CONCURRENT", cfg.MaxConcurrentPerIP); ok {
		cfg.MaxConcurrentPerIP = n
	}
	cfg.KeepaliveInterval = secondsEnv(logger, "SPACETRACE_STREAM_KEEPALIVE_INTERVAL", cfg.KeepaliveInterval)
	cfg.PollInterval = secondsEnv(logger, "SPACETRACE_STREAM_POLL_INTERVAL", cfg.PollInterval)

	if v := os.Getenv("SPACETRACE_TRUST_PROXY"); v != "" {
		trust, err := strconv.ParseBool(v)
		if err != nil {
			logger.Warn("invalid SPACETRACE_TRUST_PROXY value, defaulting to false", "value", v)
		} else {
			cfg.TrustProxy = trust
		}
	}

	logger.Info("stream config",
		"max_concurrent_per_ip", cfg.MaxConcurrentPerIP,
		"keepalive_interval_seconds", cfg.KeepaliveInterval.Seconds(),
		"poll_interval_seconds", cfg.PollInterval.Seconds(),
		"trust_proxy", cfg.TrustProxy,
	)
	return cfg
}
