package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/interlock-api/interlock/internal/apierr"
	"github.com/interlock-api/interlock/internal/auth"
	"github.com/interlock-api/interlock/internal/authz"
	"github.com/interlock-api/interlock/internal/cache"
	"github.com/interlock-api/interlock/internal/config"
	"github.com/interlock-api/interlock/internal/doctor"
	"github.com/interlock-api/interlock/internal/pipeline"
	"github.com/interlock-api/interlock/internal/ratelimit"
	"github.com/interlock-api/interlock/internal/telemetry"
)

var version = "dev"

func main() {
	if len(os.Args) > 1 && os.Args[1] == "doctor" {
		os.Exit(runDoctor(os.Args[2:]))
	}
	runServe(os.Args[1:])
}

func runServe(args []string) {
	fs := flag.NewFlagSet("interlockd", flag.ExitOnError)
	configDir := fs.String("config", "configs", "path to configuration directory")
	fs.Parse(args)

	loader := config.NewLoader(*configDir, slog.Default())
	if err := loader.Load(); err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	cfg := loader.Config()

	logger := newLogger(cfg.Telemetry)
	slog.SetDefault(logger)

	if err := loader.Watch(); err != nil {
		logger.Warn("failed to start config watcher", "error", err)
	}

	// Connect to PostgreSQL
	dbPool, err := pgxpool.New(context.Background(), cfg.Database.DSN())
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer dbPool.Close()

	if err := dbPool.Ping(context.Background()); err != nil {
		logger.Warn("database not reachable (server will start but auth will fail)", "error", err)
	} else {
		logger.Info("database connected")
	}

	// Connect to Redis
	var rdb *redis.Client
	if cfg.Redis.Enabled && len(cfg.Redis.Addresses) > 0 && cfg.Redis.Addresses[0] != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addresses[0],
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			logger.Warn("redis not reachable (falling back to in-process stores)", "error", err)
			rdb = nil
		} else {
			logger.Info("redis connected")
		}
	}

	// Shared stage collaborators. Redis-backed stores when available, the
	// in-process ones otherwise.
	var rlStore ratelimit.Store
	var cacheBackend cache.Backend
	if rdb != nil {
		rlStore = ratelimit.NewRedisStore(rdb)
		cacheBackend = cache.NewRedisBackend(rdb)
	} else {
		rlStore = ratelimit.NewMemoryStore()
		cacheBackend = cache.NewMemoryBackend()
	}
	defer rlStore.Close()
	defer cacheBackend.Close()

	metrics := telemetry.NewMetrics(nil)
	authHandler, err := buildAuthHandler(cfg, dbPool, rdb, logger)
	if err != nil {
		logger.Error("failed to build auth handler", "error", err)
		os.Exit(1)
	}

	deps := pipeline.Deps{
		AuthHandler: authHandler,
		Limiter:     ratelimit.NewFixedWindow(rlStore, logger),
		Cache:       cache.NewEngine(cacheBackend, logger, metrics),
		Metrics:     metrics,
		Logger:      logger,
		ErrorOpts: func() apierr.Options {
			c := loader.Config().Errors
			return apierr.Options{Envelope: c.Envelope, IncludeDetails: c.IncludeDetails, Redact: c.Redact}
		},
		StrictVersioning: func() bool {
			return loader.Config().Versioning.Strict
		},
	}

	registry := buildRoutes(deps.Cache)

	// Pre-flight route table inspection. Findings are advisory here; the
	// doctor subcommand is the gating surface.
	for _, f := range doctor.Run(registry.Routes(), cfg.Errors.Envelope) {
		logger.Warn("doctor finding", "rule", f.ID, "severity", f.Severity.String(), "route", f.Route, "message", f.Message)
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Get("/interlock/v1/health", healthHandler)
	r.Handle("/metrics", promhttp.Handler())
	registry.Mount(r, deps)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("interlockd starting", "addr", addr, "version", version)
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info("received shutdown signal", "signal", sig)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulShutdown)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
	logger.Info("interlockd stopped")
}

// buildAuthHandler wires the key-metadata matcher, optionally routed through
// rego policies when authz.policy_dir is configured.
func buildAuthHandler(cfg *config.Config, dbPool *pgxpool.Pool, rdb *redis.Client, logger *slog.Logger) (auth.Handler, error) {
	keyStore := auth.NewCachedKeyStore(dbPool, rdb)
	if cfg.Authz.PolicyDir == "" {
		return auth.NewKeyHandler(keyStore), nil
	}

	modules, err := authz.LoadRegoFiles(cfg.Authz.PolicyDir)
	if err != nil {
		return nil, fmt.Errorf("load rego policies: %w", err)
	}
	handler, err := authz.NewRegoHandler(context.Background(), modules)
	if err != nil {
		return nil, fmt.Errorf("compile rego policies: %w", err)
	}
	logger.Info("rego authorization enabled", "dir", cfg.Authz.PolicyDir, "modules", len(modules))
	return handler, nil
}

func newLogger(tc config.TelemetryConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(tc.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if tc.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status":"healthy","version":%q}`+"\n", version)
}
