package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/dirlisting/importer/internal/config"
	"github.com/dirlisting/importer/internal/core"
	"github.com/dirlisting/importer/internal/database"
	"github.com/dirlisting/importer/internal/logging"
	"github.com/dirlisting/importer/internal/mediastore"
	"github.com/dirlisting/importer/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	// Load and validate configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"db_max_conns", cfg.Database.MaxConns,
		"import_max_concurrent", cfg.Import.MaxConcurrent,
		"persist_sessions", cfg.Import.PersistSessions,
		"storage_backend", cfg.Storage.Backend,
	)
	slog.Debug("configuration", "config", cfg.String())

	// Parse and configure connection pool
	poolConfig, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		slog.Error("failed to parse database URL", "error", err)
		os.Exit(1)
	}

	poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	poolConfig.MinConns = int32(cfg.Database.MinConns)
	poolConfig.MaxConnLifetime = cfg.Database.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.Database.MaxConnIdleTime

	ctx := context.Background()
	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		slog.Error("failed to ping database", "error", err)
		os.Exit(1)
	}

	// Log which database we connected to
	if u, err := url.Parse(cfg.Database.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}

	if cfg.Database.AutoMigrate {
		if err := database.EnsureSchema(ctx, pool); err != nil {
			slog.Error("failed to apply schema", "error", err)
			os.Exit(1)
		}
		slog.Info("database schema ready")
	}

	repo := database.NewRepository(pool)

	// Image download is optional; rows still import without it.
	var media core.MediaSource
	if cfg.Media.Enabled {
		store, err := mediastore.New(ctx, cfg.Storage)
		if err != nil {
			slog.Error("failed to configure image storage", "error", err)
			os.Exit(1)
		}
		media = core.NewMediaFetcher(nil, store, repo, core.MediaConfig{
			Timeout:     cfg.Media.Timeout,
			MaxSize:     cfg.Media.MaxSize,
			Concurrency: cfg.Media.Concurrency,
			UserAgent:   cfg.Media.UserAgent,
		})
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	opts := []core.ServiceOption{core.WithMetrics(core.NewMetrics(registry))}
	if cfg.Import.PersistSessions {
		opts = append(opts, core.WithSnapshots(repo))
	} else {
		slog.Warn("import sessions are kept in memory only; set IMPORT_PERSIST_SESSIONS=true to survive restarts")
	}

	service := core.NewService(
		core.NewMemoryStore(),
		core.NewCompanyProcessorFactory(repo, repo, media),
		core.ServiceConfig{
			Driver: core.DriverConfig{
				RowDelay:     cfg.Import.RowDelay,
				PollInterval: cfg.Import.PollInterval,
			},
			MaxConcurrent: cfg.Import.MaxConcurrent,
			MaxWait:       cfg.Import.MaxWaitTime,
		},
		opts...,
	)

	if n, err := service.Recover(ctx); err != nil {
		slog.Error("failed to recover unfinished imports", "error", err, "resumed", n)
	} else if n > 0 {
		slog.Info("resumed unfinished imports", "count", n)
	}

	server := web.NewServer(service, cfg, registry)

	// Create cancellable context for background jobs
	jobCtx, cancelJobs := context.WithCancel(context.Background())

	go service.StartRetentionSweeper(jobCtx, core.RetentionConfig{
		MaxAge:        cfg.Retention.MaxAge,
		CheckInterval: cfg.Retention.CheckInterval,
	})

	// Graceful shutdown
	done := make(chan struct{})
	go func() {
		defer close(done)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")
		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}

		// Drivers stop at their next row boundary; sessions keep their status.
		status := service.LimiterStatus()
		if status.Active > 0 {
			slog.Info("stopping running imports", "active", status.Active)
		}
		if err := service.Shutdown(shutdownCtx); err != nil {
			slog.Warn("imports did not stop in time", "error", err)
		} else if err := service.WaitForImports(shutdownCtx); err != nil {
			slog.Warn("import slots not released in time", "error", err)
		}
	}()

	if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
	<-done
	slog.Info("server stopped")
}
