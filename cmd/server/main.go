package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/maynagashev/formdef/internal/config"
	"github.com/maynagashev/formdef/internal/handlers"
	"github.com/maynagashev/formdef/internal/logging"
	"github.com/maynagashev/formdef/internal/metrics"
	appmiddleware "github.com/maynagashev/formdef/internal/middleware"
	"github.com/maynagashev/formdef/internal/models"
	"github.com/maynagashev/formdef/internal/repository"
	"github.com/maynagashev/formdef/internal/services"
	"github.com/maynagashev/formdef/internal/storage"
)

// Replaceable in tests.
var (
	newPostgresDB  = repository.NewPostgresDB
	runMigrations  = repository.RunMigrations
	newFileStorage = func(ctx context.Context, cfg storage.MinioConfig) (storage.FileStorage, error) {
		return storage.NewMinioClient(ctx, cfg)
	}
)

// dependencies are the initialized server components.
type dependencies struct {
	db          *sqlx.DB
	fileStorage storage.FileStorage // nil when publishing is disabled
	registry    *prometheus.Registry
	metrics     *metrics.Metrics
	health      *handlers.HealthHandler
	kinds       map[string]*handlers.VersioningHandler // by URL segment
}

func main() {
	if err := run(); err != nil {
		slog.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	flags := parseFlags()

	cfg, err := config.Load(flags.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err = flags.apply(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.Setup(os.Stdout, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	logger.Info("starting form definition server")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := setupDependencies(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init dependencies: %w", err)
	}
	defer func() {
		if closeErr := deps.db.Close(); closeErr != nil {
			logger.Error("failed to close database", "error", closeErr)
		}
	}()

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      setupRouter(logger, deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		if cfg.Server.TLSEnabled() {
			logger.Info("listening with TLS", "port", cfg.Server.Port, "cert_file", cfg.Server.CertFile)
			serveErr <- server.ListenAndServeTLS(cfg.Server.CertFile, cfg.Server.KeyFile)
			return
		}
		logger.Info("listening", "port", cfg.Server.Port)
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err = <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err = server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	logger.Info("server stopped")
	return nil
}

// setupDependencies connects to the database, applies migrations and builds one
// service and handler per entity kind.
func setupDependencies(ctx context.Context, cfg *config.Config) (*dependencies, error) {
	deps := &dependencies{}
	var err error

	deps.db, err = newPostgresDB(cfg.Database.ConnString(), repository.PoolConfig{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime: cfg.Database.ConnMaxIdleTime,
	})
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}

	closeDB := func() {
		if closeErr := deps.db.Close(); closeErr != nil {
			slog.Error("failed to close database during startup", "error", closeErr)
		}
	}

	if cfg.Database.Migrate {
		if err = runMigrations(deps.db); err != nil {
			closeDB()
			return nil, fmt.Errorf("migrate database: %w", err)
		}
	}

	if cfg.Minio.Enabled() {
		deps.fileStorage, err = newFileStorage(ctx, storage.MinioConfig{
			Endpoint:        cfg.Minio.Endpoint,
			AccessKeyID:     cfg.Minio.User,
			SecretAccessKey: cfg.Minio.Password,
			UseSSL:          cfg.Minio.UseSSL,
			BucketName:      cfg.Minio.Bucket,
			Region:          cfg.Minio.Region,
		})
		if err != nil {
			closeDB()
			return nil, fmt.Errorf("init MinIO client: %w", err)
		}
	} else {
		slog.Info("MINIO_ENDPOINT not set, version publishing disabled")
	}

	deps.registry = prometheus.NewRegistry()
	deps.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewDBStatsCollector(deps.db.DB, "formdef"),
	)
	deps.metrics = metrics.New(deps.registry)

	deps.health = handlers.NewHealthHandler(deps.db)
	deps.kinds = make(map[string]*handlers.VersioningHandler, len(models.Kinds()))
	for _, kind := range models.Kinds() {
		tx := repository.NewPostgresTxManager(deps.db, kind)
		svc := services.NewVersioningService(kind, tx, deps.fileStorage, deps.metrics)
		deps.kinds[kind.Plural] = handlers.NewVersioningHandler(svc)
	}

	return deps, nil
}

// setupRouter builds the chi router.
func setupRouter(logger *slog.Logger, deps *dependencies) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(appmiddleware.Observe(logger, deps.metrics))
	r.Use(middleware.Recoverer)

	r.Get("/ping", deps.health.Ping)
	r.Get("/health", deps.health.Health)
	r.Handle("/metrics", promhttp.HandlerFor(deps.registry, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		for plural, h := range deps.kinds {
			r.Route("/"+plural, h.Routes)
		}
	})
	return r
}
