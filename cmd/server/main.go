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
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/Nvl123/simulasi-did-rekam-medis-elektronik/internal/api"
	"github.com/Nvl123/simulasi-did-rekam-medis-elektronik/internal/config"
	"github.com/Nvl123/simulasi-did-rekam-medis-elektronik/internal/ledger"
	"github.com/Nvl123/simulasi-did-rekam-medis-elektronik/internal/sharing"
	"github.com/Nvl123/simulasi-did-rekam-medis-elektronik/internal/store/postgres"
	redispkg "github.com/Nvl123/simulasi-did-rekam-medis-elektronik/internal/store/redis"
	"github.com/Nvl123/simulasi-did-rekam-medis-elektronik/internal/verify"
)

// resolveEventTransport selects the access-event backend. An empty Redis URL
// selects the in-process transport so a single-node deployment needs no
// broker.
func resolveEventTransport(cfg *config.Config, logger *slog.Logger) (redispkg.MessageTransport, error) {
	if cfg.Redis.URL == "" {
		logger.Info("access events using in-memory transport")
		return redispkg.NewInMemoryStream(), nil
	}
	stream, err := redispkg.NewStream(cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("initialize redis stream transport: %w", err)
	}
	logger.Info("access events using redis stream transport",
		"redis_url", cfg.Redis.URL,
		"stream", cfg.Redis.AccessEventStream,
	)
	return stream, nil
}

func main() {
	logLevel := slog.LevelInfo
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	switch cfg.Log.Level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	logger.Info("starting vic ledger server",
		"port", cfg.Server.Port,
		"metrics_port", cfg.Server.MetricsPort,
		"migrations_dir", cfg.DB.MigrationsDir,
		"credential_cache_size", cfg.Cache.CredentialCacheSize,
		"issuance_max_attempts", cfg.Issuance.MaxAttempts,
	)

	// Connect to PostgreSQL
	db, err := postgres.New(postgres.Config{
		URL:                cfg.DB.URL,
		MaxOpenConns:       cfg.DB.MaxOpenConns,
		MaxIdleConns:       cfg.DB.MaxIdleConns,
		ConnMaxLifetime:    cfg.DB.ConnMaxLifetime,
		ConnMaxIdleTime:    cfg.DB.ConnMaxIdleTime,
		StatementTimeoutMS: cfg.DB.StatementTimeoutMS,
	})
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("connected to database")

	if err := db.RunMigrations(cfg.DB.MigrationsDir); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	transport, err := resolveEventTransport(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize event transport", "error", err, "redis_url", cfg.Redis.URL)
		os.Exit(1)
	}
	defer transport.Close()

	// Repositories
	blockRepo := postgres.NewBlockRepo(db)
	txRepo := postgres.NewTransactionRepo(db)
	credRepo := postgres.NewCredentialRepo(db)
	issuanceRepo := postgres.NewIssuanceRepo(db, blockRepo, txRepo, credRepo)
	shareRepo := postgres.NewShareRepo(db)
	accessLogRepo := postgres.NewAccessLogRepo(db)

	// Services
	issuer := ledger.NewService(issuanceRepo, logger,
		ledger.WithMaxAttempts(cfg.Issuance.MaxAttempts))
	sharer := sharing.NewService(shareRepo, credRepo, accessLogRepo,
		transport, cfg.Redis.AccessEventStream, logger)
	verifier := verify.NewService(blockRepo, txRepo, credRepo,
		cfg.Cache.CredentialCacheSize, cfg.Cache.CredentialCacheTTL, logger)

	server := api.NewServer(issuer, sharer, verifier, logger)
	rateLimiter := api.NewRateLimitMiddleware(logger)
	defer rateLimiter.Stop()

	apiServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: rateLimiter.Wrap(server.Handler()),
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("api server started", "port", cfg.Server.Port)
		if err := apiServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return runMetricsServer(gCtx, cfg.Server.MetricsPort, db, logger)
	})

	g.Go(func() error {
		select {
		case sig := <-sigCh:
			logger.Info("received signal, shutting down", "signal", sig)
		case <-gCtx.Done():
			return nil
		}
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("api server shutdown error", "error", err)
		}
		cancel()
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}

	logger.Info("server shut down gracefully")
}

// runMetricsServer serves Prometheus metrics and a liveness probe on a
// separate port so operational surfaces never share the public listener.
func runMetricsServer(ctx context.Context, port int, db *postgres.DB, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			http.Error(w, "db unreachable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ok")); err != nil {
			logger.Warn("failed to write health response", "error", err)
		}
	})
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown error", "error", err)
		}
	}()

	logger.Info("metrics server started", "port", port)
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
