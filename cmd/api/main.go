// Package main is the entry point for the EmberWatch API server.
//
// It loads configuration, connects the Postgres pool and Redis client, wires
// the auth, prediction, and historic services into the HTTP chassis, and
// serves until SIGINT/SIGTERM triggers a graceful shutdown.
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

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"emberwatch/internal/api/handlers"
	"emberwatch/internal/auth"
	"emberwatch/internal/config"
	"emberwatch/internal/core"
	"emberwatch/internal/db"
	"emberwatch/internal/external"
	"emberwatch/internal/historic"
	"emberwatch/internal/predictions"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("emberwatch API starting",
		"environment", cfg.Environment,
		"service", cfg.Service,
		"port", cfg.Server.Port,
	)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	// Postgres pool.
	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL.Value())
	if err != nil {
		return fmt.Errorf("parsing database url: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.Database.MaxConns)
	poolCfg.MinConns = int32(cfg.Database.MinConns)
	poolCfg.MaxConnLifetime = cfg.Database.MaxConnLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("pinging database: %w", err)
	}

	// Redis client for the historic read-through cache.
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password.Value(),
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()

	if err := rdb.Ping(ctx).Err(); err != nil {
		// The cache is an optimization, not a dependency; historic lookups
		// fall through to the upstream endpoint when Redis is down.
		logger.Warn("redis unreachable at startup, historic cache degraded", "error", err)
	}

	// Metrics.
	metrics := core.NewPrometheusMetrics(prometheus.DefaultRegisterer)

	// Repositories.
	userRepo := db.NewUserRepository(pool)
	sessionRepo := db.NewSessionRepository(pool)
	predictionRepo := db.NewPredictionRepository(pool)
	securityRepo := db.NewSecurityRepository(pool)

	// Auth stack.
	tokenGen := auth.NewCryptoTokenGenerator()
	sessionService := auth.NewSessionService(
		sessionRepo,
		tokenGen,
		auth.SessionConfig{SessionDuration: cfg.Auth.SessionDuration},
		nil,
		logger,
	)
	securityService := auth.NewSecurityService(
		securityRepo,
		auth.SecurityConfig{
			IdentifierBlockThreshold: cfg.Security.MaxFailedAttempts,
			IPBlockThreshold:         cfg.Security.MaxFailedAttempts * 10,
			WindowDuration:           cfg.Security.LockoutWindow,
		},
		nil,
		logger,
	)
	authService := auth.NewAuthService(auth.AuthServiceConfig{
		UserRepo:       userRepo,
		SessionService: sessionService,
		Security:       securityService,
		TxManager:      db.NewAuthTxRunner(pool),
		TokenGen:       tokenGen,
		Tokens: auth.TokenConfig{
			ConfirmTokenTTL: cfg.Auth.ConfirmTokenTTL,
			ResetTokenTTL:   cfg.Auth.ResetTokenTTL,
		},
		Logger: logger,
	})

	// Upstream clients.
	predictorClient := external.NewPredictorClient(
		&http.Client{Timeout: cfg.Predictor.Timeout},
		external.PredictorClientConfig{
			BaseURL:           cfg.Predictor.BaseURL,
			APIKey:            cfg.Predictor.APIKey.Value(),
			RequestsPerSecond: cfg.Predictor.RequestsPerSecond,
			Burst:             cfg.Predictor.Burst,
			Logger:            logger,
		},
	)
	historicClient := external.NewHistoricClient(
		&http.Client{Timeout: cfg.Historic.Timeout},
		external.HistoricClientConfig{
			BaseURL: cfg.Historic.BaseURL,
			Logger:  logger,
		},
	)

	// Domain services.
	historicService := historic.NewService(historic.ServiceConfig{
		Client:  historicClient,
		Redis:   rdb,
		TTL:     cfg.Redis.HistoricTTL,
		Metrics: metrics,
		Logger:  logger,
	})
	predictionService := predictions.NewService(predictions.ServiceConfig{
		Repo:      predictionRepo,
		Predictor: predictorClient,
		Historic:  historicService,
		Metrics:   metrics,
		Logger:    logger,
	})

	// HTTP chassis.
	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	srv.Metrics = metrics
	srv.Authenticator = authService
	srv.HealthProbes = []core.HealthProbe{
		core.ProbeFunc("database", pool.Ping),
		core.ProbeFunc("redis", func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}),
	}

	// Handlers.
	cookieCfg := handlers.DefaultCookieConfig()
	cookieCfg.Name = cfg.Auth.CookieName
	cookieCfg.Secure = cfg.Auth.CookieSecure
	cookieCfg.MaxAge = int(cfg.Auth.SessionDuration.Seconds())

	authHandler := handlers.NewAuthHandler(
		authService,
		cookieCfg,
		cfg.Server.AppURL,
		srv.RequireAuth,
		logger,
		srv.Validator,
	)
	predictionHandler := handlers.NewPredictionHandler(
		predictionService,
		srv.RequireAuth,
		srv.Validator,
		logger,
	)
	historicHandler := handlers.NewHistoricHandler(
		historicService,
		srv.RequireAuth,
		logger,
	)

	srv.V1RouteRegistrars = append(srv.V1RouteRegistrars,
		func(r chi.Router) { r.Route("/auth", authHandler.RegisterRoutes) },
		func(r chi.Router) { r.Route("/predictions", predictionHandler.RegisterRoutes) },
		func(r chi.Router) { r.Route("/historic", historicHandler.RegisterRoutes) },
	)

	srv.MountRoutes()

	return runHTTPServer(srv, cfg, logger)
}

// runHTTPServer starts the server in standard HTTP mode with graceful shutdown.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)

	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server resource shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: false,
	})
	return slog.New(handler)
}
