package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gatherly/lifecycle-service/internal/audit"
	"github.com/gatherly/lifecycle-service/internal/config"
	"github.com/gatherly/lifecycle-service/internal/infrastructure/postgres"
	"github.com/gatherly/lifecycle-service/internal/infrastructure/rabbitmq"
	"github.com/gatherly/lifecycle-service/internal/infrastructure/redis"
	"github.com/gatherly/lifecycle-service/internal/lifecycle"
	"github.com/gatherly/lifecycle-service/internal/pkg/logger"
	"github.com/gatherly/lifecycle-service/internal/security"
	"github.com/gatherly/lifecycle-service/internal/service"
	"github.com/gatherly/lifecycle-service/internal/transport/rest"
	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	if cfg.LogLevel != "" {
		_ = os.Setenv("LOG_LEVEL", cfg.LogLevel)
	}

	logger.Init()
	log := logger.Logger.With().
		Str("service", "lifecycle-service").
		Str("env", cfg.AppEnv).
		Logger()

	// Root ctx with signal cancellation
	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Postgres ----
	dbPool, err := pgxpool.New(rootCtx, cfg.DBDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("postgres pool create failed")
	}
	defer dbPool.Close()

	{
		pingCtx, cancel := context.WithTimeout(rootCtx, 5*time.Second)
		defer cancel()

		if err := dbPool.Ping(pingCtx); err != nil {
			log.Fatal().Err(err).Msg("postgres ping failed")
		}
		log.Info().Msg("postgres connected")
	}

	repo := postgres.New(dbPool)

	// ---- Redis ----
	cache := redis.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB, cfg.StatusCacheTTL)

	{
		pingCtx, cancel := context.WithTimeout(rootCtx, 2*time.Second)
		defer cancel()

		// best-effort; the service degrades gracefully without redis
		if err := cache.Client.Ping(pingCtx).Err(); err != nil {
			log.Warn().Err(err).Msg("redis ping failed (continuing)")
		} else {
			log.Info().Msg("redis connected")
		}
	}

	// ---- Application service ----
	auditLog := audit.New(logger.Logger)
	svc := service.NewParticipationService(repo, cache, auditLog)
	h := rest.NewHandler(svc)

	// ---- JWT verifier ----
	verifier := security.NewHS256Verifier(cfg.JWTSecret)

	// ---- Router ----
	httpHandler := rest.NewRouter(rest.RouterDeps{
		Cache:            cache,
		Handler:          h,
		Verifier:         verifier,
		JWTIssuer:        cfg.JWTIssuer,
		RateLimitEnabled: cfg.RLEnabled,
		RateLimit:        cfg.RLLimit,
		RateLimitWindow:  cfg.RLWindow,
	})

	// ---- MQ consumer (inbound payment outcomes) ----
	mqConsumer := rabbitmq.NewConsumer(cfg.RabbitURL, cfg.RabbitExchange, repo)
	if err := mqConsumer.Start(rootCtx); err != nil {
		if cfg.AppEnv == "dev" {
			log.Warn().Err(err).Msg("payment consumer start failed (continuing in dev)")
		} else {
			log.Fatal().Err(err).Msg("payment consumer start failed")
		}
	}

	// ---- Outbox worker (outbound notify.* events) ----
	if cfg.OutboxEnabled {
		repo.StartOutboxWorker(rootCtx, cfg.RabbitURL, cfg.RabbitExchange)
		repo.StartOutboxCleanup(rootCtx)
		log.Info().Msg("outbox worker started")
	}

	// ---- Lifecycle sweeper + reminders ----
	sweeper := lifecycle.New(repo, cfg.SweepInterval, cfg.ReminderInterval, cfg.ReminderLookahead)
	sweeper.Start(rootCtx)
	log.Info().
		Dur("sweep_interval", cfg.SweepInterval).
		Dur("reminder_interval", cfg.ReminderInterval).
		Dur("reminder_lookahead", cfg.ReminderLookahead).
		Msg("lifecycle sweeper started")

	// ---- HTTP server ----
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Port).Msg("http server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-rootCtx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("http server crashed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	log.Info().Msg("shutdown complete")
}
