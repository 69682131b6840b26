package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"depositgateway/config"
	httpHandler "depositgateway/internal/adapter/http/handler"
	pgStorage "depositgateway/internal/adapter/storage/postgres"
	redisStorage "depositgateway/internal/adapter/storage/redis"
	"depositgateway/internal/core/ports"
	"depositgateway/internal/service"
	"depositgateway/pkg/logger"

	"github.com/rs/zerolog"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Msg("starting deposit gateway")

	ctx := context.Background()

	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to PostgreSQL")
	}
	defer pool.Close()
	log.Info().Msg("PostgreSQL connected")

	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to Redis")
	}
	defer rdb.Close()
	log.Info().Msg("Redis connected")

	// Repositories (C3, C4, C7)
	walletRepo := pgStorage.NewWalletRepo(pool)
	ledgerRepo := pgStorage.NewLedgerRepo(pool)
	txRepo := pgStorage.NewTransactionRepo(pool)
	auditRepo := pgStorage.NewAuditRepository(pool)
	transactor := pgStorage.NewTransactor(pool)

	// Redis-backed fast path (optional, never authoritative)
	replayCache := redisStorage.NewReplayCache(rdb)

	// Core services (C1-C3, C7)
	sigCodec := service.NewSignatureCodec()
	providerRegistry := service.NewProviderRegistry(cfg.Providers)
	walletLedger := service.NewWalletLedger(walletRepo, ledgerRepo, transactor, log)
	auditSvc := service.NewAuditService(auditRepo, log)

	// Orchestrator (C5, C6)
	paymentsSvc := service.NewPaymentsService(
		txRepo,
		walletLedger,
		providerRegistry,
		sigCodec,
		replayCache,
		auditSvc,
		transactor,
		cfg.Retry.BaseDelayMs,
		cfg.Retry.MaxDelayMs,
		cfg.Retry.MaxRetries,
		cfg.Reconcile.PendingExpiry,
		log,
	)

	pgHealth := pgStorage.NewHealthCheck(pool)
	redisHealth := redisStorage.NewHealthCheck(rdb)

	if specBytes, err := os.ReadFile("docs/api/openapi.yaml"); err == nil {
		httpHandler.SetSwaggerSpec(specBytes)
		log.Info().Msg("OpenAPI spec loaded for Swagger UI at /swagger")
	} else {
		log.Warn().Err(err).Msg("OpenAPI spec not found, Swagger UI will be unavailable")
	}

	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		PaymentsSvc:    paymentsSvc,
		HealthCheckers: []ports.HealthChecker{pgHealth, redisHealth},
		Logger:         log,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Background sweep: expires stale PENDING deposits on a fixed interval,
	// backstopping the retry queue and any reconcile calls that never arrive.
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	go runSweep(sweepCtx, paymentsSvc, cfg.Reconcile.SweepInterval, log)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	stopSweep()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server exited")
}

func runSweep(ctx context.Context, svc ports.PaymentsService, interval time.Duration, log zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			expired, err := svc.ReconcileExpiredSweep(ctx)
			if err != nil {
				log.Error().Err(err).Msg("reconciliation sweep failed")
				continue
			}
			if expired > 0 {
				log.Info().Int("expired", expired).Msg("reconciliation sweep expired stale deposits")
			}
		}
	}
}
