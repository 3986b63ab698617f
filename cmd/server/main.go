// Package main is the entry point for the tarot backend API server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"tarot-backend/internal/config"
	"tarot-backend/internal/pkg/db"
	"tarot-backend/internal/repository"
	"tarot-backend/internal/server"
	"tarot-backend/internal/service"
	"tarot-backend/internal/textgen"
)

func main() {
	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	// Load configuration
	cfg, err := config.Load("config")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log.Info().Msg("Configuration loaded successfully")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection pool
	dbPool, err := db.NewPool(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer dbPool.Close()

	// Run database migrations and seed the fortune type catalog
	if err := db.Migrate(ctx, dbPool.Pool); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	// Initialize repositories
	userRepo := repository.NewUserRepository(dbPool.Pool)
	lifeRepo := repository.NewLifeRepository(dbPool.Pool)
	adRepo := repository.NewAdEventRepository(dbPool.Pool)
	catalogRepo := repository.NewCatalogRepository(dbPool.Pool)
	purchaseRepo := repository.NewPurchaseRepository(dbPool.Pool)
	subRepo := repository.NewSubscriptionRepository(dbPool.Pool)
	warningRepo := repository.NewWarningRepository(dbPool.Pool)
	readingRepo := repository.NewReadingRepository(dbPool.Pool)
	interpRepo := repository.NewInterpretationRepository(dbPool.Pool)

	// Initialize services
	lifeService := service.NewLifeService(
		dbPool.Pool,
		userRepo,
		lifeRepo,
		adRepo,
		cfg.Life.InitialCurrent,
		cfg.Life.InitialMax,
		cfg.Ads.MaxPerHour,
		cfg.Ads.MaxPerDay,
	)

	readingService := service.NewReadingService(
		dbPool.Pool,
		catalogRepo,
		lifeRepo,
		subRepo,
		purchaseRepo,
		warningRepo,
		readingRepo,
		cfg,
		cfg.Warning.Window,
	)

	billingService := service.NewBillingService(catalogRepo, purchaseRepo, subRepo)

	var generator textgen.Generator
	if cfg.AI.APIKey != "" {
		generator = textgen.NewOpenAIGenerator(cfg.AI.APIKey, cfg.AI.Model, cfg.AI.MaxTokens)
	} else {
		log.Warn().Msg("No AI API key configured, using static interpretations")
		generator = textgen.StaticGenerator{}
	}

	interpService := service.NewInterpretationService(
		dbPool.Pool,
		readingRepo,
		catalogRepo,
		interpRepo,
		generator,
		cfg,
	)

	// Initialize HTTP server
	srv := server.NewServer(dbPool, readingService, lifeService, billingService, interpService)

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      srv.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start server in a goroutine
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("Server is starting...")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Wait for shutdown signal
	sig := <-sigChan
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}
	log.Info().Msg("Server stopped gracefully")
}
