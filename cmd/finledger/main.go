package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"finledger/internal/advice"
	"finledger/internal/amqp"
	"finledger/internal/banksync"
	"finledger/internal/billing"
	"finledger/internal/config"
	apphttp "finledger/internal/http"
	"finledger/internal/importer"
	"finledger/internal/ledger"
	applog "finledger/internal/log"
	"finledger/internal/plans"
	"finledger/internal/storage"
	"finledger/internal/storage/memory"
)

// dataStore is what both backends provide: ledger storage plus the bank
// link, subscription and plan records.
type dataStore interface {
	ledger.Store
	billing.Store
	banksync.LinkStore
	plans.Store
}

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.New(applog.DefaultConfig())
	applog.SetDefault(logger)

	logger.Info("Starting finledger")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	var store dataStore
	switch cfg.DataBackend {
	case "sqlite":
		sqliteStore, err := storage.NewSQLiteStore(cfg.SQLiteDBPath)
		if err != nil {
			logger.Error("Failed to initialize SQLite store", "error", err, "path", cfg.SQLiteDBPath)
			os.Exit(1)
		}
		defer sqliteStore.Close()
		store = sqliteStore
		logger.Info("Initialized sqlite backend", "path", cfg.SQLiteDBPath)
	default:
		store = memory.New()
		logger.Info("Initialized memory backend")
	}

	reconciler := importer.New(store, cfg.ImportBatchSize)
	billingSvc := billing.NewService(store)

	var syncSvc *banksync.Service
	if cfg.AggregatorURL != "" {
		provider := banksync.NewHTTPProvider(cfg.AggregatorURL, cfg.AggregatorAPIKey)
		syncSvc = banksync.NewService(provider, store, store, reconciler)
		logger.Info("Bank sync enabled", "aggregator_url", cfg.AggregatorURL)
	} else {
		logger.Info("Bank sync disabled - no AGGREGATOR_URL provided")
	}

	var adviceSvc *advice.Service
	if gen, err := advice.NewGenAIGenerator(context.Background(), cfg.AdviceModel); err != nil {
		logger.Warn("Advice disabled", "error", err)
	} else {
		adviceSvc = advice.NewService(store, billingSvc, gen)
	}

	var queue apphttp.SyncQueue
	if cfg.AMQPURL != "" && syncSvc != nil {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
		defer amqpClient.Close()
		queue = amqpClient
	}

	authTokens, err := config.ParseAuthTokens(cfg.AuthTokens)
	if err != nil {
		logger.Error("Failed to parse auth tokens", "error", err)
		os.Exit(1)
	}

	srv := apphttp.NewServer(cfg.Port, apphttp.Deps{
		Ledger:     ledger.NewService(store),
		Store:      store,
		Reconciler: reconciler,
		Billing:    billingSvc,
		Banksync:   syncSvc,
		Advice:     adviceSvc,
		Plans:      plans.NewService(store, store, billingSvc),
		Queue:      queue,
		Auth:       apphttp.TokenAuthenticator(authTokens),
		Logger:     logger,
	})
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 30 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		cancel()
	}()

	if err := srv.Start(); err != nil {
		slog.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Server stopped gracefully")
}
