// cmd/billing-server/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"membership-billing/internal/batch"
	"membership-billing/internal/billing"
	"membership-billing/internal/common/config"
	"membership-billing/internal/common/database"
	commonhttp "membership-billing/internal/common/http"
	"membership-billing/internal/common/logger"
	"membership-billing/internal/common/observability"
	"membership-billing/internal/ecpay"
	"membership-billing/internal/server"
	"membership-billing/internal/store"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2 // Exponential backoff
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func main() {
	zapLog := logger.New("info", "console")

	zapLog.Info("Starting billing server...")

	cfg, err := config.Load()
	if err != nil {
		zapLog.Fatal("config load failed", zap.Error(err))
	}

	// Replace the bootstrap logger once we know the configured level/format.
	zapLog = logger.New(cfg.Logging.Level, cfg.Logging.Format)
	defer zapLog.Sync()
	log := logger.NewZapAdapter(zapLog)

	obs := observability.New("billing-server")
	defer obs.Shutdown()

	ctx := context.Background()

	// --- Init PostgreSQL with retry ---
	var pg *database.PostgresClient
	err = retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return err
		}
		// Test the connection with context
		return pg.Ping(ctx)
	}, 15, 2*time.Second, zapLog, "PostgreSQL connection")

	if err != nil {
		zapLog.Fatal("postgres failed after retries", zap.Error(err))
	}
	defer pg.Close()
	zapLog.Info("PostgreSQL connected successfully")

	// --- Init Redis with retry ---
	var redis *database.RedisClient
	err = retryWithBackoff(func() error {
		var err error
		redis, err = database.NewRedis(cfg.Database.Redis)
		if err != nil {
			return err
		}
		// Test the connection with context
		return redis.Ping(ctx)
	}, 10, 2*time.Second, zapLog, "Redis connection")

	if err != nil {
		zapLog.Fatal("redis failed after retries", zap.Error(err))
	}
	defer redis.Close()
	zapLog.Info("Redis connected successfully")

	// --- Init Google Sheets record store with retry ---
	var recordStore *store.Store
	err = retryWithBackoff(func() error {
		var err error
		recordStore, err = store.NewStore(ctx, cfg.Sheets.SpreadsheetID, cfg.Sheets.MembersSheet, cfg.Sheets.CredentialsFile, log)
		return err
	}, 10, 2*time.Second, zapLog, "Sheets client initialization")

	if err != nil {
		zapLog.Fatal("sheets client failed after retries", zap.Error(err))
	}
	zapLog.Info("Sheets record store ready")

	// --- Payment gateway client ---
	httpClient := commonhttp.NewClient(config.GetDuration(cfg.Server.RequestTimeout))
	gateway := ecpay.NewClient(ecpay.Config{
		MerchantID:        cfg.Gateway.MerchantID,
		HashKey:           cfg.Gateway.HashKey,
		HashIV:            cfg.Gateway.HashIV,
		CheckoutURL:       cfg.Gateway.CheckoutURL,
		QueryURL:          cfg.Gateway.QueryURL,
		ReturnURL:         cfg.Gateway.ReturnURL,
		EncodeTable:       ecpay.EncodeTableByName(cfg.Gateway.EncodeTable),
		TrailingAmpersand: cfg.Gateway.TrailingAmpersand,
	}, httpClient, log)

	dispatcher, err := batch.NewDispatcher[store.Member](cfg.Batch.Size, config.GetDuration(cfg.Batch.DelayMs), log)
	if err != nil {
		zapLog.Fatal("dispatcher setup failed", zap.Error(err))
	}

	billingSvc := billing.NewService(billing.ServiceParams{
		Store:       recordStore,
		Gateway:     gateway,
		Guard:       redis,
		Events:      billing.NewEventLog(pg, log),
		Dispatcher:  dispatcher,
		Amount:      cfg.Billing.Amount,
		ItemName:    cfg.Billing.ItemName,
		LinkBaseURL: cfg.Billing.LinkBaseURL,
		Logger:      log,
	})

	srv := server.New(cfg.Server, billingSvc, log)

	go func() {
		if err := srv.Start(); err != nil {
			zapLog.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	zapLog.Info("Shutdown signal received, stopping server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLog.Error("Error shutting down HTTP server", zap.Error(err))
	}

	zapLog.Info("Billing server stopped gracefully")
}
