package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"tally/internal/amqp"
	"tally/internal/config"
	apphttp "tally/internal/http"
	applog "tally/internal/log"
	"tally/internal/notify"
	"tally/internal/services"
	"tally/internal/storage"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logCfg := applog.DefaultConfig()
	logCfg.Component = applog.ComponentApp
	logger := applog.Setup(logCfg)

	logger.Info("Starting tallyd")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	// Notices go to the log; with a broker configured they fan out to the
	// notice queue as well, where notice-worker picks them up.
	notifier := notify.Notifier(notify.LogNotifier{})
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, notices stay local", "error", err)
		} else {
			defer amqpClient.Close()
			notifier = notify.Multi{notify.LogNotifier{}, amqp.NewNotifier(amqpClient)}
			logger.Info("AMQP notice publishing enabled", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	}

	ledger := services.NewLedgerService(repo, notifier)
	processor := services.NewRecurringProcessor(repo, ledger)
	backup := services.NewBackupService(repo, notifier)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Catch up recurring charges before serving traffic.
	if applied, skipped, err := processor.ProcessDueCharges(ctx, time.Now()); err != nil {
		logger.Error("Startup recurring charge pass failed", "error", err)
	} else {
		logger.Info("Startup recurring charge pass complete", "applied", applied, "skipped_charges", skipped)
	}

	srv := apphttp.NewServer(":"+cfg.Port, ledger, processor, backup, repo, cfg.RecentLimit)
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 0 // the event stream holds connections open
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Listening", "port", cfg.Port, "sqlite_db", cfg.SQLiteDBPath)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		ticker := time.NewTicker(cfg.RecurringInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case now := <-ticker.C:
				if applied, skipped, err := processor.ProcessDueCharges(gctx, now); err != nil {
					slog.ErrorContext(gctx, "Recurring charge pass failed", "error", err)
				} else if applied > 0 || skipped > 0 {
					slog.InfoContext(gctx, "Recurring charge pass complete", "applied", applied, "skipped_charges", skipped)
				}
			}
		}
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", "error", err)
		os.Exit(1)
	}

	logger.Info("Server stopped gracefully")
}
