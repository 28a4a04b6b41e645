// Command ledger-sync mirrors transactions recorded in the SQLite log into
// a Google Sheets ledger. It consumes transaction.recorded messages when a
// broker is configured and polls the log for anything the messages missed.
package main

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"expense-predictor/internal/amqp"
	"expense-predictor/internal/cli"
	"expense-predictor/internal/config"
	"expense-predictor/internal/log"
	"expense-predictor/internal/services"
	gsheet "expense-predictor/internal/sheets/google"
	"expense-predictor/internal/storage"
	"expense-predictor/internal/worker"
)

func main() {
	cfg, logger, err := cli.LoadConfig(log.ComponentWorker)
	if err != nil {
		cli.Fatal(logger, "Configuration validation failed", err)
	}
	if err := run(cfg, logger); err != nil {
		cli.Fatal(logger, "Ledger sync stopped with error", err)
	}
	logger.Info("Ledger sync stopped")
}

func run(cfg *config.Config, logger *log.Logger) error {
	if cfg.GoogleSpreadsheetID == "" {
		return errors.New("GOOGLE_SPREADSHEET_ID is required")
	}

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		return fmt.Errorf("open transaction log: %w", err)
	}
	defer repo.Close()

	remote, err := gsheet.New(ctx, gsheet.Config{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		SheetName:       cfg.GoogleSheetName,
		CredentialsFile: cfg.GoogleCredentialsFile,
		CredentialsJSON: cfg.GoogleCredentialsJSON,
	})
	if err != nil {
		return fmt.Errorf("initialize Google Sheets client: %w", err)
	}
	logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)

	syncWorker := worker.NewSyncWorker(repo, remote, cfg.SyncBatchSize)
	if err := syncWorker.StartupSyncCheck(ctx); err != nil {
		logger.Error("Startup sync check failed", log.FieldError, err.Error(), log.FieldOperation, log.OpSync)
	}

	processor := services.NewSyncProcessor(repo, remote, services.SyncProcessorConfig{
		PollInterval: cfg.SyncInterval,
		BatchSize:    cfg.SyncBatchSize,
	})

	g, gctx := errgroup.WithContext(ctx)

	if err := processor.Start(gctx); err != nil {
		return err
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cli.ShutdownTimeout)
		defer cancel()
		return processor.Stop(shutdownCtx)
	})

	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(gctx, cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			return fmt.Errorf("initialize AMQP client: %w", err)
		}
		defer client.Close()

		g.Go(func() error {
			err := client.ConsumeTransactionRecorded(gctx, syncWorker.HandleRecordedMessage)
			if err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("consume messages: %w", err)
			}
			return nil
		})
		logger.Info("Consuming recorded transactions", "queue", cfg.AMQPQueue)
	} else {
		logger.Info("AMQP disabled, relying on periodic sync", "interval", cfg.SyncInterval)
	}

	return g.Wait()
}
