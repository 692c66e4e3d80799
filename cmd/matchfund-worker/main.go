package main

import (
	"context"
	"errors"
	"os"
	"time"

	"golang.org/x/sync/errgroup"
	"matchfund/internal/amqp"
	"matchfund/internal/cli"
	"matchfund/internal/config"
	"matchfund/internal/log"
	"matchfund/internal/report"
	"matchfund/internal/services"
	"matchfund/internal/sheets"
	gsheet "matchfund/internal/sheets/google"
	"matchfund/internal/sheets/memory"
	"matchfund/internal/worker"
)

const shutdownTimeout = 30 * time.Second

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentWorker)
	logger.Info("Starting matchfund-worker")

	cfg := cli.LoadAndValidateConfig(logger, (*config.Config).ValidateWorker)

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	exporter := newExporter(logger, cfg)
	ledger := services.NewLedgerService(repo)

	procCfg := services.DefaultExportProcessorConfig()
	procCfg.PollInterval = cfg.ExportInterval
	procCfg.BatchSize = cfg.ExportBatchSize
	procCfg.MaxRetries = cfg.ExportMaxRetries
	processor := services.NewExportProcessor(repo, ledger, exporter, report.NewFileWriter(cfg.ReportDir), procCfg)
	exportWorker := worker.NewExportWorker(processor, repo)

	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		var err error
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", log.FieldError, err.Error())
			os.Exit(1)
		}
		defer amqpClient.Close()
	} else {
		logger.Info("AMQP disabled - polling the export queue only", "interval", cfg.ExportInterval)
	}

	ctx, done := cli.GracefulShutdown(logger, shutdownTimeout, func(ctx context.Context) {
		if err := processor.Stop(ctx); err != nil {
			logger.Warn("Export processor did not stop cleanly", log.FieldError, err.Error())
		}
	})

	if err := processor.Start(ctx); err != nil {
		logger.Error("Failed to start export processor", log.FieldError, err.Error())
		os.Exit(1)
	}

	// Exports queued while the worker was down are drained before consuming.
	logger.Info("Performing startup export check...")
	if err := exportWorker.StartupExportCheck(ctx); err != nil {
		logger.Error("Failed startup export check", log.FieldError, err.Error())
	}

	g, gctx := errgroup.WithContext(ctx)
	if amqpClient != nil {
		g.Go(func() error {
			err := amqpClient.ConsumeMatchEnded(gctx, exportWorker.HandleMatchEnded)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}
	g.Go(func() error {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if stats, err := processor.Stats(gctx); err == nil && stats.Failed > 0 {
					logger.Warn("Exports failed permanently", "count", stats.Failed)
				}
			}
		}
	})

	if err := g.Wait(); err != nil {
		logger.Error("Worker stopped with error", log.FieldError, err.Error())
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = processor.Stop(stopCtx)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker shutdown complete")
}

// newExporter appends summaries to Google Sheets when a spreadsheet is
// configured and keeps them in memory otherwise.
func newExporter(logger *log.Logger, cfg *config.Config) sheets.SummaryExporter {
	if !cfg.SheetsExportEnabled() {
		logger.Info("Google Sheets disabled - no GOOGLE_SPREADSHEET_ID provided")
		return memory.New()
	}

	client, err := gsheet.New(context.Background(), gsheet.Config{
		SpreadsheetID:   cfg.GoogleSpreadsheetID,
		MatchesSheet:    cfg.GoogleMatchesSheetName,
		CredentialsJSON: cfg.GoogleServiceAccountJSON,
		CredentialsFile: cfg.GoogleServiceAccountFile,
	})
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", log.FieldError, err.Error())
		os.Exit(1)
	}
	logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	return client
}
