package main

import (
	"context"
	"flag"
	"os"

	"ledger/internal/amqp"
	"ledger/internal/backend"
	"ledger/internal/cli"
	"ledger/internal/log"
	"ledger/internal/worker"
)

func main() {
	configPath := flag.String("config", "", "path to a config file (defaults to CONFIG_FILE)")
	backfill := flag.Bool("backfill", false, "upsert every stored transaction into the sheet before consuming events")
	flag.Parse()

	cli.LoadEnvFile()
	cfg := cli.LoadConfig(*configPath)
	logger := cli.SetupLogger(cfg.LogLevel, cfg.LogFormat)
	cli.MustValidate(logger, cfg.ValidateWorker)

	logger.Info("Starting ledger-worker",
		"exchange", cfg.AMQPExchange,
		"queue", cfg.AMQPQueue,
		"sheet", cfg.GoogleSheetName)

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration",
			log.NewFields().WithError(err, log.ErrorTypeConfiguration).ToSlice()...)
		os.Exit(1)
	}
	mirror, err := backend.NewFactory(logger).CreateMirror(context.Background(), bcfg)
	if err != nil {
		logger.Error("Failed to initialize sheet mirror",
			log.NewFields().WithError(err, log.ErrorTypeExternal).ToSlice()...)
		os.Exit(1)
	}

	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client",
			log.NewFields().WithError(err, log.ErrorTypeNetwork).ToSlice()...)
		os.Exit(1)
	}

	w := worker.NewMirrorWorker(mirror, logger)
	ctx, done := cli.GracefulShutdown(logger, cfg.ShutdownTimeout, func(context.Context) {
		if err := client.Close(); err != nil {
			logger.Error("AMQP close error",
				log.NewFields().WithError(err, log.ErrorTypeNetwork).ToSlice()...)
		}
	})

	if *backfill {
		be := cli.OpenBackend(ctx, logger, cfg)
		if _, err := w.Backfill(ctx, be.Store); err != nil {
			logger.Error("Backfill failed",
				log.NewFields().WithError(err, log.ErrorTypeExternal).ToSlice()...)
		}
		if err := be.Cleanup(); err != nil {
			logger.Warn("Backend cleanup error",
				log.NewFields().WithError(err, log.ErrorTypeDatabase).ToSlice()...)
		}
	}

	if err := w.Run(ctx, client, cfg.WorkerPrefetch); err != nil {
		logger.Error("Mirror worker failed",
			log.NewFields().WithError(err, log.ErrorTypeNetwork).ToSlice()...)
		_ = client.Close()
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped gracefully")
}
