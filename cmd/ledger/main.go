package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"

	"ledger/internal/auth"
	"ledger/internal/cli"
	apphttp "ledger/internal/http"
	"ledger/internal/log"
	"ledger/internal/services"
)

func main() {
	configPath := flag.String("config", "", "path to a config file (defaults to CONFIG_FILE)")
	flag.Parse()

	cli.LoadEnvFile()
	cfg := cli.LoadConfig(*configPath)
	logger := cli.SetupLogger(cfg.LogLevel, cfg.LogFormat)

	cli.EnsureSessionSecret(logger, cfg)
	cli.MustValidate(logger, cfg.Validate)

	ctx := context.Background()
	be := cli.OpenBackend(ctx, logger, cfg)

	ledger := services.NewLedgerService(be.Store, be.Events, logger)
	srv, err := apphttp.NewServer(":"+cfg.Port, apphttp.Deps{
		Ledger:             ledger,
		Reports:            services.NewReports(be.Store),
		Users:              services.NewUserService(be.Store, logger),
		Tokens:             auth.NewTokenIssuer(cfg.SessionSecret, cfg.SessionTTL),
		Store:              be.Store,
		Logger:             logger,
		CookieSecure:       cfg.CookieSecure,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
	})
	if err != nil {
		logger.Error("Failed to build HTTP server",
			log.NewFields().WithError(err, log.ErrorTypeInternal).ToSlice()...)
		_ = be.Cleanup()
		os.Exit(1)
	}

	shutdownCtx, done := cli.GracefulShutdown(logger, cfg.ShutdownTimeout, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error",
				log.NewFields().WithError(err, log.ErrorTypeInternal).ToSlice()...)
		}
		if err := be.Cleanup(); err != nil {
			logger.Error("Backend cleanup error",
				log.NewFields().WithError(err, log.ErrorTypeDatabase).ToSlice()...)
		}
	})

	logger.Info("Starting ledger server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"events", be.Events != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error",
			append(log.NewFields().WithError(err, log.ErrorTypeNetwork).ToSlice(), "port", cfg.Port)...)
		_ = be.Cleanup()
		os.Exit(1)
	}

	cli.WaitForShutdown(shutdownCtx, done)
	logger.Info("Server stopped gracefully")
}
