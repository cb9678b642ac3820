package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/payrec/payrec/internal/app"
	"github.com/payrec/payrec/internal/files"
	"github.com/payrec/payrec/internal/platform/blob"
	"github.com/payrec/payrec/internal/recon"
	reconhttp "github.com/payrec/payrec/internal/recon/http"
	"github.com/payrec/payrec/internal/settings"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	store, err := blob.New(cfg.DataDir)
	if err != nil {
		logger.Error("init data dir", slog.Any("error", err))
		os.Exit(1)
	}

	filesService := files.NewService(store, logger)
	filesHandler := files.NewHandler(logger, filesService, cfg.MaxUploadBytes)

	settingsService := settings.NewService(store, logger, settings.Journals{
		Purchase: cfg.PurchaseJournals,
		Bank:     cfg.BankJournals,
	})
	settingsHandler := settings.NewHandler(logger, settingsService)

	base := recon.DefaultConfig()
	base.PayablePrefix = cfg.PayablePrefix
	base.EffectsPrefix = cfg.EffectsPrefix
	reconHandler := reconhttp.NewHandler(logger, filesService, settingsService, base)

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		FilesHandler:    filesHandler,
		SettingsHandler: settingsHandler,
		ReconHandler:    reconHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
