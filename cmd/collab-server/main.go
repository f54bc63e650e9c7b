package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"

	"github.com/KUMARAN-07/Academic-Collab/internal/server"
	"github.com/KUMARAN-07/Academic-Collab/internal/storage/mongostore"
	"github.com/KUMARAN-07/Academic-Collab/pkg/config"
	"github.com/KUMARAN-07/Academic-Collab/pkg/logging"
)

func main() {
	logger := logging.New(logging.LevelDebug)
	slog.SetDefault(logger)

	cfg, err := config.Load(logger, "config")
	if err != nil {
		logger.Error("Failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	store, err := mongostore.Connect(ctx, logger, cfg.Storage)
	if err != nil {
		logger.Error("Failed to connect to storage", slog.Any("error", err))
		os.Exit(1)
	}
	defer store.Close(context.Background())

	app := server.NewApp(logger, ctx, cfg, store)
	if err := app.Run(); err != nil {
		logger.Error("Application run failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("Application shut down successfully.")
}
