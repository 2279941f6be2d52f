package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/magabrotheeeer/aicheck/internal/app/mailer"
	"github.com/magabrotheeeer/aicheck/internal/config"
	"github.com/magabrotheeeer/aicheck/internal/lib/sl"
)

func main() {
	cfg := config.MustLoad()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	logger.Info("starting mailer", slog.String("env", cfg.Env))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := mailer.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize mailer", sl.Err(err))
		os.Exit(1)
	}

	if err := app.Run(ctx); err != nil {
		logger.Error("mailer stopped with error", sl.Err(err))
		os.Exit(1)
	}

	logger.Info("mailer stopped gracefully")
}
