// Package main AICheck API
//
// @title           AICheck API
// @version         1.0
// @description     API проверки текстов на признаки генерации ИИ с лимитами по тарифам и мок-биллингом
// @termsOfService  http://swagger.io/terms/

// @contact.name   API Support
// @contact.url    http://www.swagger.io/support
// @contact.email  support@swagger.io

// @license.name  MIT
// @license.url   https://opensource.org/licenses/MIT

// @host      localhost:8080
// @BasePath  /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/magabrotheeeer/aicheck/internal/app/aicheck"
	"github.com/magabrotheeeer/aicheck/internal/config"
	"github.com/magabrotheeeer/aicheck/internal/lib/sl"
)

func main() {
	cfg := config.MustLoad()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))

	logger.Info("starting aicheck", slog.String("env", cfg.Env))
	logger.Debug("loaded config", slog.String("config", cfg.String()))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := aicheck.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize app", sl.Err(err))
		os.Exit(1)
	}

	if err := app.Run(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("app stopped with error", sl.Err(err))
		os.Exit(1)
	}

	logger.Info("aicheck stopped gracefully")
}
