package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/dropDatabas3/authgate/internal/app"
	"github.com/dropDatabas3/authgate/internal/config"
	"github.com/dropDatabas3/authgate/internal/observability/logger"
	"github.com/dropDatabas3/authgate/internal/observability/tracing"
)

var version = "dev"

func main() {
	// .env es opcional; en contenedores se usa el entorno directo
	_ = godotenv.Load()

	cfg, err := config.Load(config.DefaultPath())
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger.Init(logger.Config{
		Env:         cfg.App.Env,
		Level:       cfg.App.LogLevel,
		Format:      cfg.App.LogFormat,
		ServiceName: "auth-server",
		Version:     version,
	})
	defer logger.Sync()
	lg := logger.L()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, tracing.Config{
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: "auth-server",
		SampleRatio: cfg.Tracing.SampleRatio,
	})
	if err != nil {
		lg.Warn("tracing disabled", logger.Err(err))
	} else {
		defer func() { _ = shutdownTracing(context.Background()) }()
	}

	srv, err := app.BuildAuthServer(ctx, cfg)
	if err != nil {
		lg.Fatal("auth server wiring failed", logger.Err(err))
	}
	if err := srv.Run(ctx); err != nil {
		lg.Error("auth server stopped with error", logger.Err(err))
		os.Exit(1)
	}
	lg.Info("auth server stopped")
}
