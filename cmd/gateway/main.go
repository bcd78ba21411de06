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
	_ = godotenv.Load()

	cfg, err := config.Load(config.DefaultPath())
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger.Init(logger.Config{
		Env:         cfg.App.Env,
		Level:       cfg.App.LogLevel,
		Format:      cfg.App.LogFormat,
		ServiceName: "gateway",
		Version:     version,
	})
	defer logger.Sync()
	lg := logger.L()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Setup(ctx, tracing.Config{
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: "gateway",
		SampleRatio: cfg.Tracing.SampleRatio,
	})
	if err != nil {
		lg.Warn("tracing disabled", logger.Err(err))
	} else {
		defer func() { _ = shutdownTracing(context.Background()) }()
	}

	gw, err := app.BuildGateway(ctx, cfg)
	if err != nil {
		lg.Fatal("gateway wiring failed", logger.Err(err))
	}
	lg.Info("proxying auth API", logger.String("upstream", cfg.Gateway.AuthServerURL))
	if err := gw.Run(ctx); err != nil {
		lg.Error("gateway stopped with error", logger.Err(err))
		os.Exit(1)
	}
	lg.Info("gateway stopped")
}
