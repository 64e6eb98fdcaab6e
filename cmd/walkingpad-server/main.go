package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/KevinKickass/OpenWalkingPad/internal/app"
	"github.com/KevinKickass/OpenWalkingPad/internal/config"
	"github.com/KevinKickass/OpenWalkingPad/internal/logging"
	"github.com/KevinKickass/OpenWalkingPad/internal/system"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	envFile := pflag.String("env-file", config.DefaultEnvFile, "Optional dotenv file; real environment variables take precedence.")
	pflag.Parse()

	// Config laden
	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Logger initialisieren
	logOpts := logging.NewOptions()
	logOpts.Level = cfg.Log.Level
	logOpts.Format = cfg.Log.Format
	logger, err := logging.New(logOpts)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Config loaded successfully",
		zap.String("model", cfg.WalkingPad.Model),
		zap.Duration("polling_interval", cfg.WalkingPad.PollingInterval),
		zap.Bool("mqtt", cfg.MQTT.Enabled()))

	container, err := app.Build(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to build pad service", zap.Error(err))
	}

	// Lifecycle Manager
	lifecycle := system.NewLifecycleManager(container, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// System starten
	if err := lifecycle.Start(ctx); err != nil {
		logger.Fatal("Failed to start system", zap.Error(err))
	}

	logger.Info("WalkingPad server started successfully",
		zap.Int("http_port", cfg.Server.HTTPPort))

	// Graceful Shutdown auf Signal oder per API
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case <-lifecycle.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := lifecycle.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown failed", zap.Error(err))
		os.Exit(1)
	}

	logger.Info("WalkingPad server stopped successfully")
}
