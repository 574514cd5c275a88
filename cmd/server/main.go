package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"auth-bridge/internal/app"
	"auth-bridge/internal/config"
	"auth-bridge/internal/logger"
	"auth-bridge/internal/monitoring"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		boot, _ := zap.NewProduction()
		boot.Fatal("invalid configuration", zap.Error(err))
	}

	log, err := logger.New(cfg.App.Env)
	if err != nil {
		panic(err)
	}
	defer logger.Sync(log)

	if err := monitoring.InitSentry(cfg.Monitoring, cfg.App); err != nil {
		log.Warn("sentry init failed", zap.Error(err))
	}
	defer monitoring.Flush()
	monitoring.Init()

	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	application, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to initialize app", zap.Error(err))
	}

	go func() {
		if err := application.Run(); err != nil {
			log.Fatal("http server failed", zap.Error(err))
		}
	}()

	log.Info("auth-bridge started",
		zap.String("port", cfg.App.Port),
		zap.String("env", cfg.App.Env),
		zap.String("session_backend", cfg.Session.Backend),
	)

	<-ctx.Done() // wait for Ctrl+C

	log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		15*time.Second,
	)
	defer cancel()

	if err := application.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
		return
	}

	log.Info("auth-bridge stopped cleanly")
}
