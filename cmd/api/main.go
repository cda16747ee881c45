package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/markdave123-py/docchat/internal/app"
	"github.com/markdave123-py/docchat/internal/config"
	"github.com/markdave123-py/docchat/internal/logger"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}
	logger.Init(cfg.LogLevel)

	// Handle SIGINT/SIGTERM for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.NewApp(ctx, cfg)
	if err != nil {
		logrus.WithError(err).Fatal("startup failed")
	}
	defer application.Close()

	if application.InProcessWorkers() {
		application.Ingestor.Start(ctx, cfg.Workers)
		logrus.WithField("workers", cfg.Workers).Info("in-process ingest workers started")
	}

	errCh := make(chan error, 1)
	go func() { errCh <- application.Server.Start() }()

	select {
	case err := <-errCh:
		if err != nil {
			logrus.WithError(err).Error("server error")
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := application.Server.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("graceful shutdown failed")
	}
	logrus.Info("docchat stopped")
}
