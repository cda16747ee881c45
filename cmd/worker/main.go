// Command worker drains the ingestion queue for API processes running with
// INGEST_MODE=background and an external queue.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/markdave123-py/docchat/internal/app"
	"github.com/markdave123-py/docchat/internal/config"
	"github.com/markdave123-py/docchat/internal/logger"
)

var workers int

var rootCmd = &cobra.Command{
	Use:   "docchat-worker",
	Short: "Process queued PDF ingestion jobs",
	Long: `Consumes ingestion jobs from the configured queue and runs
extract, chunk, embed and store for each document.

Configuration is read from .env, CONFIG_FILE and the environment,
exactly as for the API server. QUEUE_BACKEND should be redis or kafka;
with the memory queue there is nothing to consume across processes.`,
	SilenceUsage: true,
	RunE:         run,
}

func init() {
	rootCmd.Flags().IntVarP(&workers, "workers", "w", 0, "concurrent jobs (defaults to WORKERS)")
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	logger.Init(cfg.LogLevel)

	if workers <= 0 {
		workers = cfg.Workers
	}
	if workers <= 0 {
		return fmt.Errorf("--workers must be positive, got %d", workers)
	}
	if cfg.QueueBackend == "memory" {
		logrus.Warn("QUEUE_BACKEND=memory: this worker only sees jobs enqueued by itself")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.NewApp(ctx, cfg)
	if err != nil {
		return fmt.Errorf("startup failed: %w", err)
	}
	defer application.Close()

	application.Ingestor.Start(ctx, workers)
	logrus.WithFields(logrus.Fields{"workers": workers, "queue": cfg.QueueBackend}).Info("ingest worker running")

	<-ctx.Done()
	logrus.Info("ingest worker stopping")
	return nil
}
