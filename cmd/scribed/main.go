// Command scribed runs the transcription pipeline daemon: it owns the queue
// database, dispatches pending jobs to the stage workers, and keeps running
// until it receives SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/gofrs/flock"

	"scribe/internal/config"
	"scribe/internal/logging"
	"scribe/internal/queue"
	"scribe/internal/workflow"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "scribed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configFlag := flag.String("config", "", "path to configuration file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, configPath, configExists, err := config.Load(*configFlag)
	if err != nil {
		return err
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	logger, err := logging.NewForDaemon(cfg.Logging.Level, cfg.Logging.Format, cfg.Paths.LogDir)
	if err != nil {
		return err
	}
	if configExists {
		logger.Info("configuration loaded", logging.String("path", configPath))
	} else {
		logger.Info("configuration file not found, using defaults", logging.String("path", configPath))
	}

	// A second daemon sharing the database would double-dispatch jobs, so the
	// lock file guards the whole process lifetime.
	lock := flock.New(filepath.Join(cfg.Paths.LogDir, "scribed.lock"))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire daemon lock: %w", err)
	}
	if !locked {
		return errors.New("another scribed instance is already running")
	}
	defer lock.Unlock()

	store, err := queue.Open(cfg)
	if err != nil {
		return fmt.Errorf("open queue store: %w", err)
	}
	defer store.Close()

	manager := workflow.NewManager(cfg, store, logger)
	for _, health := range manager.Health(ctx) {
		if !health.Ready {
			logger.Warn("stage not ready",
				logging.String("stage", health.Name),
				logging.String("detail", health.Detail))
		}
	}

	if err := manager.Start(ctx); err != nil {
		return fmt.Errorf("start workflow manager: %w", err)
	}
	logger.Info("scribed started",
		logging.Int("workers", cfg.Workflow.WorkerCount),
		logging.String("staging_dir", cfg.Paths.StagingDir))

	<-ctx.Done()
	logger.Info("shutdown signal received")
	manager.Stop()

	if err := manager.LastError(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("scribed stopped")
	return nil
}
