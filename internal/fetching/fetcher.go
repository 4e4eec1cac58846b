package fetching

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"log/slog"

	"scribe/internal/config"
	"scribe/internal/logging"
	"scribe/internal/queue"
	"scribe/internal/services"
	"scribe/internal/stage"
	"scribe/internal/workers"
)

// Fetcher downloads source media into staging via the configured fetch tool.
type Fetcher struct {
	store  *queue.Store
	cfg    *config.Config
	logger *slog.Logger
	client workers.Fetcher
}

// NewFetcher constructs the fetch handler with the configured tool client.
func NewFetcher(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Fetcher {
	return NewFetcherWithClient(cfg, store, logger, &workers.CommandFetcher{Template: cfg.Tools.FetchCommand})
}

// NewFetcherWithClient allows injecting the download client (used in tests).
func NewFetcherWithClient(cfg *config.Config, store *queue.Store, logger *slog.Logger, client workers.Fetcher) *Fetcher {
	return &Fetcher{
		store:  store,
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "fetcher"),
		client: client,
	}
}

// SetLogger replaces the handler logger.
func (f *Fetcher) SetLogger(logger *slog.Logger) {
	f.logger = logging.NewComponentLogger(logger, "fetcher")
}

// Prepare validates that the submission is linked to a source item and that
// staging has enough room for the download.
func (f *Fetcher) Prepare(ctx context.Context, job *queue.Job) error {
	if job.SourceItemID == 0 {
		return services.Wrap(
			services.ErrPrecondition, "fetch", "resolve source item",
			"Job has no linked source item", nil)
	}
	item, err := f.store.GetSourceItem(ctx, job.SourceItemID)
	if err != nil {
		return services.Wrap(
			services.ErrTransient, "fetch", "resolve source item",
			"Failed loading source item", err)
	}
	if item == nil {
		return services.Wrap(
			services.ErrPrecondition, "fetch", "resolve source item",
			fmt.Sprintf("Source item %d no longer exists", job.SourceItemID), nil)
	}

	if min := f.cfg.Paths.StagingMinFreeGiB; min > 0 {
		free, err := availableBytes(f.cfg.Paths.StagingDir)
		if err != nil {
			return services.Wrap(
				services.ErrConfiguration, "fetch", "check staging space",
				"Failed checking staging free space; verify staging_dir exists", err)
		}
		required := uint64(min) << 30
		if free < required {
			return services.Wrap(
				services.ErrTransient, "fetch", "check staging space",
				fmt.Sprintf("Staging has %.1f GiB free, need %d GiB", float64(free)/(1<<30), min), nil)
		}
	}

	job.StatusMessage = "Fetching source media"
	return nil
}

// Execute downloads the media and records the fetch metadata section.
func (f *Fetcher) Execute(ctx context.Context, job *queue.Job) error {
	logger := logging.WithContext(ctx, f.logger)
	item, err := f.store.GetSourceItem(ctx, job.SourceItemID)
	if err != nil || item == nil {
		return services.Wrap(
			services.ErrPrecondition, "fetch", "resolve source item",
			"Source item unavailable", err)
	}

	destDir := filepath.Join(f.cfg.Paths.StagingDir, fmt.Sprintf("job-%d", job.ID))
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return services.Wrap(
			services.ErrConfiguration, "fetch", "ensure staging dir",
			"Failed creating job staging directory; set staging_dir to a writable location", err)
	}

	logger.Info(
		"starting fetch",
		logging.String("external_id", item.ExternalID),
		logging.String("destination_dir", destDir),
	)

	output, err := f.client.Fetch(ctx, item.ExternalID, destDir, f.progressCallback(ctx, job))
	if err != nil {
		return err
	}

	info, err := os.Stat(output.LocalPath)
	if err != nil {
		return services.Wrap(
			services.ErrExternalTool, "fetch", "verify download",
			fmt.Sprintf("Fetch tool reported %s but the file is missing", output.LocalPath), err)
	}
	if output.SizeBytes == 0 {
		output.SizeBytes = info.Size()
	}

	if err := job.Metadata.WriteSection(queue.StageFetch, output); err != nil {
		return services.Wrap(
			services.ErrValidation, "fetch", "record output",
			"Failed recording fetch output", err)
	}
	logger.Info(
		"fetch finished",
		logging.String("local_path", output.LocalPath),
		logging.Int64("size_bytes", output.SizeBytes),
	)
	return nil
}

// HealthCheck verifies the staging directory is writable and a fetch tool is
// configured.
func (f *Fetcher) HealthCheck(ctx context.Context) stage.Health {
	if f.cfg.Tools.FetchCommand == "" {
		return stage.Unhealthy("fetch", "no fetch_command configured")
	}
	if err := os.MkdirAll(f.cfg.Paths.StagingDir, 0o755); err != nil {
		return stage.Unhealthy("fetch", fmt.Sprintf("staging dir unavailable: %v", err))
	}
	return stage.Healthy("fetch")
}

// progressCallback persists stage progress at most every two seconds.
func (f *Fetcher) progressCallback(ctx context.Context, job *queue.Job) workers.Progress {
	var lastPersisted time.Time
	return func(percent float64) {
		if percent < 0 || percent > 100 {
			return
		}
		job.Progress[queue.StageFetch] = percent
		job.RecomputeOverall()
		now := time.Now()
		if !lastPersisted.IsZero() && now.Sub(lastPersisted) < 2*time.Second {
			return
		}
		lastPersisted = now
		// A progress persist is proof of life; refresh the heartbeat so the
		// full-row update cannot roll it back to the claim time.
		heartbeat := now.UTC()
		job.LastHeartbeat = &heartbeat
		if err := f.store.UpdateJob(ctx, job); err != nil {
			logging.WithContext(ctx, f.logger).Warn("failed to persist fetch progress", logging.Error(err))
		}
	}
}
