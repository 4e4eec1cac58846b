package transforming

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

// Transformer normalizes fetched media via the configured transform tool.
type Transformer struct {
	store  *queue.Store
	cfg    *config.Config
	logger *slog.Logger
	client workers.Transformer
}

// NewTransformer constructs the transform handler with the configured tool client.
func NewTransformer(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Transformer {
	return NewTransformerWithClient(cfg, store, logger, &workers.CommandTransformer{Template: cfg.Tools.TransformCommand})
}

// NewTransformerWithClient allows injecting the transform client (used in tests).
func NewTransformerWithClient(cfg *config.Config, store *queue.Store, logger *slog.Logger, client workers.Transformer) *Transformer {
	return &Transformer{
		store:  store,
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "transformer"),
		client: client,
	}
}

// SetLogger replaces the handler logger.
func (t *Transformer) SetLogger(logger *slog.Logger) {
	t.logger = logging.NewComponentLogger(logger, "transformer")
}

// Prepare checks that the fetch stage left a readable input behind.
func (t *Transformer) Prepare(ctx context.Context, job *queue.Job) error {
	var fetched queue.FetchOutput
	if err := stage.RequireSection(job, queue.StageFetch, &fetched); err != nil {
		return err
	}
	if _, err := os.Stat(fetched.LocalPath); err != nil {
		return services.Wrap(
			services.ErrPrecondition, "transform", "verify input",
			fmt.Sprintf("Fetched file %s is gone; the job cannot proceed", fetched.LocalPath), err)
	}
	job.StatusMessage = "Normalizing media"
	return nil
}

// Execute converts the fetched file and records the transform metadata
// section, updating the source item's measured duration.
func (t *Transformer) Execute(ctx context.Context, job *queue.Job) error {
	logger := logging.WithContext(ctx, t.logger)
	var fetched queue.FetchOutput
	if err := stage.RequireSection(job, queue.StageFetch, &fetched); err != nil {
		return err
	}

	destDir := filepath.Join(t.cfg.Paths.StagingDir, fmt.Sprintf("job-%d", job.ID))
	logger.Info(
		"starting transform",
		logging.String("input", fetched.LocalPath),
		logging.String("destination_dir", destDir),
	)

	output, err := t.client.Transform(ctx, fetched.LocalPath, destDir, t.progressCallback(ctx, job))
	if err != nil {
		return err
	}
	if output.DurationSeconds <= 0 {
		return services.Wrap(
			services.ErrExternalTool, "transform", "verify output",
			"Transform tool reported a non-positive duration", nil)
	}
	if _, err := os.Stat(output.NormalizedPath); err != nil {
		return services.Wrap(
			services.ErrExternalTool, "transform", "verify output",
			fmt.Sprintf("Transform tool reported %s but the file is missing", output.NormalizedPath), err)
	}

	if err := job.Metadata.WriteSection(queue.StageTransform, output); err != nil {
		return services.Wrap(
			services.ErrValidation, "transform", "record output",
			"Failed recording transform output", err)
	}

	// The measured duration supersedes whatever the catalog claimed.
	if item, err := t.store.GetSourceItem(ctx, job.SourceItemID); err == nil && item != nil {
		item.DurationSeconds = output.DurationSeconds
		if err := t.store.UpdateSourceItem(ctx, item); err != nil {
			logger.Warn("failed to persist measured duration", logging.Error(err))
		}
	}

	// The raw download is no longer needed once the normalized file exists;
	// dropping it bounds staging disk usage for long pipelines.
	if output.NormalizedPath != fetched.LocalPath {
		if err := os.Remove(fetched.LocalPath); err != nil && !os.IsNotExist(err) {
			logger.Warn("failed to remove fetched source file", logging.Error(err))
		}
	}

	logger.Info(
		"transform finished",
		logging.String("normalized_path", output.NormalizedPath),
		logging.Float64("duration_seconds", output.DurationSeconds),
	)
	return nil
}

// HealthCheck verifies a transform tool is configured.
func (t *Transformer) HealthCheck(ctx context.Context) stage.Health {
	if t.cfg.Tools.TransformCommand == "" {
		return stage.Unhealthy("transform", "no transform_command configured")
	}
	return stage.Healthy("transform")
}

func (t *Transformer) progressCallback(ctx context.Context, job *queue.Job) workers.Progress {
	var lastPersisted time.Time
	return func(percent float64) {
		if percent < 0 || percent > 100 {
			return
		}
		job.Progress[queue.StageTransform] = percent
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
		if err := t.store.UpdateJob(ctx, job); err != nil {
			logging.WithContext(ctx, t.logger).Warn("failed to persist transform progress", logging.Error(err))
		}
	}
}
