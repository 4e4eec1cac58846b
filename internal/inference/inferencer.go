package inference

import (
	"context"
	"fmt"
	"os"
	"time"

	"log/slog"

	"scribe/internal/config"
	"scribe/internal/logging"
	"scribe/internal/queue"
	"scribe/internal/services"
	"scribe/internal/stage"
	"scribe/internal/workers"
)

// Inferencer runs speech inference through the configured backend.
type Inferencer struct {
	store  *queue.Store
	cfg    *config.Config
	logger *slog.Logger
	client workers.Inferencer
}

// NewInferencer constructs the inference handler with the configured backend client.
func NewInferencer(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Inferencer {
	client := &workers.CommandInferencer{
		Template:      cfg.Tools.InferCommand,
		ProbeTemplate: cfg.Tools.InferProbe,
	}
	return NewInferencerWithClient(cfg, store, logger, client)
}

// NewInferencerWithClient allows injecting the backend client (used in tests).
func NewInferencerWithClient(cfg *config.Config, store *queue.Store, logger *slog.Logger, client workers.Inferencer) *Inferencer {
	return &Inferencer{
		store:  store,
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "inferencer"),
		client: client,
	}
}

// SetLogger replaces the handler logger.
func (i *Inferencer) SetLogger(logger *slog.Logger) {
	i.logger = logging.NewComponentLogger(logger, "inferencer")
}

// Prepare checks the transform output is present and the backend is ready.
// An unavailable backend is transient: the attempt is retried later rather
// than failed outright.
func (i *Inferencer) Prepare(ctx context.Context, job *queue.Job) error {
	var transformed queue.TransformOutput
	if err := stage.RequireSection(job, queue.StageTransform, &transformed); err != nil {
		return err
	}
	if _, err := os.Stat(transformed.NormalizedPath); err != nil {
		return services.Wrap(
			services.ErrPrecondition, "infer", "verify input",
			fmt.Sprintf("Normalized audio %s is gone; the job cannot proceed", transformed.NormalizedPath), err)
	}
	if err := i.client.Available(ctx); err != nil {
		return err
	}
	job.StatusMessage = "Running inference"
	return nil
}

// Execute runs inference and records its metadata section.
func (i *Inferencer) Execute(ctx context.Context, job *queue.Job) error {
	logger := logging.WithContext(ctx, i.logger)
	var transformed queue.TransformOutput
	if err := stage.RequireSection(job, queue.StageTransform, &transformed); err != nil {
		return err
	}

	hint := ""
	if item, err := i.store.GetSourceItem(ctx, job.SourceItemID); err == nil && item != nil {
		hint = item.Language
	}
	language := workers.CanonicalLanguage(hint, i.cfg.Inference.DefaultLanguage)
	tier := workers.TierForDuration(transformed.DurationSeconds, i.cfg.Inference)

	logger.Info(
		"starting inference",
		logging.String("input", transformed.NormalizedPath),
		logging.String("language", language),
		logging.String("tier", string(tier)),
		logging.Float64("duration_seconds", transformed.DurationSeconds),
	)

	output, err := i.client.Infer(ctx, workers.InferRequest{
		AudioPath:       transformed.NormalizedPath,
		Language:        language,
		Tier:            tier,
		DurationSeconds: transformed.DurationSeconds,
	}, i.progressCallback(ctx, job))
	if err != nil {
		return err
	}
	if len(output.Units) == 0 {
		return services.Wrap(
			services.ErrExternalTool, "infer", "verify output",
			"Inference produced no segments", nil)
	}
	if output.Language == "" {
		output.Language = language
	}
	if output.Tier == "" {
		output.Tier = string(tier)
	}
	if output.DurationSeconds == 0 {
		output.DurationSeconds = transformed.DurationSeconds
	}

	if err := job.Metadata.WriteSection(queue.StageInfer, output); err != nil {
		return services.Wrap(
			services.ErrValidation, "infer", "record output",
			"Failed recording inference output", err)
	}
	logger.Info(
		"inference finished",
		logging.Int("unit_count", len(output.Units)),
		logging.String("language", output.Language),
	)
	return nil
}

// HealthCheck probes backend availability.
func (i *Inferencer) HealthCheck(ctx context.Context) stage.Health {
	if i.cfg.Tools.InferCommand == "" {
		return stage.Unhealthy("infer", "no infer_command configured")
	}
	if err := i.client.Available(ctx); err != nil {
		return stage.Unhealthy("infer", err.Error())
	}
	return stage.Healthy("infer")
}

func (i *Inferencer) progressCallback(ctx context.Context, job *queue.Job) workers.Progress {
	var lastPersisted time.Time
	return func(percent float64) {
		if percent < 0 || percent > 100 {
			return
		}
		job.Progress[queue.StageInfer] = percent
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
		if err := i.store.UpdateJob(ctx, job); err != nil {
			logging.WithContext(ctx, i.logger).Warn("failed to persist inference progress", logging.Error(err))
		}
	}
}
