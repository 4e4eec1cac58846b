package normalizing

import (
	"context"

	"log/slog"

	"scribe/internal/config"
	"scribe/internal/logging"
	"scribe/internal/queue"
	"scribe/internal/services"
	"scribe/internal/stage"
	"scribe/internal/workers"
)

// Normalizer shapes raw inference segments into the stored transcript.
type Normalizer struct {
	store  *queue.Store
	cfg    *config.Config
	logger *slog.Logger
}

// NewNormalizer constructs the normalize handler.
func NewNormalizer(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Normalizer {
	return &Normalizer{
		store:  store,
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "normalizer"),
	}
}

// SetLogger replaces the handler logger.
func (n *Normalizer) SetLogger(logger *slog.Logger) {
	n.logger = logging.NewComponentLogger(logger, "normalizer")
}

// Prepare checks the inference output is present.
func (n *Normalizer) Prepare(ctx context.Context, job *queue.Job) error {
	var inferred queue.InferOutput
	if err := stage.RequireSection(job, queue.StageInfer, &inferred); err != nil {
		return err
	}
	if job.SourceItemID == 0 {
		return services.Wrap(
			services.ErrPrecondition, "normalize", "resolve source item",
			"Job has no linked source item", nil)
	}
	job.StatusMessage = "Normalizing transcript"
	return nil
}

// Execute splits oversized segments, validates the result, and atomically
// replaces the item's stored transcript. Rerunning after a retry overwrites
// the previous attempt's units rather than appending to them.
func (n *Normalizer) Execute(ctx context.Context, job *queue.Job) error {
	logger := logging.WithContext(ctx, n.logger)
	var inferred queue.InferOutput
	if err := stage.RequireSection(job, queue.StageInfer, &inferred); err != nil {
		return err
	}

	normalized := SplitUnits(inferred.Units, n.cfg.Transcripts.MaxUnitLength)
	if err := ValidateUnits(normalized); err != nil {
		return err
	}

	units := make([]queue.ResultUnit, len(normalized))
	for i, unit := range normalized {
		units[i] = queue.ResultUnit{
			SourceItemID:  job.SourceItemID,
			SequenceIndex: i,
			StartSeconds:  unit.StartSeconds,
			EndSeconds:    unit.EndSeconds,
			Confidence:    unit.Confidence,
			Content:       unit.Content,
		}
	}

	if err := n.store.ReplaceUnits(ctx, job.SourceItemID, units); err != nil {
		return services.Wrap(
			services.ErrTransient, "normalize", "store transcript",
			"Failed storing transcript units", err)
	}

	language := workers.CanonicalLanguage(inferred.Language, n.cfg.Inference.DefaultLanguage)
	if err := n.store.MarkTranscribed(ctx, job.SourceItemID, len(units), language); err != nil {
		return services.Wrap(
			services.ErrTransient, "normalize", "finalize item",
			"Failed stamping source item", err)
	}

	if err := job.Metadata.WriteSection(queue.StageNormalize, queue.NormalizeOutput{
		UnitCount: len(units),
		SplitFrom: len(inferred.Units),
	}); err != nil {
		return services.Wrap(
			services.ErrValidation, "normalize", "record output",
			"Failed recording normalize output", err)
	}

	logger.Info(
		"transcript stored",
		logging.Int("unit_count", len(units)),
		logging.Int("raw_segments", len(inferred.Units)),
		logging.String("language", language),
	)
	return nil
}

// HealthCheck reports readiness; normalization has no external dependencies
// beyond the store.
func (n *Normalizer) HealthCheck(ctx context.Context) stage.Health {
	if n.cfg.Transcripts.MaxUnitLength <= 0 {
		return stage.Unhealthy("normalize", "max_unit_length must be positive")
	}
	return stage.Healthy("normalize")
}
