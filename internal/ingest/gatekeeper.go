package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"scribe/internal/config"
	"scribe/internal/logging"
	"scribe/internal/queue"
	"scribe/internal/ratelimit"
	"scribe/internal/services"
	"scribe/internal/workers"
)

// ErrRateLimited reports a submission rejected by the per-owner throttle.
var ErrRateLimited = errors.New("submission rate limited")

// SubmitResult is the gatekeeper's answer to one submission.
type SubmitResult struct {
	Job           *queue.Job
	Item          *queue.SourceItem
	AlreadyExists bool
}

// Gatekeeper vets submissions before they reach the queue. Checks run
// cheapest first: length cap, throttle, canonicalization, dedup, and only
// then the metadata round trip.
type Gatekeeper struct {
	cfg      *config.Config
	store    *queue.Store
	logger   *slog.Logger
	limiter  ratelimit.Counter
	metadata workers.MetadataFetcher

	sleep func(ctx context.Context, d time.Duration) error
}

// NewGatekeeper constructs the gatekeeper with the configured metadata client.
func NewGatekeeper(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Gatekeeper {
	var fetcher workers.MetadataFetcher
	if cfg.Submission.MetadataBaseURL != "" {
		timeout := time.Duration(cfg.Submission.MetadataTimeoutSeconds) * time.Second
		fetcher = workers.NewHTTPMetadataFetcher(cfg.Submission.MetadataBaseURL, timeout)
	}
	limiter := ratelimit.NewWindowCounter(cfg.Submission.RateLimitPerMinute, time.Minute)
	return NewGatekeeperWithDependencies(cfg, store, logger, limiter, fetcher)
}

// NewGatekeeperWithDependencies allows injecting all collaborators (used in tests).
func NewGatekeeperWithDependencies(cfg *config.Config, store *queue.Store, logger *slog.Logger, limiter ratelimit.Counter, metadata workers.MetadataFetcher) *Gatekeeper {
	return &Gatekeeper{
		cfg:      cfg,
		store:    store,
		logger:   logging.NewComponentLogger(logger, "gatekeeper"),
		limiter:  limiter,
		metadata: metadata,
		sleep:    sleepContext,
	}
}

// Submit vets one submission and, when accepted, registers the source item
// and its job atomically. Resubmitting a known identifier is idempotent: the
// existing item and its latest job come back with AlreadyExists set, and no
// new work is created.
func (g *Gatekeeper) Submit(ctx context.Context, ownerID, rawIdentifier string) (SubmitResult, error) {
	ctx = services.WithRequestID(ctx, uuid.NewString())
	logger := logging.WithContext(ctx, g.logger)

	// Emptiness and length are bounded checks safe to run before anything
	// else; parsing proper waits until after the throttle.
	if strings.TrimSpace(rawIdentifier) == "" {
		return SubmitResult{}, fmt.Errorf("%w: identifier is empty", ErrInvalidIdentifier)
	}
	if max := g.cfg.Submission.MaxIdentifierLength; max > 0 && len(rawIdentifier) > max {
		return SubmitResult{}, fmt.Errorf("%w: identifier exceeds %d bytes", ErrInvalidIdentifier, max)
	}

	// The throttle sees every attempt, valid or not, so a misbehaving owner
	// cannot probe for free by sending garbage.
	if g.limiter != nil && !g.limiter.Allow(ownerID) {
		logger.Warn("submission throttled", logging.String("owner_id", ownerID))
		return SubmitResult{}, fmt.Errorf("%w: owner %s exceeded %d per minute",
			ErrRateLimited, ownerID, g.cfg.Submission.RateLimitPerMinute)
	}

	externalID, err := CanonicalExternalID(rawIdentifier)
	if err != nil {
		logger.Warn("submission rejected", logging.String("identifier", rawIdentifier), logging.Error(err))
		return SubmitResult{}, err
	}
	logger = logger.With(logging.String("external_id", externalID))

	existing, err := g.store.FindSourceItemByExternalID(ctx, externalID)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("lookup source item: %w", err)
	}
	if existing != nil {
		job, err := g.store.LatestJobForSourceItem(ctx, existing.ID)
		if err != nil {
			return SubmitResult{}, fmt.Errorf("lookup existing job: %w", err)
		}
		logger.Info("duplicate submission", logging.Int64("source_item_id", existing.ID))
		return SubmitResult{Job: job, Item: existing, AlreadyExists: true}, nil
	}

	meta, err := g.fetchMetadata(ctx, logger, externalID)
	if err != nil {
		return SubmitResult{}, err
	}

	item := &queue.SourceItem{
		ExternalID:      externalID,
		Title:           meta.Title,
		Author:          meta.Author,
		Description:     meta.Description,
		ThumbnailURL:    meta.ThumbnailURL,
		PublishedAt:     meta.PublishedAt,
		DurationSeconds: meta.DurationSeconds,
		Language:        meta.Language,
	}
	job, err := g.store.CreateSubmission(ctx, item, ownerID, g.cfg.Workflow.MaxRetries)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("register submission: %w", err)
	}

	logger.Info(
		"submission accepted",
		logging.Int64("job_id", job.ID),
		logging.Int64("source_item_id", item.ID),
		logging.String("title", meta.Title),
	)
	return SubmitResult{Job: job, Item: item}, nil
}

// fetchMetadata resolves catalog metadata with bounded retries. Only
// transient failures are retried; a missing or rejected item fails the
// submission immediately. With no fetcher configured the submission proceeds
// with an empty record.
func (g *Gatekeeper) fetchMetadata(ctx context.Context, logger *slog.Logger, externalID string) (workers.Metadata, error) {
	if g.metadata == nil {
		return workers.Metadata{}, nil
	}

	attempts := g.cfg.Submission.MetadataRetryAttempts
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := metadataBackoff(g.cfg.Submission.MetadataBackoffSeconds, attempt-1)
			logger.Warn(
				"metadata lookup retrying",
				logging.Int("attempt", attempt+1),
				logging.Duration("delay", delay),
				logging.Error(lastErr),
			)
			if err := g.sleep(ctx, delay); err != nil {
				return workers.Metadata{}, err
			}
		}
		meta, err := g.metadata.Fetch(ctx, externalID)
		if err == nil {
			return meta, nil
		}
		lastErr = err
		if !services.Retryable(err) {
			break
		}
	}
	return workers.Metadata{}, lastErr
}

func metadataBackoff(schedule []int, index int) time.Duration {
	if len(schedule) == 0 {
		return 10 * time.Second
	}
	if index >= len(schedule) {
		index = len(schedule) - 1
	}
	return time.Duration(schedule[index]) * time.Second
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
