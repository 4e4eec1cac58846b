package workflow

import (
	"context"
	"sync"
	"time"

	"log/slog"

	"golang.org/x/sync/errgroup"

	"scribe/internal/config"
	"scribe/internal/fetching"
	"scribe/internal/inference"
	"scribe/internal/logging"
	"scribe/internal/normalizing"
	"scribe/internal/queue"
	"scribe/internal/stage"
	"scribe/internal/transforming"
)

// StageSet groups the four pipeline stage handlers.
type StageSet struct {
	Fetch     stage.Handler
	Transform stage.Handler
	Infer     stage.Handler
	Normalize stage.Handler
}

// DefaultStageSet wires the production handlers from configuration.
func DefaultStageSet(cfg *config.Config, store *queue.Store, logger *slog.Logger) StageSet {
	return StageSet{
		Fetch:     fetching.NewFetcher(cfg, store, logger),
		Transform: transforming.NewTransformer(cfg, store, logger),
		Infer:     inference.NewInferencer(cfg, store, logger),
		Normalize: normalizing.NewNormalizer(cfg, store, logger),
	}
}

// Manager coordinates the worker pool that moves jobs through the pipeline.
type Manager struct {
	store        *queue.Store
	cfg          *config.Config
	logger       *slog.Logger
	handlers     map[queue.Stage]stage.Handler
	heartbeat    *HeartbeatMonitor
	retry        RetryPolicy
	pollInterval time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	group   *errgroup.Group
	lastErr error
}

// NewManager constructs a manager with the production stage handlers.
func NewManager(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Manager {
	return NewManagerWithHandlers(cfg, store, logger, DefaultStageSet(cfg, store, logger))
}

// NewManagerWithHandlers allows injecting stage handlers (used in tests).
func NewManagerWithHandlers(cfg *config.Config, store *queue.Store, logger *slog.Logger, set StageSet) *Manager {
	managerLogger := logging.NewComponentLogger(logger, "workflow")
	pollInterval := time.Duration(cfg.Workflow.QueuePollInterval) * time.Second
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	heartbeatInterval := time.Duration(cfg.Workflow.HeartbeatInterval) * time.Second
	if heartbeatInterval <= 0 {
		heartbeatInterval = 5 * time.Second
	}
	heartbeatTimeout := time.Duration(cfg.Workflow.HeartbeatTimeout) * time.Second

	return &Manager{
		store:  store,
		cfg:    cfg,
		logger: managerLogger,
		handlers: map[queue.Stage]stage.Handler{
			queue.StageFetch:     set.Fetch,
			queue.StageTransform: set.Transform,
			queue.StageInfer:     set.Infer,
			queue.StageNormalize: set.Normalize,
		},
		heartbeat:    NewHeartbeatMonitor(store, managerLogger, heartbeatInterval, heartbeatTimeout),
		retry:        NewRetryPolicy(cfg.Workflow.RetryBackoffSeconds),
		pollInterval: pollInterval,
	}
}

func (m *Manager) handlerFor(s queue.Stage) stage.Handler {
	return m.handlers[s]
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

// LastError reports the most recent dispatch error, if any.
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Health collects readiness from every stage handler.
func (m *Manager) Health(ctx context.Context) []stage.Health {
	order := queue.PipelineStages()
	health := make([]stage.Health, 0, len(order))
	for _, s := range order {
		handler := m.handlers[s]
		if handler == nil {
			health = append(health, stage.Unhealthy(string(s), "no handler configured"))
			continue
		}
		health = append(health, handler.HealthCheck(ctx))
	}
	return health
}
