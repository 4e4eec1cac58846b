package workflow

import (
	"context"
	"errors"
	"time"

	"log/slog"

	"golang.org/x/sync/errgroup"

	"scribe/internal/logging"
)

// Start launches the worker pool and the background sweep. It returns once
// the workers are running; Stop shuts them down.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	workerCount := m.cfg.Workflow.WorkerCount
	if workerCount <= 0 {
		workerCount = 1
	}

	runCtx, cancel := context.WithCancel(ctx)
	group, groupCtx := errgroup.WithContext(runCtx)
	m.cancel = cancel
	m.group = group
	m.running = true
	m.mu.Unlock()

	for i := 0; i < workerCount; i++ {
		worker := i
		group.Go(func() error {
			m.runWorker(groupCtx, m.logger.With(logging.Int("worker", worker)))
			return nil
		})
	}
	group.Go(func() error {
		m.runSweep(groupCtx)
		return nil
	})

	m.logger.Info(
		"workflow started",
		logging.Int("worker_count", workerCount),
		logging.Duration("poll_interval", m.pollInterval),
	)
	return nil
}

// Stop terminates background processing and waits for completion.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	group := m.group
	m.running = false
	m.cancel = nil
	m.group = nil
	m.mu.Unlock()

	cancel()
	_ = group.Wait()
	m.logger.Info("workflow stopped")
}

func (m *Manager) runWorker(ctx context.Context, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job, err := m.store.NextRunnable(ctx)
		if err != nil {
			m.handleDispatchError(ctx, logger, err)
			continue
		}
		if job == nil {
			m.waitForJobOrShutdown(ctx)
			continue
		}

		if err := m.processJob(ctx, logger, job); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
		}
	}
}

// runSweep periodically reclaims jobs with expired heartbeats and surfaces
// long-running jobs for operator attention. Stuck jobs are reported, never
// auto-resolved.
func (m *Manager) runSweep(ctx context.Context) {
	interval := m.heartbeat.Interval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger := logging.NewComponentLogger(m.logger, "sweep")
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if err := m.heartbeat.ReclaimStale(ctx, logger); err != nil {
			logger.Warn("reclaim stale jobs failed; interrupted work may remain claimed",
				logging.Error(err),
				logging.String(logging.FieldEventType, "heartbeat_reclaim_failed"),
				logging.String(logging.FieldErrorHint, "check queue database access"),
			)
		}
		m.surfaceStuckJobs(ctx, logger)
	}
}

func (m *Manager) surfaceStuckJobs(ctx context.Context, logger *slog.Logger) {
	timeout := time.Duration(m.cfg.Workflow.StuckJobTimeoutMinutes) * time.Minute
	if timeout <= 0 {
		return
	}
	cutoff := time.Now().Add(-timeout)
	stuck, err := m.store.StuckRunning(ctx, cutoff)
	if err != nil {
		logger.Warn("stuck job scan failed", logging.Error(err))
		return
	}
	for _, job := range stuck {
		logger.Warn("job running past stuck threshold",
			logging.Alert("stuck_job"),
			logging.Int64(logging.FieldJobID, job.ID),
			logging.String(logging.FieldStage, string(job.CurrentStage)),
			logging.Duration("running_for", time.Since(job.UpdatedAt)),
		)
	}
}

func (m *Manager) handleDispatchError(ctx context.Context, logger *slog.Logger, err error) {
	m.setLastError(err)
	logger.Error("failed to fetch next runnable job",
		logging.Error(err),
		logging.String(logging.FieldEventType, "queue_fetch_failed"),
		logging.String(logging.FieldErrorHint, "check queue database access"),
	)
	retryInterval := time.Duration(m.cfg.Workflow.ErrorRetryInterval) * time.Second
	if retryInterval <= 0 {
		retryInterval = m.pollInterval
	}
	select {
	case <-ctx.Done():
	case <-time.After(retryInterval):
	}
}

func (m *Manager) waitForJobOrShutdown(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(m.pollInterval):
	}
}

// RunUntilIdle drains the queue synchronously: it processes runnable jobs on
// the calling goroutine until none remain. Used by tests and one-shot runs.
func (m *Manager) RunUntilIdle(ctx context.Context) error {
	for {
		job, err := m.store.NextRunnable(ctx)
		if err != nil {
			return err
		}
		if job == nil {
			return nil
		}
		if err := m.processJob(ctx, m.logger, job); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
		}
	}
}
