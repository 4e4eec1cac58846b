package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"log/slog"

	"github.com/google/uuid"

	"scribe/internal/logging"
	"scribe/internal/queue"
	"scribe/internal/services"
	"scribe/internal/stage"
)

// processJob runs one stage attempt for a job. The claim is a compare-and-set
// on the pending status, so a job handed to two workers at once executes on
// exactly one of them.
func (m *Manager) processJob(ctx context.Context, workerLogger *slog.Logger, job *queue.Job) error {
	stageName, ok := job.RunnableStage()
	if !ok {
		// A pending job past its last stage only needs its terminal record.
		if !job.IsTerminal() {
			return m.finalizeJob(ctx, workerLogger, job)
		}
		return nil
	}

	claimed, err := m.store.ClaimStage(ctx, job.ID, stageName)
	if err != nil {
		m.setLastError(err)
		workerLogger.Error("failed to claim job", logging.Error(err))
		return err
	}
	if !claimed {
		// Another worker won the job; nothing to do.
		return nil
	}
	job.Status = queue.StatusRunning
	job.CurrentStage = stageName
	// The claim stamped these columns in the database; mirror them on the
	// in-memory row so later full-row persists do not write NULL back over
	// them, which would blind the stuck sweep and heartbeat reclaim.
	claimedAt := time.Now().UTC()
	if job.StartedAt == nil {
		job.StartedAt = &claimedAt
	}
	job.LastHeartbeat = &claimedAt
	job.NextAttemptAt = nil

	stageCtx := services.WithStage(services.WithJobID(ctx, job.ID), string(stageName))
	stageCtx = services.WithRequestID(stageCtx, uuid.NewString())
	stageLogger := logging.WithContext(stageCtx, workerLogger)

	handler := m.handlerFor(stageName)
	if handler == nil {
		err := fmt.Errorf("stage %s has no handler", stageName)
		m.setLastError(err)
		job.SetFailed(err.Error())
		if updateErr := m.store.UpdateJob(stageCtx, job); updateErr != nil {
			stageLogger.Error("failed to persist missing handler failure", logging.Error(updateErr))
		}
		return err
	}
	if aware, ok := handler.(stage.LoggerAware); ok {
		aware.SetLogger(stageLogger)
	}

	return m.executeStage(stageCtx, stageLogger, stageName, handler, job)
}

func (m *Manager) executeStage(ctx context.Context, stageLogger *slog.Logger, stageName queue.Stage, handler stage.Handler, job *queue.Job) error {
	stageStart := time.Now()
	stageLogger.Info(
		"stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.Int("attempt", job.RetryCount+1),
	)

	// Snapshot before the attempt so a failure can roll this stage's partial
	// work back without touching earlier stages' sections.
	preProgress := job.Progress[stageName]

	if err := handler.Prepare(ctx, job); err != nil {
		m.handleStageFailure(ctx, stageLogger, stageName, job, preProgress, err)
		m.setLastError(err)
		return err
	}
	if err := m.store.UpdateJob(ctx, job); err != nil {
		wrapped := fmt.Errorf("persist stage preparation: %w", err)
		stageLogger.Error("failed to persist stage preparation", logging.Error(wrapped))
		m.setLastError(wrapped)
		return wrapped
	}

	execErr := m.executeWithHeartbeat(ctx, handler, job)
	if execErr != nil {
		if errors.Is(execErr, context.Canceled) {
			stageLogger.Debug("stage interrupted by shutdown")
			m.rollbackInterrupted(context.WithoutCancel(ctx), stageLogger, stageName, job, preProgress)
			return execErr
		}
		m.handleStageFailure(ctx, stageLogger, stageName, job, preProgress, execErr)
		m.setLastError(execErr)
		return execErr
	}

	job.Progress[stageName] = 100
	job.RecomputeOverall()
	job.LastHeartbeat = nil
	job.ErrorMessage = ""

	next, _ := queue.NextStage(stageName)
	if next == queue.StageCompleted {
		if err := m.markCompleted(ctx, job); err != nil {
			stageLogger.Error("failed to persist job completion", logging.Error(err))
			m.setLastError(err)
			return err
		}
	} else {
		// Handing off is a persisted transition back to pending at the next
		// stage; the dispatcher picks it up like any other runnable job.
		job.Status = queue.StatusPending
		job.CurrentStage = next
		job.StatusMessage = fmt.Sprintf("Waiting for %s", next)
		job.NextAttemptAt = nil
		if err := m.store.UpdateJob(ctx, job); err != nil {
			wrapped := fmt.Errorf("persist stage handoff: %w", err)
			stageLogger.Error("failed to persist stage handoff", logging.Error(wrapped))
			m.setLastError(wrapped)
			return wrapped
		}
	}

	stageLogger.Info(
		"stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.String("next_stage", string(next)),
		logging.Float64("overall_progress", job.OverallProgress),
		logging.Duration("stage_duration", time.Since(stageStart)),
	)
	return nil
}

// rollbackInterrupted returns a cancelled attempt to pending with its
// pre-attempt progress, so the next start resumes the stage immediately
// instead of waiting for heartbeat reclaim. No retry budget is consumed; a
// shutdown is not a stage failure.
func (m *Manager) rollbackInterrupted(ctx context.Context, logger *slog.Logger, stageName queue.Stage, job *queue.Job, preProgress float64) {
	job.Metadata.DeleteSection(stageName)
	job.Progress[stageName] = preProgress
	job.Status = queue.StatusPending
	job.StatusMessage = "Interrupted by shutdown"
	job.LastHeartbeat = nil
	job.NextAttemptAt = nil
	if err := m.store.UpdateJob(ctx, job); err != nil {
		// Heartbeat reclaim picks the job up later if this write is lost too.
		logger.Warn("failed to roll back interrupted stage", logging.Error(err))
	}
}

func (m *Manager) executeWithHeartbeat(ctx context.Context, handler stage.Handler, job *queue.Job) error {
	hbCtx, hbCancel := context.WithCancel(ctx)
	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go m.heartbeat.StartLoop(hbCtx, &hbWG, job.ID)

	execErr := handler.Execute(ctx, job)
	hbCancel()
	hbWG.Wait()
	return execErr
}

// markCompleted finishes a job whose last stage succeeded and clears its
// staging scratch space.
func (m *Manager) markCompleted(ctx context.Context, job *queue.Job) error {
	now := time.Now().UTC()
	job.Status = queue.StatusCompleted
	job.CurrentStage = queue.StageCompleted
	job.StatusMessage = "Completed"
	job.CompletedAt = &now
	job.NextAttemptAt = nil
	if err := m.store.UpdateJob(ctx, job); err != nil {
		return err
	}
	stagingDir := filepath.Join(m.cfg.Paths.StagingDir, fmt.Sprintf("job-%d", job.ID))
	if err := os.RemoveAll(stagingDir); err != nil {
		// Leftover scratch files never fail a finished job.
		m.logger.Warn("failed to clear staging directory",
			logging.Int64(logging.FieldJobID, job.ID),
			logging.Error(err))
	}
	return nil
}

// finalizeJob handles the edge where a pending job already has every stage at
// 100 percent (for example after a crash between the last stage and its
// terminal update).
func (m *Manager) finalizeJob(ctx context.Context, logger *slog.Logger, job *queue.Job) error {
	claimed, err := m.store.ClaimStage(ctx, job.ID, job.CurrentStage)
	if err != nil {
		return err
	}
	if !claimed {
		return nil
	}
	if err := m.markCompleted(ctx, job); err != nil {
		logger.Error("failed to finalize job", logging.Error(err))
		m.setLastError(err)
		return err
	}
	logger.Info("job finalized", logging.Int64(logging.FieldJobID, job.ID))
	return nil
}
