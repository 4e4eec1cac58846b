package workflow

import (
	"context"
	"fmt"
	"strings"

	"log/slog"

	"scribe/internal/logging"
	"scribe/internal/queue"
	"scribe/internal/services"
)

// handleStageFailure applies the failure policy for one stage attempt:
//
//   - the attempt's partial work is rolled back (its metadata section and
//     stage progress), earlier stages' sections stay intact;
//   - retryable failures consume one unit of retry budget and reschedule the
//     job with backoff;
//   - non-retryable failures fail the job immediately without touching the
//     budget and without a dead letter;
//   - exhausting the budget fails the job and records exactly one dead
//     letter.
func (m *Manager) handleStageFailure(ctx context.Context, logger *slog.Logger, stageName queue.Stage, job *queue.Job, preProgress float64, stageErr error) {
	job.Metadata.DeleteSection(stageName)
	job.Progress[stageName] = preProgress

	message := failureMessage(stageErr)
	job.ErrorMessage = message

	details := services.Details(stageErr)
	logger.Error(
		"stage failed",
		logging.String(logging.FieldEventType, "stage_failure"),
		logging.String("error_kind", details.Kind),
		logging.String("error_message", message),
		logging.Int("retry_count", job.RetryCount),
		logging.Int("max_retries", job.MaxRetries),
		logging.Error(stageErr),
	)

	if !services.Retryable(stageErr) {
		job.SetFailed(message)
		job.NextAttemptAt = nil
		if err := m.store.UpdateJob(ctx, job); err != nil {
			logger.Error("failed to persist fatal failure", logging.Error(err))
		}
		return
	}

	if job.RetryCount < job.MaxRetries {
		delay := m.retry.DelayFor(job.RetryCount)
		job.StatusMessage = fmt.Sprintf("Retrying %s in %s", stageName, delay)
		if err := m.store.ScheduleRetry(ctx, job, delay); err != nil {
			logger.Error("failed to schedule retry", logging.Error(err))
			return
		}
		logger.Warn(
			"stage retry scheduled",
			logging.String(logging.FieldEventType, "stage_retry"),
			logging.Int("retry_count", job.RetryCount),
			logging.Duration("delay", delay),
		)
		return
	}

	// Budget exhausted: terminal failure plus its immutable snapshot.
	job.SetFailed(message)
	job.NextAttemptAt = nil
	if err := m.store.UpdateJob(ctx, job); err != nil {
		logger.Error("failed to persist exhausted failure", logging.Error(err))
	}
	reason := fmt.Sprintf("%s: %s", stageName, message)
	if err := m.store.AppendDeadLetter(ctx, job, reason); err != nil {
		logger.Error("failed to append dead letter", logging.Error(err))
		return
	}
	logger.Error(
		"job dead lettered",
		logging.Alert("dead_letter"),
		logging.String(logging.FieldEventType, "dead_letter"),
		logging.String("reason", reason),
	)
}

func failureMessage(err error) string {
	if err == nil {
		return "stage failed"
	}
	details := services.Details(err)
	message := strings.TrimSpace(details.Message)
	if message == "" {
		message = strings.TrimSpace(err.Error())
	}
	return message
}
