package workflow

import (
	"context"
	"fmt"

	"scribe/internal/queue"
)

// RequeueDeadLetter returns a dead-lettered job to the queue with a fresh
// retry budget. The dead letter record stays behind as an audit trail,
// flagged with the operator who requeued it.
func RequeueDeadLetter(ctx context.Context, store *queue.Store, jobID int64, actor string) (*queue.Job, error) {
	record, err := store.GetDeadLetterByJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, fmt.Errorf("job %d has no dead letter record", jobID)
	}

	job, err := store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, fmt.Errorf("job %d not found", jobID)
	}
	if job.Status != queue.StatusFailed {
		return nil, fmt.Errorf("job %d is %s, only failed jobs can be requeued", jobID, job.Status)
	}

	job.Status = queue.StatusPending
	job.RetryCount = 0
	job.ErrorMessage = ""
	job.StatusMessage = fmt.Sprintf("Requeued by %s", actor)
	job.NextAttemptAt = nil
	job.CompletedAt = nil
	job.LastHeartbeat = nil
	// The interrupted stage reruns from its beginning.
	job.Progress[job.CurrentStage] = 0
	if err := store.UpdateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("requeue job: %w", err)
	}
	if err := store.MarkRequeued(ctx, record.ID, actor); err != nil {
		return nil, err
	}
	return job, nil
}
