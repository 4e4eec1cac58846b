package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const jobColumns = "id, owner_id, source_item_id, status, current_stage, stage_progress, overall_progress, metadata_json, retry_count, max_retries, status_message, error_message, created_at, updated_at, started_at, completed_at, last_heartbeat, next_attempt_at"

// CreateJob inserts a new pending job at stage none.
func (s *Store) CreateJob(ctx context.Context, ownerID string, sourceItemID int64, maxRetries int) (*Job, error) {
	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)
	progress, err := json.Marshal(NewStageProgress())
	if err != nil {
		return nil, fmt.Errorf("encode stage progress: %w", err)
	}

	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO jobs (
            owner_id, source_item_id, status, current_stage, stage_progress,
            overall_progress, retry_count, max_retries, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, 0, 0, ?, ?, ?)`,
		ownerID,
		nullableID(sourceItemID),
		StatusPending,
		StageNone,
		string(progress),
		maxRetries,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return s.GetJob(ctx, id)
}

// GetJob fetches a job by identifier. A missing job returns (nil, nil).
func (s *Store) GetJob(ctx context.Context, id int64) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// UpdateJob persists changes to an existing job.
func (s *Store) UpdateJob(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("job is nil")
	}
	job.UpdatedAt = time.Now().UTC()
	progress, err := json.Marshal(job.Progress)
	if err != nil {
		return fmt.Errorf("encode stage progress: %w", err)
	}
	_, err = s.db.ExecContext(
		ctx,
		`UPDATE jobs
         SET owner_id = ?, source_item_id = ?, status = ?, current_stage = ?,
             stage_progress = ?, overall_progress = ?, metadata_json = ?,
             retry_count = ?, max_retries = ?, status_message = ?, error_message = ?,
             updated_at = ?, started_at = ?, completed_at = ?, last_heartbeat = ?,
             next_attempt_at = ?
         WHERE id = ?`,
		job.OwnerID,
		nullableID(job.SourceItemID),
		job.Status,
		job.CurrentStage,
		string(progress),
		job.OverallProgress,
		nullableString(job.Metadata.JSON()),
		job.RetryCount,
		job.MaxRetries,
		nullableString(job.StatusMessage),
		nullableString(job.ErrorMessage),
		job.UpdatedAt.Format(time.RFC3339Nano),
		nullableTime(job.StartedAt),
		nullableTime(job.CompletedAt),
		nullableTime(job.LastHeartbeat),
		nullableTime(job.NextAttemptAt),
		job.ID,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	return nil
}

// NextRunnable returns the oldest pending job whose backoff deadline has
// passed, or nil when nothing is due.
func (s *Store) NextRunnable(ctx context.Context) (*Job, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+jobColumns+` FROM jobs
         WHERE status = ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?)
         ORDER BY created_at LIMIT 1`,
		StatusPending,
		now,
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("next runnable job: %w", err)
	}
	return job, nil
}

// ClaimStage transitions a pending job to running at the given stage. The
// compare-and-set on status enforces the single active writer guarantee:
// exactly one caller observes claimed=true for a given pending job.
func (s *Store) ClaimStage(ctx context.Context, id int64, stage Stage) (bool, error) {
	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs
         SET status = ?, current_stage = ?, updated_at = ?,
             started_at = COALESCE(started_at, ?), last_heartbeat = ?, next_attempt_at = NULL
         WHERE id = ? AND status = ?`,
		StatusRunning,
		stage,
		timestamp,
		timestamp,
		timestamp,
		id,
		StatusPending,
	)
	if err != nil {
		return false, fmt.Errorf("claim stage: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected == 1, nil
}

// ScheduleRetry returns a failed attempt to pending at the same stage with a
// backoff deadline, consuming one unit of retry budget.
func (s *Store) ScheduleRetry(ctx context.Context, job *Job, delay time.Duration) error {
	if job == nil {
		return errors.New("job is nil")
	}
	job.Status = StatusPending
	job.RetryCount++
	job.LastHeartbeat = nil
	next := time.Now().UTC().Add(delay)
	job.NextAttemptAt = &next
	return s.UpdateJob(ctx, job)
}

// UpdateHeartbeat refreshes the heartbeat timestamp for an in-flight job.
func (s *Store) UpdateHeartbeat(ctx context.Context, id int64) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs SET last_heartbeat = ?, updated_at = ? WHERE id = ?`,
		now,
		now,
		id,
	); err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

// ReclaimStaleRunning returns running jobs with expired heartbeats to pending
// so they resume at the start of their current stage.
func (s *Store) ReclaimStaleRunning(ctx context.Context, cutoff time.Time) (int64, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE jobs
         SET status = ?, status_message = 'Reclaimed from stale processing',
             last_heartbeat = NULL, updated_at = ?
         WHERE status = ? AND last_heartbeat IS NOT NULL AND last_heartbeat < ?`,
		StatusPending,
		now,
		StatusRunning,
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("reclaim stale jobs: %w", err)
	}
	return res.RowsAffected()
}

// StuckRunning lists jobs that have been running beyond the cutoff. The sweep
// surfaces them for manual inspection and never auto-resolves.
func (s *Store) StuckRunning(ctx context.Context, cutoff time.Time) ([]*Job, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+jobColumns+` FROM jobs
         WHERE status = ? AND started_at IS NOT NULL AND updated_at < ?
         ORDER BY updated_at`,
		StatusRunning,
		cutoff.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("query stuck jobs: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

// JobsByStatus returns jobs matching a status set ordered by creation time,
// or all jobs when no status is provided.
func (s *Store) JobsByStatus(ctx context.Context, statuses ...Status) ([]*Job, error) {
	baseQuery := `SELECT ` + jobColumns + ` FROM jobs`
	orderClause := ` ORDER BY created_at`

	var (
		rows *sql.Rows
		err  error
	)
	if len(statuses) == 0 {
		rows, err = s.db.QueryContext(ctx, baseQuery+orderClause)
	} else {
		placeholders := makePlaceholders(len(statuses))
		args := make([]any, len(statuses))
		for i, status := range statuses {
			args[i] = status
		}
		rows, err = s.db.QueryContext(ctx, baseQuery+` WHERE status IN (`+placeholders+`)`+orderClause, args...)
	}
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

// RetriableFailed returns failed jobs that still have retry budget left.
func (s *Store) RetriableFailed(ctx context.Context) ([]*Job, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE status = ? AND retry_count < max_retries ORDER BY created_at`,
		StatusFailed,
	)
	if err != nil {
		return nil, fmt.Errorf("query retriable failed: %w", err)
	}
	defer rows.Close()
	return collectJobs(rows)
}

// LatestJobForSourceItem returns the most recent job linked to a source item.
func (s *Store) LatestJobForSourceItem(ctx context.Context, sourceItemID int64) (*Job, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE source_item_id = ? ORDER BY id DESC LIMIT 1`,
		sourceItemID,
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest job for source item: %w", err)
	}
	return job, nil
}

// Stats returns a count of jobs grouped by status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		stats[status] = count
	}
	return stats, rows.Err()
}

func collectJobs(rows *sql.Rows) ([]*Job, error) {
	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		id            int64
		ownerID       string
		sourceItemID  sql.NullInt64
		statusStr     string
		stageStr      string
		progressRaw   string
		overall       float64
		metadata      sql.NullString
		retryCount    int
		maxRetries    int
		statusMessage sql.NullString
		errorMessage  sql.NullString
		createdRaw    string
		updatedRaw    string
		startedRaw    sql.NullString
		completedRaw  sql.NullString
		heartbeatRaw  sql.NullString
		nextAttempt   sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&ownerID,
		&sourceItemID,
		&statusStr,
		&stageStr,
		&progressRaw,
		&overall,
		&metadata,
		&retryCount,
		&maxRetries,
		&statusMessage,
		&errorMessage,
		&createdRaw,
		&updatedRaw,
		&startedRaw,
		&completedRaw,
		&heartbeatRaw,
		&nextAttempt,
	); err != nil {
		return nil, err
	}

	progress := NewStageProgress()
	if progressRaw != "" {
		_ = json.Unmarshal([]byte(progressRaw), &progress)
	}

	job := &Job{
		ID:              id,
		OwnerID:         ownerID,
		SourceItemID:    sourceItemID.Int64,
		Status:          Status(statusStr),
		CurrentStage:    Stage(stageStr),
		Progress:        progress,
		OverallProgress: overall,
		Metadata:        BagFromJSON(metadata.String),
		RetryCount:      retryCount,
		MaxRetries:      maxRetries,
		StatusMessage:   statusMessage.String,
		ErrorMessage:    errorMessage.String,
		StartedAt:       parseTimePtr(startedRaw),
		CompletedAt:     parseTimePtr(completedRaw),
		LastHeartbeat:   parseTimePtr(heartbeatRaw),
		NextAttemptAt:   parseTimePtr(nextAttempt),
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		job.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		job.UpdatedAt = updated
	}
	return job, nil
}
