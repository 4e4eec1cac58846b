package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const deadLetterColumns = "id, job_id, owner_id, stage, reason, snapshot_json, requeued, requeued_by, requeued_at, created_at"

// AppendDeadLetter records an exhausted job exactly once. A second append for
// the same job is a no-op thanks to the unique job_id constraint, so replayed
// failure handling cannot duplicate records.
func (s *Store) AppendDeadLetter(ctx context.Context, job *Job, reason string) error {
	if job == nil {
		return errors.New("job is nil")
	}
	snapshot, err := json.Marshal(map[string]any{
		"job_id":           job.ID,
		"owner_id":         job.OwnerID,
		"source_item_id":   job.SourceItemID,
		"stage":            job.CurrentStage,
		"retry_count":      job.RetryCount,
		"max_retries":      job.MaxRetries,
		"error_message":    job.ErrorMessage,
		"metadata":         job.Metadata,
		"overall_progress": job.OverallProgress,
	})
	if err != nil {
		return fmt.Errorf("encode dead letter snapshot: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO dead_letters (job_id, owner_id, stage, reason, snapshot_json, created_at)
         VALUES (?, ?, ?, ?, ?, ?)
         ON CONFLICT(job_id) DO NOTHING`,
		job.ID,
		job.OwnerID,
		job.CurrentStage,
		reason,
		string(snapshot),
		now,
	)
	if err != nil {
		return fmt.Errorf("append dead letter: %w", err)
	}
	return nil
}

// DeadLetterFilter narrows ListDeadLetters results. Zero values match all.
type DeadLetterFilter struct {
	Reason string
	Since  *time.Time
	Until  *time.Time
	Limit  int
}

// ListDeadLetters returns dead letter records newest first.
func (s *Store) ListDeadLetters(ctx context.Context, filter DeadLetterFilter) ([]*DeadLetterRecord, error) {
	query := `SELECT ` + deadLetterColumns + ` FROM dead_letters WHERE 1=1`
	var args []any
	if filter.Reason != "" {
		query += ` AND reason = ?`
		args = append(args, filter.Reason)
	}
	if filter.Since != nil {
		query += ` AND created_at >= ?`
		args = append(args, filter.Since.UTC().Format(time.RFC3339Nano))
	}
	if filter.Until != nil {
		query += ` AND created_at <= ?`
		args = append(args, filter.Until.UTC().Format(time.RFC3339Nano))
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	defer rows.Close()

	var records []*DeadLetterRecord
	for rows.Next() {
		record, err := scanDeadLetter(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// GetDeadLetterByJob returns the record for a job, or (nil, nil) when absent.
func (s *Store) GetDeadLetterByJob(ctx context.Context, jobID int64) (*DeadLetterRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+deadLetterColumns+` FROM dead_letters WHERE job_id = ?`, jobID)
	record, err := scanDeadLetter(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get dead letter: %w", err)
	}
	return record, nil
}

// MarkRequeued flags a dead letter as requeued by an operator. Marking an
// already requeued record again leaves the original attribution in place.
func (s *Store) MarkRequeued(ctx context.Context, id int64, actor string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE dead_letters SET requeued = 1, requeued_by = ?, requeued_at = ?
         WHERE id = ? AND requeued = 0`,
		actor,
		now,
		id,
	)
	if err != nil {
		return fmt.Errorf("mark requeued: %w", err)
	}
	return nil
}

// FailureReasonCounts aggregates dead letters by reason for operator triage.
func (s *Store) FailureReasonCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT reason, COUNT(1) FROM dead_letters GROUP BY reason`)
	if err != nil {
		return nil, fmt.Errorf("failure reason counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var reason string
		var count int
		if err := rows.Scan(&reason, &count); err != nil {
			return nil, err
		}
		counts[reason] = count
	}
	return counts, rows.Err()
}

func scanDeadLetter(scanner interface{ Scan(dest ...any) error }) (*DeadLetterRecord, error) {
	var (
		id          int64
		jobID       int64
		ownerID     string
		stage       string
		reason      string
		snapshot    string
		requeued    int
		requeuedBy  sql.NullString
		requeuedRaw sql.NullString
		createdRaw  string
	)

	if err := scanner.Scan(
		&id,
		&jobID,
		&ownerID,
		&stage,
		&reason,
		&snapshot,
		&requeued,
		&requeuedBy,
		&requeuedRaw,
		&createdRaw,
	); err != nil {
		return nil, err
	}

	record := &DeadLetterRecord{
		ID:           id,
		JobID:        jobID,
		OwnerID:      ownerID,
		Stage:        Stage(stage),
		Reason:       reason,
		SnapshotJSON: snapshot,
		Requeued:     requeued != 0,
		RequeuedBy:   requeuedBy.String,
		RequeuedAt:   parseTimePtr(requeuedRaw),
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		record.CreatedAt = created
	}
	return record, nil
}
