package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const sourceItemColumns = "id, external_id, title, author, description, thumbnail_url, published_at, duration_seconds, language, transcribed_at, unit_count, created_at, updated_at"

// CreateSubmission creates a source item and its job in one transaction so a
// crash between the two writes can never strand a half-registered submission.
func (s *Store) CreateSubmission(ctx context.Context, item *SourceItem, ownerID string, maxRetries int) (*Job, error) {
	if item == nil {
		return nil, errors.New("source item is nil")
	}
	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin submission tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(
		ctx,
		`INSERT INTO source_items (
            external_id, title, author, description, thumbnail_url,
            published_at, duration_seconds, language, unit_count, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?)`,
		item.ExternalID,
		nullableString(item.Title),
		nullableString(item.Author),
		nullableString(item.Description),
		nullableString(item.ThumbnailURL),
		nullableTime(item.PublishedAt),
		item.DurationSeconds,
		nullableString(item.Language),
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert source item: %w", err)
	}
	itemID, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("source item id: %w", err)
	}
	item.ID = itemID
	item.CreatedAt = now
	item.UpdatedAt = now

	progress := NewStageProgress()
	progressJSON, err := marshalProgress(progress)
	if err != nil {
		return nil, err
	}
	res, err = tx.ExecContext(
		ctx,
		`INSERT INTO jobs (
            owner_id, source_item_id, status, current_stage, stage_progress,
            overall_progress, retry_count, max_retries, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, 0, 0, ?, ?, ?)`,
		ownerID,
		itemID,
		StatusPending,
		StageNone,
		progressJSON,
		maxRetries,
		timestamp,
		timestamp,
	)
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	jobID, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("job id: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit submission: %w", err)
	}

	return &Job{
		ID:           jobID,
		OwnerID:      ownerID,
		SourceItemID: itemID,
		Status:       StatusPending,
		CurrentStage: StageNone,
		Progress:     progress,
		Metadata:     Bag{},
		MaxRetries:   maxRetries,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// GetSourceItem fetches a source item by identifier. Missing returns (nil, nil).
func (s *Store) GetSourceItem(ctx context.Context, id int64) (*SourceItem, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sourceItemColumns+` FROM source_items WHERE id = ?`, id)
	item, err := scanSourceItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get source item: %w", err)
	}
	return item, nil
}

// FindSourceItemByExternalID looks up an item by its canonical external
// identifier. Missing returns (nil, nil).
func (s *Store) FindSourceItemByExternalID(ctx context.Context, externalID string) (*SourceItem, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sourceItemColumns+` FROM source_items WHERE external_id = ?`, externalID)
	item, err := scanSourceItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find source item: %w", err)
	}
	return item, nil
}

// UpdateSourceItem persists changes to an existing source item.
func (s *Store) UpdateSourceItem(ctx context.Context, item *SourceItem) error {
	if item == nil {
		return errors.New("source item is nil")
	}
	item.UpdatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE source_items
         SET external_id = ?, title = ?, author = ?, description = ?, thumbnail_url = ?,
             published_at = ?, duration_seconds = ?, language = ?, transcribed_at = ?,
             unit_count = ?, updated_at = ?
         WHERE id = ?`,
		item.ExternalID,
		nullableString(item.Title),
		nullableString(item.Author),
		nullableString(item.Description),
		nullableString(item.ThumbnailURL),
		nullableTime(item.PublishedAt),
		item.DurationSeconds,
		nullableString(item.Language),
		nullableTime(item.TranscribedAt),
		item.UnitCount,
		item.UpdatedAt.Format(time.RFC3339Nano),
		item.ID,
	)
	if err != nil {
		return fmt.Errorf("update source item: %w", err)
	}
	return nil
}

// MarkTranscribed stamps the terminal fields once the transcript is stored.
func (s *Store) MarkTranscribed(ctx context.Context, itemID int64, unitCount int, language string) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(
		ctx,
		`UPDATE source_items
         SET transcribed_at = ?, unit_count = ?, language = ?, updated_at = ?
         WHERE id = ?`,
		now,
		unitCount,
		nullableString(language),
		now,
		itemID,
	)
	if err != nil {
		return fmt.Errorf("mark transcribed: %w", err)
	}
	return nil
}

func scanSourceItem(scanner interface{ Scan(dest ...any) error }) (*SourceItem, error) {
	var (
		id            int64
		externalID    string
		title         sql.NullString
		author        sql.NullString
		description   sql.NullString
		thumbnail     sql.NullString
		publishedRaw  sql.NullString
		duration      float64
		language      sql.NullString
		transcribed   sql.NullString
		unitCount     int
		createdRaw    string
		updatedRaw    string
	)

	if err := scanner.Scan(
		&id,
		&externalID,
		&title,
		&author,
		&description,
		&thumbnail,
		&publishedRaw,
		&duration,
		&language,
		&transcribed,
		&unitCount,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	item := &SourceItem{
		ID:              id,
		ExternalID:      externalID,
		Title:           title.String,
		Author:          author.String,
		Description:     description.String,
		ThumbnailURL:    thumbnail.String,
		PublishedAt:     parseTimePtr(publishedRaw),
		DurationSeconds: duration,
		Language:        language.String,
		TranscribedAt:   parseTimePtr(transcribed),
		UnitCount:       unitCount,
	}
	if created, err := parseTimeString(createdRaw); err == nil {
		item.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw); err == nil {
		item.UpdatedAt = updated
	}
	return item, nil
}
