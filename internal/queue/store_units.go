package queue

import (
	"context"
	"errors"
	"fmt"
)

// ReplaceUnits atomically swaps a source item's transcript for the supplied
// set. A retried normalize run therefore never leaves units from the previous
// attempt behind.
func (s *Store) ReplaceUnits(ctx context.Context, sourceItemID int64, units []ResultUnit) error {
	if sourceItemID == 0 {
		return errors.New("source item id is zero")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin units tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM result_units WHERE source_item_id = ?`, sourceItemID); err != nil {
		return fmt.Errorf("clear units: %w", err)
	}

	stmt, err := tx.PrepareContext(
		ctx,
		`INSERT INTO result_units (source_item_id, sequence_index, start_seconds, end_seconds, confidence, content)
         VALUES (?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("prepare unit insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, unit := range units {
		if _, err := stmt.ExecContext(
			ctx,
			sourceItemID,
			unit.SequenceIndex,
			unit.StartSeconds,
			unit.EndSeconds,
			unit.Confidence,
			unit.Content,
		); err != nil {
			return fmt.Errorf("insert unit %d: %w", unit.SequenceIndex, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit units: %w", err)
	}
	return nil
}

// UnitsForSourceItem returns a transcript in sequence order.
func (s *Store) UnitsForSourceItem(ctx context.Context, sourceItemID int64) ([]ResultUnit, error) {
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT source_item_id, sequence_index, start_seconds, end_seconds, confidence, content
         FROM result_units WHERE source_item_id = ? ORDER BY sequence_index`,
		sourceItemID,
	)
	if err != nil {
		return nil, fmt.Errorf("query units: %w", err)
	}
	defer rows.Close()

	var units []ResultUnit
	for rows.Next() {
		var unit ResultUnit
		if err := rows.Scan(
			&unit.SourceItemID,
			&unit.SequenceIndex,
			&unit.StartSeconds,
			&unit.EndSeconds,
			&unit.Confidence,
			&unit.Content,
		); err != nil {
			return nil, err
		}
		units = append(units, unit)
	}
	return units, rows.Err()
}

// CountUnits returns the number of stored transcript units for an item.
func (s *Store) CountUnits(ctx context.Context, sourceItemID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(
		ctx,
		`SELECT COUNT(1) FROM result_units WHERE source_item_id = ?`,
		sourceItemID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count units: %w", err)
	}
	return count, nil
}
