package db

import (
	"context"
	"fmt"

	"github.com/banshee-data/sortingview/internal/sorting"
)

// SaveSnippets replaces the snippet windows stored for a recording and
// sorting.
func (db *DB) SaveSnippets(ctx context.Context, recordingID, sortingID string, snippets []sorting.Snippet) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM snippets WHERE recording_id = ? AND sorting_id = ?`, recordingID, sortingID); err != nil {
		return fmt.Errorf("failed to clear snippets: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO snippets (recording_id, sorting_id, unit_id, event_frame, start_frame, end_frame)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()
	for _, s := range snippets {
		if _, err := stmt.ExecContext(ctx, recordingID, sortingID, s.UnitID, s.EventFrame, s.StartFrame, s.EndFrame); err != nil {
			return fmt.Errorf("failed to insert snippet: %w", err)
		}
	}
	return tx.Commit()
}

// ListSnippets returns the stored windows of one unit in event order.
func (db *DB) ListSnippets(ctx context.Context, recordingID, sortingID string, unitID int) ([]sorting.Snippet, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT unit_id, event_frame, start_frame, end_frame FROM snippets
		WHERE recording_id = ? AND sorting_id = ? AND unit_id = ?
		ORDER BY event_frame`, recordingID, sortingID, unitID)
	if err != nil {
		return nil, fmt.Errorf("failed to list snippets: %w", err)
	}
	defer rows.Close()
	out := []sorting.Snippet{}
	for rows.Next() {
		var s sorting.Snippet
		if err := rows.Scan(&s.UnitID, &s.EventFrame, &s.StartFrame, &s.EndFrame); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// CountSnippets returns how many windows are stored for a recording and
// sorting.
func (db *DB) CountSnippets(ctx context.Context, recordingID, sortingID string) (int, error) {
	var n int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM snippets WHERE recording_id = ? AND sorting_id = ?`, recordingID, sortingID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count snippets: %w", err)
	}
	return n, nil
}
