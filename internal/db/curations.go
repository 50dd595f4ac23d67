package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/banshee-data/sortingview/internal/sorting"
)

// GetCuration returns the curation of a sorting; a sorting never curated
// has an empty one.
func (db *DB) GetCuration(ctx context.Context, sortingID string) (*sorting.Curation, error) {
	return getCuration(ctx, db.DB, sortingID)
}

type queryRower interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getCuration(ctx context.Context, q queryRower, sortingID string) (*sorting.Curation, error) {
	var raw string
	err := q.QueryRowContext(ctx, `SELECT curation_json FROM curations WHERE sorting_id = ?`, sortingID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return &sorting.Curation{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get curation: %w", err)
	}
	var c sorting.Curation
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return nil, fmt.Errorf("decode curation of %s: %w", sortingID, err)
	}
	return &c, nil
}

// ApplyCurationAction applies a to the stored curation of a sorting and
// returns the result.
func (db *DB) ApplyCurationAction(ctx context.Context, sortingID string, a sorting.CurationAction) (*sorting.Curation, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM sortings WHERE sorting_id = ?`, sortingID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to check sorting: %w", err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("sorting %s: %w", sortingID, ErrNotFound)
	}

	current, err := getCuration(ctx, tx, sortingID)
	if err != nil {
		return nil, err
	}
	next, err := current.Apply(a)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(next)
	if err != nil {
		return nil, fmt.Errorf("marshal curation: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO curations (sorting_id, curation_json, updated_at)
		VALUES (?, ?, STRFTIME('%s', 'now'))
		ON CONFLICT(sorting_id) DO UPDATE SET
			curation_json = excluded.curation_json,
			updated_at = excluded.updated_at`,
		sortingID, string(raw),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to save curation: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return next, nil
}
