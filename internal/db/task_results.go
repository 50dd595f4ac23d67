package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// LoadResult returns the stored return value of a finished task.
func (db *DB) LoadResult(ctx context.Context, key string) (json.RawMessage, bool, error) {
	var raw string
	err := db.QueryRowContext(ctx, `SELECT return_value_json FROM task_results WHERE task_key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load task result: %w", err)
	}
	return json.RawMessage(raw), true, nil
}

// SaveResult stores the return value of a finished task.
func (db *DB) SaveResult(ctx context.Context, key, name string, value json.RawMessage) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO task_results (task_key, task_name, return_value_json)
		VALUES (?, ?, ?)
		ON CONFLICT(task_key) DO UPDATE SET
			return_value_json = excluded.return_value_json`,
		key, name, string(value),
	)
	if err != nil {
		return fmt.Errorf("failed to save task result: %w", err)
	}
	return nil
}

// CountResults returns the number of stored results per task name.
func (db *DB) CountResults(ctx context.Context) (map[string]int, error) {
	rows, err := db.QueryContext(ctx, `SELECT task_name, COUNT(*) FROM task_results GROUP BY task_name`)
	if err != nil {
		return nil, fmt.Errorf("failed to count task results: %w", err)
	}
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var name string
		var n int
		if err := rows.Scan(&name, &n); err != nil {
			return nil, err
		}
		out[name] = n
	}
	return out, rows.Err()
}
