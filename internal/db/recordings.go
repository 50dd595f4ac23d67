package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/banshee-data/sortingview/internal/sorting"
)

// CreateRecording stores a recording, assigning an id when it has none.
func (db *DB) CreateRecording(ctx context.Context, r *sorting.Recording) error {
	if err := r.Validate(); err != nil {
		return fmt.Errorf("invalid recording: %w", err)
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO recordings (recording_id, label, sampling_frequency, num_frames, num_channels)
		VALUES (?, ?, ?, ?, ?)`,
		r.ID, r.Label, r.SamplingFrequency, r.NumFrames, r.NumChannels,
	)
	if err != nil {
		return fmt.Errorf("failed to create recording: %w", err)
	}
	return nil
}

// GetRecording returns a recording by id.
func (db *DB) GetRecording(ctx context.Context, id string) (*sorting.Recording, error) {
	var r sorting.Recording
	err := db.QueryRowContext(ctx, `
		SELECT recording_id, label, sampling_frequency, num_frames, num_channels
		FROM recordings WHERE recording_id = ?`, id,
	).Scan(&r.ID, &r.Label, &r.SamplingFrequency, &r.NumFrames, &r.NumChannels)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("recording %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get recording: %w", err)
	}
	return &r, nil
}

// ListRecordings returns every recording, newest first.
func (db *DB) ListRecordings(ctx context.Context) ([]sorting.Recording, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT recording_id, label, sampling_frequency, num_frames, num_channels
		FROM recordings ORDER BY created_at DESC, recording_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list recordings: %w", err)
	}
	defer rows.Close()

	recordings := []sorting.Recording{}
	for rows.Next() {
		var r sorting.Recording
		if err := rows.Scan(&r.ID, &r.Label, &r.SamplingFrequency, &r.NumFrames, &r.NumChannels); err != nil {
			return nil, err
		}
		recordings = append(recordings, r)
	}
	return recordings, rows.Err()
}
