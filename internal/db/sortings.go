package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/banshee-data/sortingview/internal/sorting"
)

// SortingSummary is a sorting without its spike trains.
type SortingSummary struct {
	ID             string `json:"sorting_id"`
	Label          string `json:"label"`
	RecordingID    string `json:"recording_id"`
	NumUnits       int    `json:"num_units"`
	UnitMetricsURI string `json:"unit_metrics_uri,omitempty"`
}

// CreateSorting stores a sorting, assigning an id when it has none. The
// recording must exist and share the sorting's sampling frequency.
func (db *DB) CreateSorting(ctx context.Context, s *sorting.Sorting) error {
	s.Normalize()
	if err := s.Validate(); err != nil {
		return fmt.Errorf("invalid sorting: %w", err)
	}
	rec, err := db.GetRecording(ctx, s.RecordingID)
	if err != nil {
		return err
	}
	if rec.SamplingFrequency != s.SamplingFrequency {
		return fmt.Errorf("sorting sampling frequency %g does not match recording %g",
			s.SamplingFrequency, rec.SamplingFrequency)
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}

	unitIDs, err := json.Marshal(s.UnitIDs)
	if err != nil {
		return fmt.Errorf("marshal unit ids: %w", err)
	}
	trains, err := json.Marshal(s.SpikeTrains)
	if err != nil {
		return fmt.Errorf("marshal spike trains: %w", err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO sortings (
			sorting_id, recording_id, label, sampling_frequency,
			unit_ids_json, spike_trains_json, unit_metrics_uri
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.RecordingID, s.Label, s.SamplingFrequency,
		string(unitIDs), string(trains), s.UnitMetricsURI,
	)
	if err != nil {
		return fmt.Errorf("failed to create sorting: %w", err)
	}
	return nil
}

// GetSorting returns a sorting with its spike trains.
func (db *DB) GetSorting(ctx context.Context, id string) (*sorting.Sorting, error) {
	var (
		s       sorting.Sorting
		unitIDs string
		trains  string
	)
	err := db.QueryRowContext(ctx, `
		SELECT sorting_id, recording_id, label, sampling_frequency,
			unit_ids_json, spike_trains_json, unit_metrics_uri
		FROM sortings WHERE sorting_id = ?`, id,
	).Scan(&s.ID, &s.RecordingID, &s.Label, &s.SamplingFrequency, &unitIDs, &trains, &s.UnitMetricsURI)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sorting %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sorting: %w", err)
	}
	if err := json.Unmarshal([]byte(unitIDs), &s.UnitIDs); err != nil {
		return nil, fmt.Errorf("decode unit ids of %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(trains), &s.SpikeTrains); err != nil {
		return nil, fmt.Errorf("decode spike trains of %s: %w", id, err)
	}
	return &s, nil
}

// ListSortings returns summaries of every sorting, newest first.
func (db *DB) ListSortings(ctx context.Context) ([]SortingSummary, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT sorting_id, label, recording_id, unit_ids_json, unit_metrics_uri
		FROM sortings ORDER BY created_at DESC, sorting_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sortings: %w", err)
	}
	defer rows.Close()

	out := []SortingSummary{}
	for rows.Next() {
		var (
			s       SortingSummary
			unitIDs string
		)
		if err := rows.Scan(&s.ID, &s.Label, &s.RecordingID, &unitIDs, &s.UnitMetricsURI); err != nil {
			return nil, err
		}
		var ids []int
		if err := json.Unmarshal([]byte(unitIDs), &ids); err != nil {
			return nil, fmt.Errorf("decode unit ids of %s: %w", s.ID, err)
		}
		s.NumUnits = len(ids)
		out = append(out, s)
	}
	return out, rows.Err()
}
