package sorting

import (
	"errors"
	"fmt"
	"sort"
)

// Recording describes the signal a sorting was computed from. Only the
// geometry needed to bound snippet windows and rates is kept.
type Recording struct {
	ID                string  `json:"recording_id"`
	Label             string  `json:"label"`
	SamplingFrequency float64 `json:"sampling_frequency"`
	NumFrames         int64   `json:"num_frames"`
	NumChannels       int     `json:"num_channels"`
}

// Object returns the recording's identity token.
func (r *Recording) Object() Object { return RecordingObject(r.ID) }

// DurationSec returns the recording length in seconds.
func (r *Recording) DurationSec() float64 {
	if r.SamplingFrequency <= 0 {
		return 0
	}
	return float64(r.NumFrames) / r.SamplingFrequency
}

// Validate checks the recording geometry.
func (r *Recording) Validate() error {
	if r.SamplingFrequency <= 0 {
		return fmt.Errorf("sampling_frequency must be positive, got %f", r.SamplingFrequency)
	}
	if r.NumFrames <= 0 {
		return fmt.Errorf("num_frames must be positive, got %d", r.NumFrames)
	}
	if r.NumChannels <= 0 {
		return fmt.Errorf("num_channels must be positive, got %d", r.NumChannels)
	}
	return nil
}

// Sorting is the output of one spike-sorting run: a set of units, each with
// a spike train of event times in frames.
type Sorting struct {
	ID                string          `json:"sorting_id"`
	Label             string          `json:"label"`
	RecordingID       string          `json:"recording_id"`
	SamplingFrequency float64         `json:"sampling_frequency"`
	UnitIDs           []int           `json:"unit_ids"`
	SpikeTrains       map[int][]int64 `json:"spike_trains"`
	// UnitMetricsURI points at externally computed metrics, if any.
	UnitMetricsURI string `json:"unit_metrics_uri,omitempty"`
}

// Object returns the sorting's identity token.
func (s *Sorting) Object() Object { return SortingObject(s.ID) }

// SpikeTrain returns the event frames of a unit, or nil for an unknown unit.
func (s *Sorting) SpikeTrain(unitID int) []int64 {
	return s.SpikeTrains[unitID]
}

// Normalize sorts unit ids and each spike train ascending and fills in
// empty trains for listed units.
func (s *Sorting) Normalize() {
	sort.Ints(s.UnitIDs)
	if s.SpikeTrains == nil {
		s.SpikeTrains = make(map[int][]int64, len(s.UnitIDs))
	}
	for _, id := range s.UnitIDs {
		train := s.SpikeTrains[id]
		if train == nil {
			train = []int64{}
		}
		sort.Slice(train, func(i, j int) bool { return train[i] < train[j] })
		s.SpikeTrains[id] = train
	}
}

// Validate checks unit ids and spike trains.
func (s *Sorting) Validate() error {
	if s.SamplingFrequency <= 0 {
		return fmt.Errorf("sampling_frequency must be positive, got %f", s.SamplingFrequency)
	}
	if len(s.UnitIDs) == 0 {
		return errors.New("sorting has no units")
	}
	seen := make(map[int]bool, len(s.UnitIDs))
	for _, id := range s.UnitIDs {
		if id < 0 {
			return fmt.Errorf("unit id %d is negative", id)
		}
		if seen[id] {
			return fmt.Errorf("duplicate unit id %d", id)
		}
		seen[id] = true
	}
	for id, train := range s.SpikeTrains {
		if !seen[id] {
			return fmt.Errorf("spike train for unknown unit %d", id)
		}
		for _, t := range train {
			if t < 0 {
				return fmt.Errorf("unit %d has negative event frame %d", id, t)
			}
		}
	}
	return nil
}
