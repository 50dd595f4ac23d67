package sorting

import (
	"fmt"
	"sort"
)

// Snippet is the frame window extracted around one spike event.
type Snippet struct {
	UnitID     int   `json:"unit_id"`
	EventFrame int64 `json:"event_frame"`
	StartFrame int64 `json:"start_frame"`
	EndFrame   int64 `json:"end_frame"`
}

// SnippetParams bounds snippet extraction.
type SnippetParams struct {
	BeforeFrames int
	AfterFrames  int
	MaxPerUnit   int
}

// ExtractSnippets returns snippet windows [t-before, t+after) for every unit
// of s, clipped to the recording. At most MaxPerUnit evenly spaced events are
// taken per unit. Units are visited in ascending id order.
func ExtractSnippets(rec *Recording, s *Sorting, p SnippetParams) ([]Snippet, error) {
	if rec.SamplingFrequency != s.SamplingFrequency {
		return nil, fmt.Errorf("sampling frequency mismatch: recording %g, sorting %g",
			rec.SamplingFrequency, s.SamplingFrequency)
	}
	if p.BeforeFrames < 0 || p.AfterFrames < 0 || p.BeforeFrames+p.AfterFrames == 0 {
		return nil, fmt.Errorf("invalid snippet window %d/%d", p.BeforeFrames, p.AfterFrames)
	}

	var out []Snippet
	for _, id := range sortedUnitIDs(s) {
		for _, t := range subsampleEvents(s.SpikeTrains[id], p.MaxPerUnit) {
			start := t - int64(p.BeforeFrames)
			end := t + int64(p.AfterFrames)
			if start < 0 {
				start = 0
			}
			if end > rec.NumFrames {
				end = rec.NumFrames
			}
			if start >= end {
				continue
			}
			out = append(out, Snippet{UnitID: id, EventFrame: t, StartFrame: start, EndFrame: end})
		}
	}
	return out, nil
}

// subsampleEvents picks up to max evenly spaced entries; max <= 0 keeps all.
func subsampleEvents(train []int64, max int) []int64 {
	if max <= 0 || len(train) <= max {
		return train
	}
	out := make([]int64, max)
	step := float64(len(train)) / float64(max)
	for i := range out {
		out[i] = train[int(float64(i)*step)]
	}
	return out
}

func sortedUnitIDs(s *Sorting) []int {
	ids := append([]int(nil), s.UnitIDs...)
	sort.Ints(ids)
	return ids
}
