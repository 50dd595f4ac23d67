package unitmetrics

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Built-in provider names.
const (
	NumEvents     = "num_events"
	FiringRate    = "firing_rate"
	ISIViolations = "isi_violations"
	MedianISI     = "median_isi"
	BestMatch     = "best_match"
)

// DefaultRegistry returns a registry holding the built-in providers.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, p := range Builtins() {
		if err := r.Register(p); err != nil {
			// built-in names are distinct constants
			panic(err)
		}
	}
	return r
}

// Builtins returns fresh copies of the built-in providers.
func Builtins() []*Provider {
	return []*Provider{
		{
			Name:        NumEvents,
			ColumnLabel: "Num. events",
			Tooltip:     "Number of events",
			Priority:    50,
			IsNumeric:   true,
			GetValue:    numberValue,
			Render:      renderNumber("%.0f"),
			Compute:     computeNumEvents,
		},
		{
			Name:        FiringRate,
			ColumnLabel: "Firing rate (Hz)",
			Tooltip:     "Average firing rate in Hz",
			Priority:    40,
			IsNumeric:   true,
			GetValue:    numberValue,
			Render:      renderNumber("%.2f"),
			Compute:     computeFiringRate,
		},
		{
			Name:        ISIViolations,
			ColumnLabel: "ISI viol.",
			Tooltip:     "Fraction of inter-spike intervals shorter than the refractory period",
			Priority:    30,
			IsNumeric:   true,
			GetValue:    numberValue,
			Render:      renderNumber("%.4f"),
			Compute:     computeISIViolations,
		},
		{
			Name:        MedianISI,
			ColumnLabel: "Median ISI (ms)",
			Tooltip:     "Median inter-spike interval in milliseconds",
			Priority:    20,
			IsNumeric:   true,
			GetValue:    numberValue,
			Render:      renderNumber("%.1f"),
			Compute:     computeMedianISI,
		},
		{
			Name:        BestMatch,
			ColumnLabel: "Best match",
			Tooltip:     "Best matching unit in the comparison sorting and its agreement score",
			Priority:    10,
			IsNumeric:   true,
			Comparison:  true,
			GetValue:    bestMatchValue,
			Render:      renderBestMatch,
			Compute:     computeBestMatch,
		},
	}
}

// UnitKey is the record key for a unit id.
func UnitKey(unitID int) string { return strconv.Itoa(unitID) }

func computeNumEvents(in Input) (map[string]any, error) {
	if in.Sorting == nil {
		return nil, errors.New("num_events: no sorting")
	}
	out := make(map[string]any, len(in.Sorting.UnitIDs))
	for _, id := range in.Sorting.UnitIDs {
		out[UnitKey(id)] = float64(len(in.Sorting.SpikeTrain(id)))
	}
	return out, nil
}

func computeFiringRate(in Input) (map[string]any, error) {
	if in.Sorting == nil || in.Recording == nil {
		return nil, errors.New("firing_rate: sorting and recording are required")
	}
	duration := in.Recording.DurationSec()
	if duration <= 0 {
		return nil, fmt.Errorf("firing_rate: recording %s has no duration", in.Recording.ID)
	}
	out := make(map[string]any, len(in.Sorting.UnitIDs))
	for _, id := range in.Sorting.UnitIDs {
		out[UnitKey(id)] = float64(len(in.Sorting.SpikeTrain(id))) / duration
	}
	return out, nil
}

func computeISIViolations(in Input) (map[string]any, error) {
	if in.Sorting == nil {
		return nil, errors.New("isi_violations: no sorting")
	}
	refractory := in.Options.RefractoryPeriodMs
	if refractory <= 0 {
		return nil, fmt.Errorf("isi_violations: refractory period must be positive, got %g", refractory)
	}
	out := make(map[string]any, len(in.Sorting.UnitIDs))
	for _, id := range in.Sorting.UnitIDs {
		isis := interSpikeIntervalsMs(in.Sorting.SpikeTrain(id), in.Sorting.SamplingFrequency)
		if len(isis) == 0 {
			out[UnitKey(id)] = 0.0
			continue
		}
		violations := floats.Count(func(v float64) bool { return v < refractory }, isis)
		out[UnitKey(id)] = float64(violations) / float64(len(isis))
	}
	return out, nil
}

// computeMedianISI leaves out units with fewer than two events.
func computeMedianISI(in Input) (map[string]any, error) {
	if in.Sorting == nil {
		return nil, errors.New("median_isi: no sorting")
	}
	out := make(map[string]any, len(in.Sorting.UnitIDs))
	for _, id := range in.Sorting.UnitIDs {
		isis := interSpikeIntervalsMs(in.Sorting.SpikeTrain(id), in.Sorting.SamplingFrequency)
		if len(isis) == 0 {
			continue
		}
		out[UnitKey(id)] = median(isis)
	}
	return out, nil
}

// median sorts xs in place. An even count averages the two middle values.
func median(xs []float64) float64 {
	sort.Float64s(xs)
	n := len(xs)
	if n%2 == 1 {
		return xs[n/2]
	}
	return stat.Mean(xs[n/2-1:n/2+1], nil)
}

// MatchRecord is the best_match record for one unit.
type MatchRecord struct {
	BestUnitID int     `json:"best_unit_id"`
	Agreement  float64 `json:"agreement"`
}

func computeBestMatch(in Input) (map[string]any, error) {
	if in.Sorting == nil || in.Compare == nil {
		return nil, errors.New("best_match: sorting and comparison sorting are required")
	}
	if in.Sorting.SamplingFrequency != in.Compare.SamplingFrequency {
		return nil, fmt.Errorf("best_match: sampling frequency mismatch %g vs %g",
			in.Sorting.SamplingFrequency, in.Compare.SamplingFrequency)
	}
	tol := int64(math.Round(in.Options.MatchToleranceMs * in.Sorting.SamplingFrequency / 1000))

	compareIDs := append([]int(nil), in.Compare.UnitIDs...)
	sort.Ints(compareIDs)

	out := make(map[string]any, len(in.Sorting.UnitIDs))
	for _, id := range in.Sorting.UnitIDs {
		a := in.Sorting.SpikeTrain(id)
		best := MatchRecord{BestUnitID: -1}
		for _, cid := range compareIDs {
			b := in.Compare.SpikeTrain(cid)
			m := countMatches(a, b, tol)
			if m == 0 {
				continue
			}
			agreement := float64(m) / float64(len(a)+len(b)-m)
			if agreement > best.Agreement {
				best = MatchRecord{BestUnitID: cid, Agreement: agreement}
			}
		}
		out[UnitKey(id)] = best
	}
	return out, nil
}

// countMatches pairs events of two ascending trains that lie within tol
// frames of each other, each event used at most once.
func countMatches(a, b []int64, tol int64) int {
	var i, j, n int
	for i < len(a) && j < len(b) {
		d := a[i] - b[j]
		switch {
		case d >= -tol && d <= tol:
			n++
			i++
			j++
		case d < 0:
			i++
		default:
			j++
		}
	}
	return n
}

func interSpikeIntervalsMs(train []int64, samplingFrequency float64) []float64 {
	if len(train) < 2 || samplingFrequency <= 0 {
		return nil
	}
	isis := make([]float64, len(train)-1)
	for i := 1; i < len(train); i++ {
		isis[i-1] = float64(train[i] - train[i-1])
	}
	floats.Scale(1000/samplingFrequency, isis)
	return isis
}

// numberValue extracts a float from a record that is a plain number, either
// as computed or after a JSON round trip. Anything else is NaN.
func numberValue(record any) any {
	switch v := record.(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return math.NaN()
	}
}

func bestMatchValue(record any) any {
	switch v := record.(type) {
	case MatchRecord:
		return v.Agreement
	case map[string]any:
		return numberValue(v["agreement"])
	default:
		return math.NaN()
	}
}

func renderNumber(format string) func(any) string {
	return func(record any) string {
		v, _ := numberValue(record).(float64)
		if math.IsNaN(v) {
			return ""
		}
		return fmt.Sprintf(format, v)
	}
}

func renderBestMatch(record any) string {
	var rec MatchRecord
	switch v := record.(type) {
	case MatchRecord:
		rec = v
	case map[string]any:
		id, _ := numberValue(v["best_unit_id"]).(float64)
		ag, _ := numberValue(v["agreement"]).(float64)
		if math.IsNaN(id) {
			return ""
		}
		rec = MatchRecord{BestUnitID: int(id), Agreement: ag}
	default:
		return ""
	}
	if rec.BestUnitID < 0 {
		return "none"
	}
	return fmt.Sprintf("%d (%.2f)", rec.BestUnitID, rec.Agreement)
}
