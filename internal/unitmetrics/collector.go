package unitmetrics

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/banshee-data/sortingview/internal/monitoring"
	"github.com/banshee-data/sortingview/internal/sorting"
	"github.com/banshee-data/sortingview/internal/taskqueue"
)

// TaskName is the task that computes one provider's records.
const TaskName = "unit_metric.1"

// TaskParams are the parameters of TaskName.
type TaskParams struct {
	MetricName           string         `json:"metric_name"`
	RecordingObject      sorting.Object `json:"recording_object"`
	SortingObject        sorting.Object `json:"sorting_object"`
	CompareSortingObject sorting.Object `json:"compare_sorting_object,omitempty"`
}

// MetricData is a provider's records for a whole sorting. Data is nil until
// the computation has finished.
type MetricData struct {
	Data  map[string]any `json:"data"`
	Error string         `json:"error,omitempty"`
}

// Submitter submits or reuses a task.
type Submitter interface {
	SubmitOrReuse(ctx context.Context, name string, params any) (*taskqueue.Task, error)
}

// Collector requests provider computations and reports what has arrived.
type Collector struct {
	Tasks Submitter
}

// Collect returns the current data for each provider, keyed by provider
// name. It never blocks on a computation: unfinished providers map to an
// entry with nil Data. compare may be zero when no comparison sorting is
// selected, in which case comparison providers report an error.
func (c *Collector) Collect(ctx context.Context, providers []*Provider, pair sorting.IdentityPair, compare sorting.Object) map[string]*MetricData {
	out := make(map[string]*MetricData, len(providers))
	for _, p := range providers {
		if p.Disabled {
			continue
		}
		params := TaskParams{
			MetricName:      p.Name,
			RecordingObject: pair.Recording,
			SortingObject:   pair.Sorting,
		}
		if p.Comparison {
			if compare.IsZero() {
				out[p.Name] = &MetricData{Error: "no comparison sorting selected"}
				continue
			}
			params.CompareSortingObject = compare
		}

		task, err := c.Tasks.SubmitOrReuse(ctx, TaskName, params)
		if err != nil {
			monitoring.Logf("unit metric %s: submit failed: %v", p.Name, err)
			out[p.Name] = &MetricData{Error: err.Error()}
			continue
		}
		out[p.Name] = dataFromSnapshot(p.Name, task.Snapshot())
	}
	return out
}

func dataFromSnapshot(name string, snap taskqueue.Snapshot) *MetricData {
	switch snap.Status {
	case taskqueue.StatusFinished:
		var data map[string]any
		if err := json.Unmarshal(snap.ReturnValue, &data); err != nil {
			return &MetricData{Error: fmt.Sprintf("decode %s: %v", name, err)}
		}
		if data == nil {
			data = map[string]any{}
		}
		return &MetricData{Data: data}
	case taskqueue.StatusError:
		return &MetricData{Error: snap.ErrorMessage}
	default:
		return &MetricData{}
	}
}
