package unitmetrics

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/sortingview/internal/sorting"
	"github.com/banshee-data/sortingview/internal/taskqueue"
)

func testPair() sorting.IdentityPair {
	return sorting.IdentityPair{
		Recording: sorting.RecordingObject("rec-1"),
		Sorting:   sorting.SortingObject("sort-1"),
	}
}

func TestCollector_PendingThenFinished(t *testing.T) {
	svc := taskqueue.NewService(taskqueue.Options{Workers: 1})
	t.Cleanup(svc.Stop)
	svc.Register(TaskName, func(ctx context.Context, params json.RawMessage) (any, error) {
		var p TaskParams
		if err := json.Unmarshal(params, &p); err != nil {
			return nil, err
		}
		if p.MetricName == "broken" {
			return nil, errors.New("no data")
		}
		return map[string]any{"1": 3.0}, nil
	})

	providers := []*Provider{stub("count", 1), stub("broken", 1)}
	disabled := stub("off", 1)
	disabled.Disabled = true
	providers = append(providers, disabled)

	c := &Collector{Tasks: svc}
	got := c.Collect(context.Background(), providers, testPair(), "")
	require.Len(t, got, 2)
	assert.Nil(t, got["count"].Data, "not computed yet")
	assert.Empty(t, got["count"].Error)

	svc.Start(context.Background())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, name := range []string{"count", "broken"} {
		task, err := svc.SubmitOrReuse(ctx, TaskName, TaskParams{
			MetricName:      name,
			RecordingObject: testPair().Recording,
			SortingObject:   testPair().Sorting,
		})
		require.NoError(t, err)
		_, err = task.Wait(ctx)
		require.NoError(t, err)
	}

	got = c.Collect(context.Background(), providers, testPair(), "")
	assert.Equal(t, map[string]any{"1": 3.0}, got["count"].Data)
	assert.Nil(t, got["broken"].Data)
	assert.Equal(t, "no data", got["broken"].Error)
}

func TestCollector_ComparisonNeedsCompareSorting(t *testing.T) {
	svc := taskqueue.NewService(taskqueue.Options{})
	svc.Register(TaskName, func(ctx context.Context, params json.RawMessage) (any, error) { return nil, nil })

	p := stub("match", 1)
	p.Comparison = true
	c := &Collector{Tasks: svc}

	got := c.Collect(context.Background(), []*Provider{p}, testPair(), "")
	assert.NotEmpty(t, got["match"].Error)

	got = c.Collect(context.Background(), []*Provider{p}, testPair(), sorting.SortingObject("sort-2"))
	assert.Empty(t, got["match"].Error)
	assert.Nil(t, got["match"].Data)
}

func TestCollector_SubmitError(t *testing.T) {
	svc := taskqueue.NewService(taskqueue.Options{})
	c := &Collector{Tasks: svc}
	got := c.Collect(context.Background(), []*Provider{stub("x", 1)}, testPair(), "")
	assert.Contains(t, got["x"].Error, "unknown task")
}

func TestCollector_ErrorIsStableAcrossCollects(t *testing.T) {
	svc := taskqueue.NewService(taskqueue.Options{Workers: 1})
	t.Cleanup(svc.Stop)
	var runs atomic.Int32
	svc.Register(TaskName, func(ctx context.Context, params json.RawMessage) (any, error) {
		runs.Add(1)
		return nil, errors.New("spike train missing")
	})
	svc.Start(context.Background())

	providers := []*Provider{stub("broken", 1)}
	c := &Collector{Tasks: svc}
	c.Collect(context.Background(), providers, testPair(), "")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	task, err := svc.SubmitOrReuse(ctx, TaskName, TaskParams{
		MetricName:      "broken",
		RecordingObject: testPair().Recording,
		SortingObject:   testPair().Sorting,
	})
	require.NoError(t, err)
	_, err = task.Wait(ctx)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		got := c.Collect(context.Background(), providers, testPair(), "")
		assert.Nil(t, got["broken"].Data)
		assert.Equal(t, "spike train missing", got["broken"].Error)
	}
	assert.Equal(t, int32(1), runs.Load())
}
