package preload

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/sortingview/internal/sorting"
	"github.com/banshee-data/sortingview/internal/taskqueue"
)

// harness runs the precompute on a real task service; each sorting's
// precompute blocks until released or failed.
type harness struct {
	svc *taskqueue.Service

	mu    sync.Mutex
	gates map[sorting.Object]chan error
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		svc:   taskqueue.NewService(taskqueue.Options{Workers: 4}),
		gates: make(map[sorting.Object]chan error),
	}
	h.svc.Register(TaskName, func(ctx context.Context, params json.RawMessage) (any, error) {
		var pair sorting.IdentityPair
		if err := json.Unmarshal(params, &pair); err != nil {
			return nil, err
		}
		select {
		case err := <-h.gate(pair.Sorting):
			if err != nil {
				return nil, err
			}
			return map[string]int{"num_snippets": 1}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	h.svc.Start(context.Background())
	t.Cleanup(h.svc.Stop)
	return h
}

func (h *harness) gate(s sorting.Object) chan error {
	h.mu.Lock()
	defer h.mu.Unlock()
	ch, ok := h.gates[s]
	if !ok {
		ch = make(chan error, 1)
		h.gates[s] = ch
	}
	return ch
}

// finish completes the already submitted precompute for pair and waits for
// the task to settle.
func (h *harness) finish(t *testing.T, pair sorting.IdentityPair, err error) {
	t.Helper()
	task, serr := h.svc.SubmitOrReuse(context.Background(), TaskName, pair)
	require.NoError(t, serr)
	h.gate(pair.Sorting) <- err
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, werr := task.Wait(ctx)
	require.NoError(t, werr)
}

func pairFor(sortingID string) sorting.IdentityPair {
	return sorting.IdentityPair{
		Recording: sorting.RecordingObject("rec"),
		Sorting:   sorting.SortingObject(sortingID),
	}
}

func newTestGate(h *harness) *Gate[string] {
	return New(Options[string]{
		Tasks:  h.svc,
		Inject: func(c string, s taskqueue.Status) string { return c + "|" + string(s) },
		Width:  800,
		Height: 600,
	})
}

func waitLastValid(t *testing.T, g *Gate[string], want string) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		if v, ok := g.LastValid(); ok && v == want {
			return
		}
		select {
		case <-g.Updates():
		case <-time.After(10 * time.Millisecond):
		case <-deadline:
			v, _ := g.LastValid()
			t.Fatalf("last valid child = %q, want %q", v, want)
		}
	}
}

func TestGate_FinishedUnblocksAndRecordsLastValid(t *testing.T) {
	h := newHarness(t)
	g := newTestGate(h)
	defer g.Close()
	p := pairFor("p")

	frame, err := g.Render(context.Background(), p, "child-p")
	require.NoError(t, err)
	assert.True(t, frame.Overlay.Block)
	assert.NotEqual(t, taskqueue.StatusFinished, frame.PreloadStatus)
	assert.Equal(t, "child-p|"+string(frame.PreloadStatus), frame.Child)
	assert.False(t, frame.ShowingLastValid)
	_, ok := g.LastValid()
	assert.False(t, ok)

	h.finish(t, p, nil)

	frame, err = g.Render(context.Background(), p, "child-p")
	require.NoError(t, err)
	assert.Equal(t, Overlay{Block: false, Width: 800, Height: 600}, frame.Overlay)
	assert.Equal(t, taskqueue.StatusFinished, frame.PreloadStatus)
	assert.Equal(t, "child-p|finished", frame.Child)
	assert.False(t, frame.ShowingLastValid)

	v, ok := g.LastValid()
	require.True(t, ok)
	assert.Equal(t, "child-p|finished", v)
}

func TestGate_AsyncFinishRecordsLatestChild(t *testing.T) {
	h := newHarness(t)
	g := newTestGate(h)
	defer g.Close()
	p := pairFor("p")

	_, err := g.Render(context.Background(), p, "child-p")
	require.NoError(t, err)

	h.gate(p.Sorting) <- nil
	waitLastValid(t, g, "child-p|finished")
}

func TestGate_PairChangeKeepsLastValidUnderOverlay(t *testing.T) {
	h := newHarness(t)
	g := newTestGate(h)
	defer g.Close()
	p, q := pairFor("p"), pairFor("q")

	_, err := g.Render(context.Background(), p, "child-p")
	require.NoError(t, err)
	h.finish(t, p, nil)
	_, err = g.Render(context.Background(), p, "child-p")
	require.NoError(t, err)

	frame, err := g.Render(context.Background(), q, "child-q")
	require.NoError(t, err)
	assert.True(t, frame.Overlay.Block)
	assert.Equal(t, "child-p|finished", frame.Child)
	assert.True(t, frame.ShowingLastValid)

	h.finish(t, q, nil)
	frame, err = g.Render(context.Background(), q, "child-q")
	require.NoError(t, err)
	assert.False(t, frame.Overlay.Block)
	assert.Equal(t, "child-q|finished", frame.Child)
	assert.False(t, frame.ShowingLastValid)
}

func TestGate_StaleFinishIsIgnored(t *testing.T) {
	h := newHarness(t)
	g := newTestGate(h)
	defer g.Close()
	a, p, q := pairFor("a"), pairFor("p"), pairFor("q")

	_, err := g.Render(context.Background(), a, "child-a")
	require.NoError(t, err)
	h.finish(t, a, nil)
	_, err = g.Render(context.Background(), a, "child-a")
	require.NoError(t, err)

	_, err = g.Render(context.Background(), p, "child-p")
	require.NoError(t, err)
	frame, err := g.Render(context.Background(), q, "child-q")
	require.NoError(t, err)
	assert.Equal(t, "child-a|finished", frame.Child)

	// p was abandoned; its finish must not replace anything
	h.finish(t, p, nil)
	time.Sleep(20 * time.Millisecond)

	v, ok := g.LastValid()
	require.True(t, ok)
	assert.Equal(t, "child-a|finished", v)

	frame, err = g.Render(context.Background(), q, "child-q")
	require.NoError(t, err)
	assert.True(t, frame.Overlay.Block)
	assert.Equal(t, "child-a|finished", frame.Child)
	assert.True(t, frame.ShowingLastValid)
}

func TestGate_NoFallbackBeforeFirstFinish(t *testing.T) {
	h := newHarness(t)
	g := newTestGate(h)
	defer g.Close()

	_, err := g.Render(context.Background(), pairFor("p"), "child-p")
	require.NoError(t, err)
	frame, err := g.Render(context.Background(), pairFor("q"), "child-q")
	require.NoError(t, err)
	assert.True(t, frame.Overlay.Block)
	assert.Equal(t, "child-q|"+string(frame.PreloadStatus), frame.Child)
	assert.False(t, frame.ShowingLastValid)
}

func TestGate_ErrorStatus(t *testing.T) {
	h := newHarness(t)
	g := newTestGate(h)
	defer g.Close()
	p := pairFor("p")

	_, err := g.Render(context.Background(), p, "child-p")
	require.NoError(t, err)
	h.finish(t, p, errors.New("disk full"))

	frame, err := g.Render(context.Background(), p, "child-p")
	require.NoError(t, err)
	assert.Equal(t, taskqueue.StatusError, frame.PreloadStatus)
	assert.Equal(t, Overlay{Block: true, Message: "Error: disk full", Width: 800, Height: 600}, frame.Overlay)
	assert.Equal(t, "child-p|error", frame.Child, "child still rendered underneath")
}

func TestGate_ReusesFinishedPrecompute(t *testing.T) {
	h := newHarness(t)
	p := pairFor("p")

	first := newTestGate(h)
	_, err := first.Render(context.Background(), p, "x")
	require.NoError(t, err)
	h.finish(t, p, nil)
	first.Close()

	second := newTestGate(h)
	defer second.Close()
	frame, err := second.Render(context.Background(), p, "y")
	require.NoError(t, err)
	assert.False(t, frame.Overlay.Block)
	assert.Equal(t, "y|finished", frame.Child)
}

func TestGate_Prepare(t *testing.T) {
	h := newHarness(t)
	g := newTestGate(h)
	defer g.Close()
	p := pairFor("p")

	status, err := g.Prepare(context.Background(), p)
	require.NoError(t, err)
	assert.NotEqual(t, taskqueue.StatusFinished, status)

	h.finish(t, p, nil)
	status, err = g.Prepare(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, taskqueue.StatusFinished, status)

	// Render reuses the subscription Prepare made
	frame, err := g.Render(context.Background(), p, "c")
	require.NoError(t, err)
	assert.Equal(t, "c|finished", frame.Child)
	assert.False(t, frame.Overlay.Block)

	other := pairFor("q")
	status, err = g.Prepare(context.Background(), other)
	require.NoError(t, err)
	assert.NotEqual(t, taskqueue.StatusFinished, status)
	assert.NotEqual(t, taskqueue.StatusFinished, g.Status())

	g.Close()
	_, err = g.Prepare(context.Background(), p)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestGate_Close(t *testing.T) {
	h := newHarness(t)
	g := newTestGate(h)
	g.Close()
	g.Close()

	_, err := g.Render(context.Background(), pairFor("p"), "c")
	assert.ErrorIs(t, err, ErrClosed)
	_, open := <-g.Updates()
	assert.False(t, open)
}

func TestGate_SubmitError(t *testing.T) {
	svc := taskqueue.NewService(taskqueue.Options{})
	g := New(Options[string]{Tasks: svc})
	defer g.Close()

	_, err := g.Render(context.Background(), pairFor("p"), "c")
	assert.ErrorIs(t, err, taskqueue.ErrUnknownTask)
	assert.Equal(t, taskqueue.StatusWaiting, g.Status())
}

func TestOverlayMessages(t *testing.T) {
	g := New(Options[string]{Width: 10, Height: 20})
	tests := []struct {
		status taskqueue.Status
		errMsg string
		want   Overlay
	}{
		{taskqueue.StatusWaiting, "", Overlay{Block: true, Message: "Status: waiting", Width: 10, Height: 20}},
		{taskqueue.StatusRunning, "", Overlay{Block: true, Message: "Precomputing snippets", Width: 10, Height: 20}},
		{taskqueue.StatusError, "boom", Overlay{Block: true, Message: "Error: boom", Width: 10, Height: 20}},
		{taskqueue.StatusFinished, "", Overlay{Width: 10, Height: 20}},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.want, g.overlay(tt.status, tt.errMsg))
		})
	}
}
