// Package preload gates a view on the background snippet precompute for its
// (recording, sorting) pair. While the precompute is unfinished the view is
// blocked by an overlay, and the last child rendered under a finished
// precompute keeps being shown underneath it.
package preload

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/banshee-data/sortingview/internal/monitoring"
	"github.com/banshee-data/sortingview/internal/sorting"
	"github.com/banshee-data/sortingview/internal/taskqueue"
)

// TaskName is the precompute the gate waits on. Its params are the
// IdentityPair itself.
const TaskName = "preload_extract_snippets.1"

// Overlay messages.
const (
	MessageRunning = "Precomputing snippets"
)

// ErrClosed is returned by Render after Close.
var ErrClosed = errors.New("preload gate closed")

// Submitter submits or reuses a task.
type Submitter interface {
	SubmitOrReuse(ctx context.Context, name string, params any) (*taskqueue.Task, error)
}

// Overlay covers a Width x Height region. When Block is false it is an empty
// placeholder of the same size.
type Overlay struct {
	Block   bool   `json:"block"`
	Message string `json:"message"`
	Width   int    `json:"width"`
	Height  int    `json:"height"`
}

// Frame is one render of the gate.
type Frame[C any] struct {
	Overlay       Overlay          `json:"overlay"`
	PreloadStatus taskqueue.Status `json:"preload_status"`
	Child         C                `json:"child"`
	// ShowingLastValid is set when Child is the remembered child rather than
	// the one passed to Render.
	ShowingLastValid bool `json:"showing_last_valid"`
}

// Options configures a Gate.
type Options[C any] struct {
	Tasks Submitter
	// Inject passes the precompute status into a child. Nil leaves the child
	// unchanged.
	Inject func(child C, status taskqueue.Status) C
	Width  int
	Height int
}

type subscription struct {
	// pair is fixed when the subscription is created.
	pair   sorting.IdentityPair
	task   *taskqueue.Task
	cancel func()
}

// Gate tracks the precompute for the active identity pair. It is safe for
// concurrent use.
type Gate[C any] struct {
	opts Options[C]

	mu     sync.Mutex
	active *subscription
	closed bool

	// latest is the most recent child passed to Render, before injection.
	latest     C
	latestPair sorting.IdentityPair
	hasLatest  bool

	lastValid    C
	hasLastValid bool

	updates chan struct{}
}

// New creates a Gate.
func New[C any](opts Options[C]) *Gate[C] {
	if opts.Inject == nil {
		opts.Inject = func(c C, _ taskqueue.Status) C { return c }
	}
	return &Gate[C]{
		opts:    opts,
		updates: make(chan struct{}, 1),
	}
}

// Updates signals after the gate applied a status change that arrived
// asynchronously. Signals are coalesced. The channel is closed by Close.
func (g *Gate[C]) Updates() <-chan struct{} {
	return g.updates
}

// Render returns the frame for pair and child. A pair different from the
// active one abandons the previous subscription and submits (or reuses) the
// precompute for the new pair.
func (g *Gate[C]) Render(ctx context.Context, pair sorting.IdentityPair, child C) (Frame[C], error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.closed {
		return Frame[C]{}, ErrClosed
	}
	if err := g.activateLocked(ctx, pair); err != nil {
		return Frame[C]{}, err
	}
	sub := g.active

	snap := sub.task.Snapshot()
	status := snap.Status

	g.latest = child
	g.latestPair = pair
	g.hasLatest = true

	injected := g.opts.Inject(child, status)
	if status == taskqueue.StatusFinished && sub.pair.Equal(pair) {
		g.lastValid = injected
		g.hasLastValid = true
	}

	frame := Frame[C]{
		Overlay:       g.overlay(status, snap.ErrorMessage),
		PreloadStatus: status,
		Child:         injected,
	}
	if g.hasLastValid {
		frame.Child = g.lastValid
		frame.ShowingLastValid = status != taskqueue.StatusFinished
	}
	return frame, nil
}

// Prepare makes pair the active pair, submitting its precompute if needed,
// and returns the precompute status. Callers use it to hold back work that
// must not start before the precompute has finished.
func (g *Gate[C]) Prepare(ctx context.Context, pair sorting.IdentityPair) (taskqueue.Status, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return "", ErrClosed
	}
	if err := g.activateLocked(ctx, pair); err != nil {
		return "", err
	}
	return g.active.task.Status(), nil
}

// Status returns the status of the active precompute, or waiting when none
// has been requested.
func (g *Gate[C]) Status() taskqueue.Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active == nil {
		return taskqueue.StatusWaiting
	}
	return g.active.task.Status()
}

// LastValid returns the remembered child, if any.
func (g *Gate[C]) LastValid() (C, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastValid, g.hasLastValid
}

// Close abandons the active subscription.
func (g *Gate[C]) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	g.closed = true
	if g.active != nil {
		g.active.cancel()
		g.active = nil
	}
	close(g.updates)
}

func (g *Gate[C]) activateLocked(ctx context.Context, pair sorting.IdentityPair) error {
	if g.active != nil && g.active.pair.Equal(pair) {
		return nil
	}
	return g.subscribeLocked(ctx, pair)
}

func (g *Gate[C]) subscribeLocked(ctx context.Context, pair sorting.IdentityPair) error {
	if g.active != nil {
		g.active.cancel()
		g.active = nil
	}
	task, err := g.opts.Tasks.SubmitOrReuse(ctx, TaskName, pair)
	if err != nil {
		return fmt.Errorf("submit %s: %w", TaskName, err)
	}
	ch, cancel := task.Subscribe()
	sub := &subscription{pair: pair, task: task, cancel: cancel}
	g.active = sub
	monitoring.Debugf("preload: subscribed to task %s for %s", task.ID, pair.Sorting)
	go g.watch(sub, ch)
	return nil
}

// watch applies snapshots for sub until its channel closes. Snapshots are
// dropped once sub is no longer the active subscription for its pair.
func (g *Gate[C]) watch(sub *subscription, ch <-chan taskqueue.Snapshot) {
	for snap := range ch {
		g.mu.Lock()
		if g.closed || g.active != sub || !sub.pair.Equal(g.active.pair) {
			g.mu.Unlock()
			monitoring.Debugf("preload: dropped stale %s for %s", snap.Status, sub.pair.Sorting)
			continue
		}
		if snap.Status == taskqueue.StatusFinished && g.hasLatest && g.latestPair.Equal(sub.pair) {
			g.lastValid = g.opts.Inject(g.latest, taskqueue.StatusFinished)
			g.hasLastValid = true
		}
		select {
		case g.updates <- struct{}{}:
		default:
		}
		g.mu.Unlock()
	}
}

func (g *Gate[C]) overlay(status taskqueue.Status, errMsg string) Overlay {
	o := Overlay{Width: g.opts.Width, Height: g.opts.Height}
	if status == taskqueue.StatusFinished {
		return o
	}
	o.Block = true
	switch status {
	case taskqueue.StatusRunning:
		o.Message = MessageRunning
	case taskqueue.StatusError:
		o.Message = "Error: " + errMsg
	default:
		o.Message = "Status: " + string(status)
	}
	return o
}
