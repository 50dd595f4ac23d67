// Package taskqueue runs named computations submitted with JSON parameters
// and lets callers observe their status as it evolves. Submissions are
// deduplicated by (name, canonical params) so repeated requests for the same
// computation share one task.
package taskqueue

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// Status is the lifecycle state of a task.
type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusRunning  Status = "running"
	StatusFinished Status = "finished"
	StatusError    Status = "error"
)

// Terminal reports whether no further transitions can happen.
func (s Status) Terminal() bool {
	return s == StatusFinished || s == StatusError
}

func (s Status) rank() int {
	switch s {
	case StatusWaiting:
		return 0
	case StatusRunning:
		return 1
	case StatusFinished, StatusError:
		return 2
	default:
		return -1
	}
}

// Snapshot is a point-in-time copy of a task's state.
type Snapshot struct {
	TaskID       string          `json:"task_id"`
	Name         string          `json:"task_name"`
	Status       Status          `json:"status"`
	ErrorMessage string          `json:"error_message,omitempty"`
	ReturnValue  json.RawMessage `json:"return_value,omitempty"`
	SubmittedAt  time.Time       `json:"submitted_at"`
	StartedAt    *time.Time      `json:"started_at,omitempty"`
	FinishedAt   *time.Time      `json:"finished_at,omitempty"`
}

// subscriberBuffer holds every transition a task can make after the
// initial snapshot, so broadcasts never block.
const subscriberBuffer = 4

// Task is one deduplicated computation.
type Task struct {
	ID     string
	Name   string
	Key    string
	params json.RawMessage

	mu      sync.Mutex
	snap    Snapshot
	subs    map[int]chan Snapshot
	nextSub int
	done    chan struct{}
}

func newTask(id, name, key string, params json.RawMessage, now time.Time) *Task {
	return &Task{
		ID:     id,
		Name:   name,
		Key:    key,
		params: params,
		snap: Snapshot{
			TaskID:      id,
			Name:        name,
			Status:      StatusWaiting,
			SubmittedAt: now,
		},
		subs: make(map[int]chan Snapshot),
		done: make(chan struct{}),
	}
}

// Params returns the canonical JSON parameters the task was submitted with.
func (t *Task) Params() json.RawMessage {
	return t.params
}

// Snapshot returns a copy of the current state.
func (t *Task) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snap
}

// Status is shorthand for Snapshot().Status.
func (t *Task) Status() Status {
	return t.Snapshot().Status
}

// Subscribe returns a channel that receives the current snapshot at once and
// then every transition. The channel is closed after the terminal snapshot or
// when cancel is called.
func (t *Task) Subscribe() (<-chan Snapshot, func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ch := make(chan Snapshot, subscriberBuffer)
	ch <- t.snap
	if t.snap.Status.Terminal() {
		close(ch)
		return ch, func() {}
	}

	id := t.nextSub
	t.nextSub++
	t.subs[id] = ch
	cancel := func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		if c, ok := t.subs[id]; ok {
			delete(t.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

// Wait blocks until the task reaches a terminal status or ctx is done.
func (t *Task) Wait(ctx context.Context) (Snapshot, error) {
	select {
	case <-t.done:
		return t.Snapshot(), nil
	case <-ctx.Done():
		return t.Snapshot(), ctx.Err()
	}
}

// transition moves the task forward. Backward or repeated moves and moves out
// of a terminal state are ignored and reported as false.
func (t *Task) transition(status Status, at time.Time, value json.RawMessage, errMsg string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.snap.Status.Terminal() || status.rank() <= t.snap.Status.rank() {
		return false
	}

	t.snap.Status = status
	switch status {
	case StatusRunning:
		t.snap.StartedAt = &at
	case StatusFinished:
		t.snap.ReturnValue = value
		t.snap.FinishedAt = &at
	case StatusError:
		t.snap.ErrorMessage = errMsg
		t.snap.FinishedAt = &at
	}

	for id, ch := range t.subs {
		select {
		case ch <- t.snap:
		default:
		}
		if status.Terminal() {
			close(ch)
			delete(t.subs, id)
		}
	}
	if status.Terminal() {
		close(t.done)
	}
	return true
}
