package taskqueue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/sortingview/internal/monitoring"
	"github.com/banshee-data/sortingview/internal/timeutil"
)

var (
	// ErrNoTask is returned when no task name is given.
	ErrNoTask = errors.New("no task name")
	// ErrUnknownTask is returned for a task name with no registered function.
	ErrUnknownTask = errors.New("unknown task")
	// ErrQueueFull is returned when the pending queue is at capacity.
	ErrQueueFull = errors.New("task queue full")
)

// TaskFunc computes a task's return value from its parameters.
type TaskFunc func(ctx context.Context, params json.RawMessage) (any, error)

// DefaultErrorRetryDelay is used when Options.ErrorRetryDelay is zero.
const DefaultErrorRetryDelay = time.Minute

// Options configures a Service.
type Options struct {
	Workers     int
	QueueSize   int
	TaskTimeout time.Duration
	// ErrorRetryDelay is how long an errored task stays the answer for its
	// key. A submission after that replaces it with a fresh task.
	ErrorRetryDelay time.Duration
	Clock           timeutil.Clock
	Store           Store
}

// Service deduplicates and runs tasks on a pool of workers.
type Service struct {
	opts Options

	mu    sync.Mutex
	funcs map[string]TaskFunc
	byKey map[string]*Task
	byID  map[string]*Task

	queue  chan *Task
	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// NewService creates a Service. Workers do not run until Start is called.
func NewService(opts Options) *Service {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 1024
	}
	if opts.ErrorRetryDelay <= 0 {
		opts.ErrorRetryDelay = DefaultErrorRetryDelay
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	if opts.Store == nil {
		opts.Store = NewMemoryStore()
	}
	return &Service{
		opts:  opts,
		funcs: make(map[string]TaskFunc),
		byKey: make(map[string]*Task),
		byID:  make(map[string]*Task),
		queue: make(chan *Task, opts.QueueSize),
	}
}

// Register binds a task name to its function. Registering a name twice
// replaces the function for future submissions.
func (s *Service) Register(name string, fn TaskFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.funcs[name] = fn
}

// Names returns the registered task names, sorted.
func (s *Service) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.funcs))
	for name := range s.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Start launches the worker pool. It returns immediately; workers stop when
// ctx is cancelled or Stop is called.
func (s *Service) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	for i := 0; i < s.opts.Workers; i++ {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.work(ctx)
		}()
	}
	monitoring.Logf("task service started with %d workers", s.opts.Workers)
}

// Stop cancels running tasks and waits for the workers to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

// SubmitOrReuse returns the task for (name, params), creating and queueing
// it if no live task or stored result exists for that key. An errored task
// is returned as is until ErrorRetryDelay has passed since it failed.
func (s *Service) SubmitOrReuse(ctx context.Context, name string, params any) (*Task, error) {
	if name == "" {
		return nil, ErrNoTask
	}
	canon, err := canonicalJSON(params)
	if err != nil {
		return nil, fmt.Errorf("task %s: %w", name, err)
	}
	key := TaskKey(name, canon)

	s.mu.Lock()
	if _, ok := s.funcs[name]; !ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrUnknownTask, name)
	}
	if t, ok := s.reusableLocked(key); ok {
		s.mu.Unlock()
		return t, nil
	}
	s.mu.Unlock()

	stored, found, err := s.opts.Store.LoadResult(ctx, key)
	if err != nil {
		monitoring.Logf("task %s: result lookup failed, recomputing: %v", name, err)
		found = false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.reusableLocked(key); ok {
		return t, nil
	}

	now := s.opts.Clock.Now()
	t := newTask(uuid.NewString(), name, key, canon, now)
	if found {
		t.transition(StatusFinished, now, stored, "")
	} else {
		select {
		case s.queue <- t:
		default:
			return nil, fmt.Errorf("%w: %s", ErrQueueFull, name)
		}
	}
	s.byKey[key] = t
	s.byID[t.ID] = t
	return t, nil
}

// reusableLocked returns the task held for key unless it errored longer
// than ErrorRetryDelay ago. s.mu must be held.
func (s *Service) reusableLocked(key string) (*Task, bool) {
	t, ok := s.byKey[key]
	if !ok {
		return nil, false
	}
	snap := t.Snapshot()
	if snap.Status != StatusError || snap.FinishedAt == nil {
		return t, true
	}
	if s.opts.Clock.Since(*snap.FinishedAt) < s.opts.ErrorRetryDelay {
		return t, true
	}
	monitoring.Debugf("task %s (%s): retrying after error", t.Name, t.ID)
	delete(s.byKey, key)
	return nil, false
}

// Get returns a task by id.
func (s *Service) Get(id string) (*Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byID[id]
	return t, ok
}

func (s *Service) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-s.queue:
			s.run(ctx, t)
		}
	}
}

func (s *Service) run(ctx context.Context, t *Task) {
	s.mu.Lock()
	fn := s.funcs[t.Name]
	s.mu.Unlock()

	t.transition(StatusRunning, s.opts.Clock.Now(), nil, "")

	runCtx := ctx
	if s.opts.TaskTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.opts.TaskTimeout)
		defer cancel()
	}

	value, err := call(runCtx, fn, t.params)
	var raw json.RawMessage
	if err == nil {
		raw, err = json.Marshal(value)
		if err != nil {
			err = fmt.Errorf("marshal return value: %w", err)
		}
	}

	if err != nil {
		monitoring.Logf("task %s (%s) failed: %v", t.Name, t.ID, err)
		t.transition(StatusError, s.opts.Clock.Now(), nil, err.Error())
		return
	}

	if err := s.opts.Store.SaveResult(ctx, t.Key, t.Name, raw); err != nil {
		monitoring.Logf("task %s (%s): failed to persist result: %v", t.Name, t.ID, err)
	}
	t.transition(StatusFinished, s.opts.Clock.Now(), raw, "")
	monitoring.Debugf("task %s (%s) finished", t.Name, t.ID)
}

func call(ctx context.Context, fn TaskFunc, params json.RawMessage) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task panicked: %v", r)
		}
	}()
	return fn(ctx, params)
}

// TaskKey is the deduplication key for a task name and canonical params.
func TaskKey(name string, canonParams json.RawMessage) string {
	return name + "\x00" + string(canonParams)
}

// canonicalJSON marshals v with object keys sorted at every level.
func canonicalJSON(v any) (json.RawMessage, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal params: %w", err)
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("decode params: %w", err)
	}
	return json.Marshal(generic)
}
