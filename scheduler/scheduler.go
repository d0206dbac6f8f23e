package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hupe1980/opmesh/logging"
)

// Task is one unit of periodic work.
type Task func(ctx context.Context) error

// Ticker produces ticks every d until stop is called.
type Ticker func(d time.Duration) (ticks <-chan time.Time, stop func())

// ErrTaskNotFound is returned for operations on unknown task names.
var ErrTaskNotFound = errors.New("task not found")

// Options configures a Scheduler.
type Options struct {
	// RunImmediately invokes each task once when it is scheduled, before the
	// first tick.
	RunImmediately bool

	// Ticker defaults to time.NewTicker.
	Ticker Ticker

	Logger logging.Logger
}

type task struct {
	name     string
	interval time.Duration
	fn       Task
	cancel   context.CancelFunc

	mu   sync.Mutex
	runs int
	last error
}

// Scheduler owns a set of periodic tasks.
type Scheduler struct {
	opts Options

	mu    sync.RWMutex
	tasks map[string]*task
	wg    sync.WaitGroup
}

// New creates a scheduler with no tasks.
func New(optFns ...func(o *Options)) *Scheduler {
	opts := Options{Ticker: stdTicker}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Ticker == nil {
		opts.Ticker = stdTicker
	}
	opts.Logger = logging.OrNoOp(opts.Logger)
	return &Scheduler{opts: opts, tasks: make(map[string]*task)}
}

func stdTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

// Every schedules fn under name, invoked every interval until ctx is done,
// the task is cancelled or the scheduler stops.
func (s *Scheduler) Every(ctx context.Context, name string, interval time.Duration, fn Task) error {
	if interval <= 0 {
		return fmt.Errorf("task %s: interval must be positive", name)
	}
	if fn == nil {
		return fmt.Errorf("task %s: nil function", name)
	}

	s.mu.Lock()
	if _, exists := s.tasks[name]; exists {
		s.mu.Unlock()
		return fmt.Errorf("task %s already scheduled", name)
	}
	taskCtx, cancel := context.WithCancel(ctx)
	t := &task{name: name, interval: interval, fn: fn, cancel: cancel}
	s.tasks[name] = t
	s.wg.Add(1)
	s.mu.Unlock()

	ticks, stop := s.opts.Ticker(interval)

	go func() {
		defer s.wg.Done()
		defer stop()
		defer s.remove(name, t)

		if s.opts.RunImmediately {
			s.invoke(taskCtx, t)
		}
		for {
			select {
			case <-taskCtx.Done():
				return
			case _, ok := <-ticks:
				if !ok {
					return
				}
				s.invoke(taskCtx, t)
			}
		}
	}()

	s.opts.Logger.Debug("Task scheduled", "task", name, "interval", interval)
	return nil
}

// RunNow invokes the named task synchronously, outside its schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.RLock()
	t, ok := s.tasks[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, name)
	}
	return s.invoke(ctx, t)
}

// Cancel stops the named task.
func (s *Scheduler) Cancel(name string) error {
	s.mu.RLock()
	t, ok := s.tasks[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, name)
	}
	t.cancel()
	return nil
}

// Stop cancels every task and waits for their goroutines to exit.
func (s *Scheduler) Stop() {
	s.mu.RLock()
	for _, t := range s.tasks {
		t.cancel()
	}
	s.mu.RUnlock()
	s.wg.Wait()
}

// Tasks returns the scheduled task names in sorted order.
func (s *Scheduler) Tasks() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.tasks))
	for name := range s.tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Stats summarizes a task's invocations.
type Stats struct {
	Runs      int
	LastError error
}

// Stats returns the invocation summary of the named task.
func (s *Scheduler) Stats(name string) (Stats, bool) {
	s.mu.RLock()
	t, ok := s.tasks[name]
	s.mu.RUnlock()
	if !ok {
		return Stats{}, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return Stats{Runs: t.runs, LastError: t.last}, true
}

// invoke runs t once, serialized with its other invocations.
func (s *Scheduler) invoke(ctx context.Context, t *task) (err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("task %s panicked: %v", t.name, rec)
		}
		t.runs++
		t.last = err
		if err != nil {
			s.opts.Logger.Warn("Task failed", "task", t.name, "run", t.runs, "error", err)
		}
	}()

	start := time.Now()
	err = t.fn(ctx)
	s.opts.Logger.Debug("Task ran", "task", t.name, "duration", time.Since(start))
	return err
}

func (s *Scheduler) remove(name string, t *task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tasks[name] == t {
		delete(s.tasks, name)
	}
}
