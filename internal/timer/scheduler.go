package timer

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

var (
	// ErrStopped is returned when scheduling on a stopped scheduler.
	ErrStopped = errors.New("scheduler is stopped")

	// ErrInvalidInterval is returned for non-positive repeat intervals.
	ErrInvalidInterval = errors.New("interval must be positive")
)

// Scheduler runs tasks in their own goroutines.
type Scheduler struct {
	mu     sync.Mutex
	tasks  map[string]*Task
	closed bool

	cron   *cron.Cron
	logger *zap.Logger
	wg     sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets the scheduler logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithLocation sets the time zone used by cron specs.
func WithLocation(loc *time.Location) Option {
	return func(s *Scheduler) {
		s.cron = cron.New(cron.WithLocation(loc))
	}
}

// New creates and starts a scheduler.
func New(opts ...Option) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		tasks:  make(map[string]*Task),
		cron:   cron.New(),
		logger: zap.NewNop(),
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cron.Start()
	return s
}

func (s *Scheduler) newTask(owner, kind string) *Task {
	return newTask(s.ctx, uuid.NewString(), owner, kind)
}

// track makes t visible to Tasks and CancelAll. onStop must be set first.
func (s *Scheduler) track(t *Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStopped
	}
	s.tasks[t.id] = t
	return nil
}

// spawn tracks t and runs it on its own goroutine. The goroutine is
// counted under the same lock that Stop takes, so Stop always waits for
// it.
func (s *Scheduler) spawn(t *Task, run func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStopped
	}
	s.tasks[t.id] = t
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		run()
	}()
	return nil
}

func (s *Scheduler) forget(id string) {
	s.mu.Lock()
	delete(s.tasks, id)
	s.mu.Unlock()
}

// After runs fn once after d.
func (s *Scheduler) After(owner string, d time.Duration, fn Func) (*Task, error) {
	t := s.newTask(owner, "after")
	t.onStop = func() { s.forget(t.id) }
	err := s.spawn(t, func() {
		timer := time.NewTimer(d)
		defer timer.Stop()

		select {
		case <-t.ctx.Done():
			return
		case <-timer.C:
		}
		if !t.begin() {
			return
		}
		s.invoke(t, fn)
		t.finish()
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Every runs fn every interval, first after one interval has passed.
func (s *Scheduler) Every(owner string, interval time.Duration, fn Func) (*Task, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("%w: %s", ErrInvalidInterval, interval)
	}
	t := s.newTask(owner, "every")
	t.onStop = func() { s.forget(t.id) }
	err := s.spawn(t, func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-t.ctx.Done():
				return
			case <-ticker.C:
			}
			if !t.begin() {
				return
			}
			s.invoke(t, fn)
		}
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// Cron runs fn on a standard five field cron schedule.
func (s *Scheduler) Cron(owner, spec string, fn Func) (*Task, error) {
	t := s.newTask(owner, "cron")

	var running sync.Mutex
	id, err := s.cron.AddFunc(spec, func() {
		// Overlapping runs of the same task are skipped.
		if !running.TryLock() {
			return
		}
		defer running.Unlock()
		if !t.begin() {
			return
		}
		s.invoke(t, fn)
	})
	if err != nil {
		return nil, fmt.Errorf("cron spec %q: %w", spec, err)
	}
	t.onStop = func() {
		s.cron.Remove(id)
		s.forget(t.id)
	}
	if err := s.track(t); err != nil {
		s.cron.Remove(id)
		return nil, err
	}
	return t, nil
}

func (s *Scheduler) invoke(t *Task, fn Func) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("task panicked",
				zap.String("owner", t.owner),
				zap.String("task", t.id),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
		}
	}()
	fn(t.ctx)
}

// Tasks returns the live tasks of owner, oldest id first.
func (s *Scheduler) Tasks(owner string) []*Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Task
	for _, t := range s.tasks {
		if t.owner == owner {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}

// CancelAll cancels every task of owner and returns how many were
// cancelled.
func (s *Scheduler) CancelAll(owner string) int {
	n := 0
	for _, t := range s.Tasks(owner) {
		if t.Cancel() {
			n++
		}
	}
	return n
}

// Stop cancels all tasks and waits for running ones to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	tasks := make([]*Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		tasks = append(tasks, t)
	}
	s.mu.Unlock()

	for _, t := range tasks {
		t.Cancel()
	}
	s.cancel()
	<-s.cron.Stop().Done()
	s.wg.Wait()
}
