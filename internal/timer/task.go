// Package timer schedules delayed, repeating and cron tasks on behalf of
// extensions. Tasks are grouped by owner so everything an extension
// scheduled can be cancelled when it is disabled.
package timer

import (
	"context"
	"fmt"
	"sync"
)

// State is the lifecycle state of a task.
type State int

const (
	// Waiting tasks have not run yet.
	Waiting State = iota

	// Running tasks are executing, or are repeating tasks that have run
	// at least once.
	Running

	// Finished one-shot tasks ran to completion.
	Finished

	// Cancelled tasks will not run again.
	Cancelled
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Waiting:
		return "WAITING"
	case Running:
		return "RUNNING"
	case Finished:
		return "FINISHED"
	case Cancelled:
		return "CANCELLED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Func is the work performed by a task. ctx is cancelled when the task
// is cancelled.
type Func func(ctx context.Context)

// Task is a scheduled unit of work.
type Task struct {
	id    string
	owner string
	kind  string

	mu     sync.Mutex
	state  State
	runs   int
	ctx    context.Context
	cancel context.CancelFunc
	onStop func()
}

func newTask(parent context.Context, id, owner, kind string) *Task {
	ctx, cancel := context.WithCancel(parent)
	return &Task{id: id, owner: owner, kind: kind, ctx: ctx, cancel: cancel}
}

// ID returns the task id.
func (t *Task) ID() string { return t.id }

// Owner returns the owner id the task was scheduled for.
func (t *Task) Owner() string { return t.owner }

// Kind returns "after", "every" or "cron".
func (t *Task) Kind() string { return t.kind }

// State returns the current state.
func (t *Task) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Runs returns how many times the task started.
func (t *Task) Runs() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.runs
}

// Cancel stops the task. It reports false if the task had already
// finished or been cancelled.
func (t *Task) Cancel() bool {
	t.mu.Lock()
	if t.state == Finished || t.state == Cancelled {
		t.mu.Unlock()
		return false
	}
	t.state = Cancelled
	onStop := t.onStop
	t.mu.Unlock()

	t.cancel()
	if onStop != nil {
		onStop()
	}
	return true
}

// begin moves the task to Running. It reports false if it was cancelled.
func (t *Task) begin() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == Cancelled || t.state == Finished {
		return false
	}
	t.state = Running
	t.runs++
	return true
}

// finish moves a running one-shot task to Finished.
func (t *Task) finish() {
	t.mu.Lock()
	if t.state == Running {
		t.state = Finished
	}
	onStop := t.onStop
	t.mu.Unlock()

	t.cancel()
	if onStop != nil {
		onStop()
	}
}
