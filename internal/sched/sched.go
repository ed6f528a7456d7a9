// Package sched runs one-shot deferred work with cancellable handles.
package sched

import (
	"log/slog"
	"sync"
	"time"

	"github.com/mpaland/chan-sccp/internal/call"
)

// Timer is a timer-backed scheduler. Callbacks run on their own
// goroutine; cancellation is race safe against a concurrently firing
// timer.
type Timer struct {
	logger *slog.Logger

	mu      sync.Mutex
	pending int
}

// New creates a scheduler.
func New(logger *slog.Logger) *Timer {
	return &Timer{logger: logger.With("subsystem", "sched")}
}

// ScheduleOnce runs fn after delay unless the returned task is cancelled
// first.
func (t *Timer) ScheduleOnce(delay time.Duration, fn func()) call.Task {
	task := &task{sched: t}

	t.mu.Lock()
	t.pending++
	t.mu.Unlock()

	task.timer = time.AfterFunc(delay, func() {
		// Lose the race against Cancel: only one of the two runs.
		task.mu.Lock()
		if task.done {
			task.mu.Unlock()
			return
		}
		task.done = true
		task.mu.Unlock()

		t.settle()
		fn()
	})
	return task
}

// Pending returns the number of scheduled, not yet fired or cancelled,
// tasks.
func (t *Timer) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending
}

func (t *Timer) settle() {
	t.mu.Lock()
	t.pending--
	t.mu.Unlock()
}

type task struct {
	sched *Timer
	timer *time.Timer

	mu   sync.Mutex
	done bool
}

// Cancel stops the task. Reports whether it was stopped before running;
// a second Cancel and a Cancel after firing both return false.
func (k *task) Cancel() bool {
	k.mu.Lock()
	if k.done {
		k.mu.Unlock()
		return false
	}
	k.done = true
	k.mu.Unlock()

	k.timer.Stop()
	k.sched.settle()
	return true
}
