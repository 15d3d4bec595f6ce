package scheduler

import (
	"fmt"
	"runtime"

	"github.com/panjf2000/ants/v2"

	"quarrydb/trace"
)

// TaskHandle tracks one scheduled task. Wait blocks until the task has
// completed and returns its error, if any.
type TaskHandle struct {
	done chan struct{}
	err  error
}

// Wait blocks until the task has completed
func (h *TaskHandle) Wait() error {
	<-h.done
	return h.err
}

// Scheduler runs tasks on a bounded goroutine pool. Tasks are pure
// in-memory work: there is no cancellation and no timeout, every task
// runs to completion.
type Scheduler struct {
	pool *ants.Pool
}

// NewScheduler creates a scheduler with the given worker count.
// A non-positive count uses one worker per available CPU.
func NewScheduler(workers int) (*Scheduler, error) {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}
	return &Scheduler{pool: pool}, nil
}

// Schedule submits a task and returns its handle. A panicking task is
// recovered and surfaced as the task's error so that no failure can take
// down the pool.
func (s *Scheduler) Schedule(task func() error) (*TaskHandle, error) {
	handle := &TaskHandle{done: make(chan struct{})}
	err := s.pool.Submit(func() {
		defer close(handle.done)
		defer func() {
			if r := recover(); r != nil {
				handle.err = fmt.Errorf("task panic: %v", r)
				trace.GetTracer().Error(trace.ComponentScheduler, "Task panicked",
					trace.Context("panic", r))
			}
		}()
		handle.err = task()
	})
	if err != nil {
		close(handle.done)
		return nil, fmt.Errorf("failed to schedule task: %w", err)
	}
	return handle, nil
}

// WaitForAll joins every handle and returns the first task error
// encountered. All tasks are always joined before an error is surfaced:
// no task outlives the caller that scheduled it.
func (s *Scheduler) WaitForAll(handles []*TaskHandle) error {
	var firstErr error
	for _, h := range handles {
		if err := h.Wait(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Workers returns the pool's worker count
func (s *Scheduler) Workers() int {
	return s.pool.Cap()
}

// Release tears the worker pool down. The scheduler must not be used
// afterwards.
func (s *Scheduler) Release() {
	s.pool.Release()
}
