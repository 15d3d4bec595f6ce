package scheduler

import (
	"sync"
	"time"
)

// PausableLoop runs a function periodically on a single background
// goroutine. Pause and Resume may be called from any goroutine and are
// idempotent; Finish is terminal, must be called exactly once, and joins
// the goroutine before returning.
type PausableLoop struct {
	mu       sync.Mutex
	cond     *sync.Cond
	paused   bool
	finished bool
	stop     chan struct{}
	done     chan struct{}
}

// NewPausableLoop starts the loop. fn receives a monotonically
// increasing iteration counter starting at zero. A non-positive interval
// runs the function back to back.
func NewPausableLoop(interval time.Duration, fn func(iteration uint64)) *PausableLoop {
	l := &PausableLoop{
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	l.cond = sync.NewCond(&l.mu)

	go func() {
		defer close(l.done)
		var counter uint64
		for {
			if interval > 0 {
				select {
				case <-time.After(interval):
				case <-l.stop:
					return
				}
			}

			l.mu.Lock()
			for l.paused && !l.finished {
				l.cond.Wait()
			}
			finished := l.finished
			l.mu.Unlock()
			if finished {
				return
			}

			fn(counter)
			counter++
		}
	}()

	return l
}

// Pause suspends the loop before its next iteration
func (l *PausableLoop) Pause() {
	l.mu.Lock()
	l.paused = true
	l.mu.Unlock()
}

// Resume continues a paused loop. Resuming a running loop is a no-op.
func (l *PausableLoop) Resume() {
	l.mu.Lock()
	l.paused = false
	l.mu.Unlock()
	l.cond.Signal()
}

// Finish terminates the loop and joins its goroutine. Must be called
// exactly once.
func (l *PausableLoop) Finish() {
	l.mu.Lock()
	l.paused = false
	l.finished = true
	l.mu.Unlock()
	l.cond.Signal()
	close(l.stop)
	<-l.done
}
