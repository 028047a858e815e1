// Package scheduler provides the cooperative, single-goroutine execution model
// the bookmark engine runs on. Handlers never run concurrently with each other:
// background work (subprocess calls, timers) hands its completion back to the
// loop with Post.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// ErrStopped is returned by Do when the loop is no longer running.
var ErrStopped = errors.New("scheduler: loop stopped")

// Scheduler queues work onto a single logical thread.
type Scheduler interface {
	// Post queues fn to run on the loop. Safe to call from any goroutine.
	Post(fn func())

	// AfterFunc runs fn on the loop once d has elapsed.
	AfterFunc(d time.Duration, fn func()) Timer

	// Now returns the scheduler's notion of the current time.
	Now() time.Time
}

// Timer is a pending AfterFunc callback.
type Timer interface {
	// Stop prevents the callback from running. It reports whether the call
	// stopped the timer before its callback ran.
	Stop() bool
}

// Loop is the production Scheduler: a goroutine draining an unbounded queue.
type Loop struct {
	mu      sync.Mutex
	pending []func()
	wake    chan struct{}
	stopped atomic.Bool
}

// NewLoop creates a loop. Nothing runs until Run is called.
func NewLoop() *Loop {
	return &Loop{wake: make(chan struct{}, 1)}
}

// Run drains the queue until ctx is cancelled. Work still queued at that
// point is dropped.
func (l *Loop) Run(ctx context.Context) error {
	defer l.stopped.Store(true)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
			l.drain()
		}
	}
}

func (l *Loop) drain() {
	for {
		l.mu.Lock()
		batch := l.pending
		l.pending = nil
		l.mu.Unlock()

		if len(batch) == 0 {
			return
		}
		for _, fn := range batch {
			fn()
		}
	}
}

// Post queues fn. It never blocks, so handlers may post follow-up work.
func (l *Loop) Post(fn func()) {
	if l.stopped.Load() {
		return
	}
	l.mu.Lock()
	l.pending = append(l.pending, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Do runs fn on the loop and waits for it to return. It must not be called
// from the loop itself.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	if l.stopped.Load() {
		return ErrStopped
	}
	done := make(chan struct{})
	l.Post(func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AfterFunc arms a wall-clock timer whose callback is posted to the loop.
func (l *Loop) AfterFunc(d time.Duration, fn func()) Timer {
	lt := &loopTimer{}
	lt.timer = time.AfterFunc(d, func() {
		l.Post(func() {
			// Stop may have been called after the timer fired but before
			// this callback reached the front of the queue.
			if lt.cancelled.Load() {
				return
			}
			fn()
		})
	})
	return lt
}

// Now returns the wall clock.
func (l *Loop) Now() time.Time {
	return time.Now()
}

type loopTimer struct {
	timer     *time.Timer
	cancelled atomic.Bool
}

func (t *loopTimer) Stop() bool {
	stopped := t.timer.Stop()
	return !t.cancelled.Swap(true) && stopped
}
