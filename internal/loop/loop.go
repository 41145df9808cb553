// Package loop provides the single-owner execution loop that drives the
// synchronizer.
//
// Every Synchronizer call is made from a task running on the loop, so the
// coordinator state is only ever touched by one goroutine. Other goroutines
// interact with it by posting tasks.
package loop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync/atomic"
	"time"
)

// ErrStopped is returned by Do when the loop no longer accepts tasks.
var ErrStopped = errors.New("loop stopped")

// Loop runs posted tasks one at a time, in FIFO order, on the goroutine that
// called Run.
//
// Thread-safety: Post, Do, Every, Stop, Len and InLoop may be called from any
// goroutine. Run must be called from exactly one goroutine.
type Loop struct {
	queue  *taskQueue
	logger *slog.Logger

	running atomic.Bool
	ownerID atomic.Uint64 // goroutine ID of Run, 0 when not running
}

// Option configures a Loop.
type Option func(*Loop)

// WithLogger sets the logger used for loop lifecycle and task panics.
func WithLogger(l *slog.Logger) Option {
	return func(lp *Loop) {
		if l != nil {
			lp.logger = l
		}
	}
}

// New creates a Loop. Call Run to start executing tasks.
func New(opts ...Option) *Loop {
	l := &Loop{
		queue:  newTaskQueue(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Post submits a task. Returns false if the loop has been stopped.
func (l *Loop) Post(t Task) bool {
	if t == nil {
		return false
	}
	return l.queue.Enqueue(t)
}

// Do posts a task and blocks until it has run or ctx is done.
// Never call Do from a task: the loop would wait on itself.
func (l *Loop) Do(ctx context.Context, t Task) error {
	done := make(chan struct{})
	if !l.Post(func() {
		defer close(done)
		t()
	}) {
		return ErrStopped
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run executes tasks until ctx is cancelled or Stop is called.
//
// After Stop, tasks already queued are drained before Run returns nil.
// On context cancellation Run closes the queue and returns ctx.Err()
// without draining.
func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return fmt.Errorf("loop already running")
	}
	defer l.running.Store(false)

	l.ownerID.Store(goroutineID())
	defer l.ownerID.Store(0)

	l.logger.Info("loop starting")

	for {
		if t, ok := l.queue.TryDequeue(); ok {
			l.execute(t)
			continue
		}

		select {
		case <-ctx.Done():
			l.logger.Info("loop stopping: context cancelled")
			l.queue.Close()
			return ctx.Err()

		case <-l.queue.Wait():
			// The signal channel is closed by Stop, so this case keeps
			// firing until the queue has been drained.
			if l.queue.Closed() && l.queue.Len() == 0 {
				l.logger.Info("loop stopping: queue closed")
				return nil
			}
		}
	}
}

// execute runs one task. A panicking task is logged and the loop continues
// with the next task.
func (l *Loop) execute(t Task) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("task panicked",
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
		}
	}()
	t()
}

// Stop stops accepting tasks. Run drains what is queued and returns.
func (l *Loop) Stop() {
	l.queue.Close()
}

// Len returns the number of queued tasks.
func (l *Loop) Len() int {
	return l.queue.Len()
}

// InLoop reports whether the caller is the goroutine executing Run.
// Implements eventsync.Affinity.
func (l *Loop) InLoop() bool {
	owner := l.ownerID.Load()
	if owner == 0 {
		return false
	}
	return goroutineID() == owner
}

// goroutineID parses the current goroutine's ID from its stack header
// ("goroutine 42 [running]:").
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] < '0' || buf[i] > '9' {
			break
		}
		id = id*10 + uint64(buf[i]-'0')
	}
	return id
}

// Every posts fn every interval until ctx is done or the loop stops.
// Ticks are skipped rather than queued while a previous fn is still waiting
// to run.
func (l *Loop) Every(ctx context.Context, interval time.Duration, fn Task) {
	if interval <= 0 || fn == nil {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var pending atomic.Bool
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !pending.CompareAndSwap(false, true) {
					continue
				}
				if !l.Post(func() {
					pending.Store(false)
					fn()
				}) {
					return
				}
			}
		}
	}()
}
