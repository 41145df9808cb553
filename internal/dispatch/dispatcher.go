// Package dispatch is the boundary between an event source and the
// synchronizer.
//
// A Dispatcher runs every Synchronizer call on a single loop.Loop, starts a
// handler once its entry is admitted, and always exits the entry when the
// handler finishes, fails or panics.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/evsync/internal/eventsync"
	"github.com/roach88/evsync/internal/loop"
	"github.com/roach88/evsync/internal/subject"
)

// ErrHandlerPanic wraps the value recovered from a panicking handler.
var ErrHandlerPanic = errors.New("handler panicked")

// Handler processes one admitted event on the loop goroutine. The entry is
// exited when Handler returns.
type Handler func(ctx context.Context, payload any) error

// AsyncHandler starts processing one admitted event on the loop goroutine and
// reports completion by calling done exactly once, from any goroutine. The
// entry stays current in its buckets until done is called.
type AsyncHandler func(ctx context.Context, payload any, done func(error))

// Resolver maps a payload kind to its synchronization policy.
// policy.Catalog implements it.
type Resolver interface {
	Lookup(kind eventsync.Kind) eventsync.Policy
}

// Dispatcher serializes event handlers through a Synchronizer.
//
// Thread-safety: all methods may be called from any goroutine.
type Dispatcher struct {
	loop     *loop.Loop
	sync     *eventsync.Synchronizer
	resolver Resolver
	logger   *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithResolver sets the policy source used by Publish.
func WithResolver(r Resolver) Option {
	return func(d *Dispatcher) {
		d.resolver = r
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithRegistry forwards subject disconnects to the synchronizer so that idle
// groups of departed subjects are discarded promptly.
func WithRegistry(r *subject.Registry) Option {
	return func(d *Dispatcher) {
		r.OnDisconnect(func(id eventsync.SubjectID) {
			d.loop.Post(func() { d.sync.SubjectDisconnected(id) })
		})
	}
}

// New creates a Dispatcher. The synchronizer must only be used through the
// loop; constructing it with eventsync.WithAffinity(l) enforces that.
func New(l *loop.Loop, s *eventsync.Synchronizer, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		loop:   l,
		sync:   s,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Publish dispatches payload with the policy its kind resolves to. Without a
// resolver every event is untracked.
func (d *Dispatcher) Publish(ctx context.Context, payload any, h Handler) <-chan error {
	p := eventsync.Policy{Scope: eventsync.ScopeNone}
	if d.resolver != nil {
		p = d.resolver.Lookup(eventsync.KindOf(payload))
	}
	return d.Dispatch(ctx, payload, p, h)
}

// Dispatch enters payload under policy and runs h once admitted. The returned
// channel receives h's result (or the skip/stop reason) exactly once.
func (d *Dispatcher) Dispatch(ctx context.Context, payload any, p eventsync.Policy, h Handler) <-chan error {
	return d.DispatchAsync(ctx, payload, p, func(ctx context.Context, payload any, done func(error)) {
		done(h(ctx, payload))
	})
}

// DispatchAsync is Dispatch for handlers that complete later.
//
// If ctx is done by the time the entry is admitted, h is skipped, the entry
// exits immediately and ctx.Err() is reported. Queued entries are not
// cancelled: they keep their place until admitted or evicted.
func (d *Dispatcher) DispatchAsync(ctx context.Context, payload any, p eventsync.Policy, h AsyncHandler) <-chan error {
	result := make(chan error, 1)
	if !d.loop.Post(func() { d.enter(ctx, payload, p, h, result) }) {
		result <- loop.ErrStopped
	}
	return result
}

// enter runs on the loop.
func (d *Dispatcher) enter(ctx context.Context, payload any, p eventsync.Policy, h AsyncHandler, result chan<- error) {
	e := d.sync.Enter(payload, p)
	if e == nil || e.IsAdmitted() {
		d.start(ctx, e, payload, h, result)
		return
	}

	d.logger.Debug("event queued",
		"entry_id", e.ID,
		"kind", string(e.Kind),
		"pending", e.Pending(),
	)
	// Continuations run inside the synchronizer call that admitted e, so
	// the handler is re-posted to start in a task of its own.
	e.OnAdmitted(func() {
		if !d.loop.Post(func() { d.start(ctx, e, payload, h, result) }) {
			d.sync.Exit(e)
			result <- loop.ErrStopped
		}
	})
}

// start runs on the loop once e is admitted (or untracked when e is nil).
func (d *Dispatcher) start(ctx context.Context, e *eventsync.Entry, payload any, h AsyncHandler, result chan<- error) {
	began := time.Now()
	var once sync.Once
	done := func(err error) {
		once.Do(func() {
			exit := func() {
				d.sync.Exit(e)
				d.logCompletion(e, began, err)
				result <- err
			}
			if d.loop.InLoop() {
				exit()
				return
			}
			if !d.loop.Post(exit) {
				result <- errors.Join(err, loop.ErrStopped)
			}
		})
	}

	if err := ctx.Err(); err != nil {
		d.logger.Debug("handler skipped: context done before admission", "error", err)
		done(err)
		return
	}

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("handler panicked",
				"panic", fmt.Sprint(r),
				"kind", string(eventsync.KindOf(payload)),
			)
			done(fmt.Errorf("%w: %v", ErrHandlerPanic, r))
		}
	}()
	h(ctx, payload, done)
}

func (d *Dispatcher) logCompletion(e *eventsync.Entry, began time.Time, err error) {
	if e == nil {
		return
	}
	attrs := []any{
		"entry_id", e.ID,
		"kind", string(e.Kind),
		"duration", time.Since(began),
	}
	if err != nil {
		d.logger.Warn("handler failed", append(attrs, "error", err)...)
		return
	}
	d.logger.Debug("handler completed", attrs...)
}

// StartSweep drives the synchronizer's timeout sweep every interval until
// ctx is done.
func (d *Dispatcher) StartSweep(ctx context.Context, interval time.Duration) {
	d.loop.Every(ctx, interval, d.sync.Tick)
}

// Stats returns a snapshot of synchronizer state taken on the loop.
func (d *Dispatcher) Stats(ctx context.Context) (eventsync.Stats, error) {
	var st eventsync.Stats
	err := d.loop.Do(ctx, func() { st = d.sync.Stats() })
	return st, err
}
