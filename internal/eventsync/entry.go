package eventsync

import (
	"context"
	"time"
)

// route records which cleanup path an entry takes on Exit. It is resolved
// once in Enter so a PerSubject entry that fell back to Global also exits
// through the Global path.
type route int

const (
	routeGlobal route = iota + 1
	routeSubject
)

// closedSignal is shared by every entry admitted without queueing.
var closedSignal = func() chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}()

// Entry is one admitted-or-admitting event occurrence.
//
// An Entry is created by Synchronizer.Enter, lives until the matching Exit,
// and is never reused. All fields except the admission channel are owned by
// the coordinating goroutine.
type Entry struct {
	ID        string
	Payload   any
	Kind      Kind
	Policy    Policy
	CreatedAt time.Time

	route   route
	subject SubjectID

	pending   int           // buckets this entry is still queued in
	signal    chan struct{} // nil until the entry is first queued
	fired     bool
	onAdmit   []func()
	exited    bool
	evictions int
}

// Subject returns the subject the entry was routed to, if any.
func (e *Entry) Subject() (SubjectID, bool) {
	if e.route != routeSubject {
		return "", false
	}
	return e.subject, true
}

// Pending returns how many buckets the entry is still waiting in.
// Must be called on the coordinating goroutine.
func (e *Entry) Pending() int {
	return e.pending
}

// IsAdmitted reports whether the entry is current in every bucket it was
// placed into. Must be called on the coordinating goroutine.
func (e *Entry) IsAdmitted() bool {
	return e.pending == 0
}

// Evictions returns how many buckets forcibly evicted this entry.
func (e *Entry) Evictions() int {
	return e.evictions
}

// Admitted returns a channel that is closed once the entry is admitted.
// Safe to call from any goroutine after Enter has returned.
func (e *Entry) Admitted() <-chan struct{} {
	if e.signal == nil {
		return closedSignal
	}
	return e.signal
}

// Wait blocks until the entry is admitted or ctx is done.
// Never call Wait on the coordinating goroutine; use OnAdmitted there.
func (e *Entry) Wait(ctx context.Context) error {
	select {
	case <-e.Admitted():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OnAdmitted registers a continuation that runs on the coordinating goroutine
// when the entry is admitted. If the entry is already admitted, fn runs
// immediately.
func (e *Entry) OnAdmitted(fn func()) {
	if e.pending == 0 {
		fn()
		return
	}
	e.onAdmit = append(e.onAdmit, fn)
}

// queued is called by a bucket that appended the entry to its queue.
func (e *Entry) queued() {
	if e.signal == nil {
		e.signal = make(chan struct{})
	}
	e.pending++
}

// promoted is called by a bucket that made the entry current after it had
// been queued. The signal fires when the last pending bucket promotes it;
// promoted reports whether this call fired it.
func (e *Entry) promoted() bool {
	if e.pending > 0 {
		e.pending--
	}
	if e.pending > 0 || e.signal == nil {
		return false
	}
	if !e.fired {
		e.fired = true
		close(e.signal)
		return true
	}
	return len(e.onAdmit) > 0
}

// runContinuations drains the OnAdmitted callbacks. The synchronizer calls it
// after the public operation that admitted the entry has finished mutating
// state, so callbacks may safely call back into the synchronizer.
func (e *Entry) runContinuations() {
	callbacks := e.onAdmit
	e.onAdmit = nil
	for _, fn := range callbacks {
		fn()
	}
}
