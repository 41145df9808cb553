package eventsync

import "sync/atomic"

// Affinity reports whether the caller is running on the coordinating
// goroutine. internal/loop.Loop implements it.
type Affinity interface {
	InLoop() bool
}

// guard detects calls that overlap with another call in progress, and with
// an Affinity set, calls made off the coordinating goroutine.
type guard struct {
	busy     atomic.Bool
	affinity Affinity
}

// acquire panics with an affinity SyncError if the caller is off-loop or
// another call is already inside the synchronizer.
func (g *guard) acquire(op string) {
	if g.affinity != nil && !g.affinity.InLoop() {
		panic(NewAffinityError(op, "called outside the coordinating goroutine"))
	}
	if !g.busy.CompareAndSwap(false, true) {
		panic(NewAffinityError(op, "overlapping call into synchronizer"))
	}
}

func (g *guard) release() {
	g.busy.Store(false)
}
