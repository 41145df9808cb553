// Package subject tracks which subjects are currently connected.
//
// The synchronizer consults the registry (as an eventsync.Liveness) when a
// subject group empties, and the dispatcher subscribes to disconnects so an
// idle group is discarded as soon as its subject leaves.
package subject

import (
	"sort"
	"sync"

	"github.com/roach88/evsync/internal/eventsync"
)

// Registry is the set of connected subjects.
//
// Thread-safety: safe for concurrent use. Disconnect hooks run on the
// goroutine that called Disconnect, after the registry lock is released.
type Registry struct {
	mu        sync.RWMutex
	connected map[eventsync.SubjectID]struct{}
	hooks     []func(eventsync.SubjectID)
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{connected: make(map[eventsync.SubjectID]struct{})}
}

// Connect marks a subject as connected. Returns false if it already was.
func (r *Registry) Connect(id eventsync.SubjectID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.connected[id]; ok {
		return false
	}
	r.connected[id] = struct{}{}
	return true
}

// Disconnect marks a subject as gone and notifies hooks. Returns false (and
// notifies nobody) if the subject was not connected.
func (r *Registry) Disconnect(id eventsync.SubjectID) bool {
	r.mu.Lock()
	if _, ok := r.connected[id]; !ok {
		r.mu.Unlock()
		return false
	}
	delete(r.connected, id)
	hooks := make([]func(eventsync.SubjectID), len(r.hooks))
	copy(hooks, r.hooks)
	r.mu.Unlock()

	for _, hook := range hooks {
		hook(id)
	}
	return true
}

// IsConnected implements eventsync.Liveness.
func (r *Registry) IsConnected(id eventsync.SubjectID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.connected[id]
	return ok
}

// Connected returns the connected subjects in sorted order.
func (r *Registry) Connected() []eventsync.SubjectID {
	r.mu.RLock()
	out := make([]eventsync.SubjectID, 0, len(r.connected))
	for id := range r.connected {
		out = append(out, id)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// OnDisconnect registers a hook called for every subsequent disconnect.
func (r *Registry) OnDisconnect(fn func(eventsync.SubjectID)) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hooks = append(r.hooks, fn)
}

var _ eventsync.Liveness = (*Registry)(nil)
