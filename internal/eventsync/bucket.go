package eventsync

import "time"

// bucket is a single mutual-exclusion queue for one domain (a tag or a
// payload kind) within one group.
//
// INVARIANTS:
//   - at most one current entry
//   - an entry appears in queue at most once
//   - current is never also in queue
//   - queue non-empty implies current non-nil
type bucket struct {
	group *group
	key   string // "tag:<tag>" or "kind:<kind>"
	s     *Synchronizer

	current *Entry
	queue   []*Entry
}

func newBucket(g *group, key string) *bucket {
	return &bucket{group: g, key: key, s: g.s}
}

// enter places e into the bucket. Returns true if e became current
// immediately, false if it was queued.
func (b *bucket) enter(e *Entry, now time.Time) bool {
	if b.current == e {
		return true
	}
	for _, q := range b.queue {
		if q == e {
			return false
		}
	}

	if b.current != nil {
		b.checkTimeout(now)
	}
	if b.current == nil {
		b.current = e
		b.s.emit(RecordAdmitted, e, b)
		return true
	}

	b.queue = append(b.queue, e)
	e.queued()
	b.s.emit(RecordQueued, e, b)
	return false
}

// exit releases e if it is the current occupant.
// Returns owned=false when e does not own the bucket (a no-op).
func (b *bucket) exit(e *Entry) (owned bool, empty bool) {
	if b.current == nil || b.current != e {
		return false, b.current == nil
	}
	b.s.emit(RecordReleased, e, b)
	b.promote()
	return true, b.current == nil
}

// promote replaces the current occupant with the next queued entry, or
// clears it when nothing is waiting. Entries that already exited while still
// queued are dropped rather than admitted.
func (b *bucket) promote() {
	for len(b.queue) > 0 {
		next := b.queue[0]
		b.queue[0] = nil
		if len(b.queue) == 1 {
			b.queue = b.queue[:0]
		} else {
			b.queue = b.queue[1:]
		}
		if next.exited {
			continue
		}
		b.current = next
		b.s.emit(RecordAdmitted, next, b)
		if next.promoted() {
			b.s.ready = append(b.s.ready, next)
		}
		return
	}
	b.current = nil
}

// checkTimeout evicts stalled occupants until the current one is fresh or
// the bucket is empty.
func (b *bucket) checkTimeout(now time.Time) {
	for b.current != nil {
		elapsed := now.Sub(b.current.CreatedAt)
		if elapsed <= b.s.timeout {
			return
		}
		stale := b.current
		stale.evictions++
		b.s.logger.Warn("evicting stalled event",
			"entry_id", stale.ID,
			"kind", string(stale.Kind),
			"bucket", b.key,
			"group", b.group.name(),
			"elapsed", elapsed,
			"timeout", b.s.timeout,
			"event", "stalled_occupant",
		)
		b.s.emit(RecordEvicted, stale, b)
		b.promote()
	}
}

// len returns the number of queued entries, excluding current.
func (b *bucket) len() int {
	return len(b.queue)
}
