package eventsync

import (
	"sync/atomic"
	"time"
)

// RecordType names a synchronization trace event.
type RecordType string

const (
	RecordEntered      RecordType = "entered"
	RecordQueued       RecordType = "queued"
	RecordAdmitted     RecordType = "admitted"
	RecordReleased     RecordType = "released"
	RecordEvicted      RecordType = "evicted"
	RecordExited       RecordType = "exited"
	RecordFallback     RecordType = "fallback"
	RecordGroupCreated RecordType = "group_created"
	RecordGroupRemoved RecordType = "group_removed"
)

// Record is one trace event. Bucket-level records carry Group and Bucket;
// group lifecycle records carry only Group.
type Record struct {
	Seq     int64      `json:"seq"`
	Type    RecordType `json:"type"`
	EntryID string     `json:"entry_id,omitempty"`
	Kind    string     `json:"kind,omitempty"`
	Scope   string     `json:"scope,omitempty"`
	Subject string     `json:"subject,omitempty"`
	Group   string     `json:"group,omitempty"`
	Bucket  string     `json:"bucket,omitempty"`
	At      time.Time  `json:"at"`
}

// Observer receives trace records on the coordinating goroutine.
// Implementations must not call back into the Synchronizer.
type Observer interface {
	Observe(Record)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Record)

// Observe implements Observer.
func (f ObserverFunc) Observe(r Record) {
	f(r)
}

// Sequence is a monotonic logical clock that stamps trace records.
// Never use wall-clock time for ordering records.
//
// Thread-safety: Sequence is safe for concurrent use.
type Sequence struct {
	seq atomic.Int64
}

// NewSequence creates a sequence starting at 0.
func NewSequence() *Sequence {
	return &Sequence{}
}

// NewSequenceAt creates a sequence that resumes after start.
// Used when appending to an existing journal.
func NewSequenceAt(start int64) *Sequence {
	s := &Sequence{}
	s.seq.Store(start)
	return s
}

// Next returns the next sequence number.
func (s *Sequence) Next() int64 {
	return s.seq.Add(1)
}

// Current returns the last issued sequence number.
func (s *Sequence) Current() int64 {
	return s.seq.Load()
}
