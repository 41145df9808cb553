package eventsync

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/roach88/evsync/internal/testutil"
)

// testEvent is a payload with an explicit ID, kind and optional subject.
type testEvent struct {
	id      string
	kind    string
	subject SubjectID
}

func (e *testEvent) EventID() string   { return e.id }
func (e *testEvent) EventKind() string { return e.kind }
func (e *testEvent) Subject() (SubjectID, bool) {
	return e.subject, e.subject != ""
}

// bareEvent has no subject capability.
type bareEvent struct {
	Name string
}

func ev(id, kind string, subject SubjectID) *testEvent {
	return &testEvent{id: id, kind: kind, subject: subject}
}

func perSubject(tags ...string) Policy {
	return Policy{Scope: ScopePerSubject, Tags: tags}
}

func global(tags ...string) Policy {
	return Policy{Scope: ScopeGlobal, Tags: tags}
}

// recorder collects trace records.
type recorder struct {
	mu      sync.Mutex
	records []Record
}

func (r *recorder) Observe(rec Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
}

func (r *recorder) types(entryID string) []RecordType {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []RecordType
	for _, rec := range r.records {
		if rec.EntryID == entryID {
			out = append(out, rec.Type)
		}
	}
	return out
}

func (r *recorder) count(t RecordType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, rec := range r.records {
		if rec.Type == t {
			n++
		}
	}
	return n
}

// disconnected is a mutable Liveness for tests.
type disconnected map[SubjectID]bool

func (d disconnected) IsConnected(id SubjectID) bool { return !d[id] }

type fixture struct {
	s     *Synchronizer
	clock *testutil.ManualClock
	rec   *recorder
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	clock := testutil.NewManualClock()
	rec := &recorder{}
	base := []Option{
		WithClock(clock),
		WithObserver(rec),
		WithIDGenerator(testutil.NewSequenceGenerator("e")),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}
	return &fixture{
		s:     New(append(base, opts...)...),
		clock: clock,
		rec:   rec,
	}
}

func (f *fixture) advance(d time.Duration) {
	f.clock.Advance(d)
}

// signalled reports whether the entry's admission channel is closed.
func signalled(e *Entry) bool {
	select {
	case <-e.Admitted():
		return true
	default:
		return false
	}
}
