package eventsync

import (
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequence_Monotonic(t *testing.T) {
	seq := NewSequence()
	assert.Equal(t, int64(0), seq.Current())
	assert.Equal(t, int64(1), seq.Next())
	assert.Equal(t, int64(2), seq.Next())
	assert.Equal(t, int64(2), seq.Current())
}

func TestSequence_ResumesAt(t *testing.T) {
	seq := NewSequenceAt(41)
	assert.Equal(t, int64(42), seq.Next())
}

func TestSequence_ConcurrentUnique(t *testing.T) {
	seq := NewSequence()
	const workers, per = 8, 100

	var mu sync.Mutex
	seen := make(map[int64]bool)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < per; j++ {
				n := seq.Next()
				mu.Lock()
				seen[n] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, workers*per)
	assert.Equal(t, int64(workers*per), seq.Current())
}

func TestUUIDv7Generator(t *testing.T) {
	g := UUIDv7Generator{}
	a, b := g.Generate(), g.Generate()

	parsed, err := uuid.Parse(a)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
	assert.NotEqual(t, a, b)
}

func TestFixedGenerator(t *testing.T) {
	g := NewFixedGenerator("first", "second")
	assert.Equal(t, "first", g.Generate())
	assert.Equal(t, "second", g.Generate())
	assert.Equal(t, "entry-3", g.Generate())
}

func TestSyncError_Format(t *testing.T) {
	tests := []struct {
		name string
		err  *SyncError
		want string
	}{
		{
			"code only",
			NewAffinityError("Tick", "overlapping call into synchronizer"),
			"AFFINITY_VIOLATION: Tick: overlapping call into synchronizer",
		},
		{
			"entry",
			&SyncError{Code: ErrCodeStalledOccupant, Message: "evicted", EntryID: "e-1"},
			"STALLED_OCCUPANT: evicted (entry=e-1)",
		},
		{
			"entry and subject",
			&SyncError{Code: ErrCodeConfigMismatch, Message: "no subject", EntryID: "e-1", Subject: "p1"},
			"CONFIG_MISMATCH: no subject (entry=e-1, subject=p1)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestIsAffinityError(t *testing.T) {
	err := NewAffinityError("Enter", "called outside the coordinating goroutine")
	assert.True(t, IsAffinityError(err))
	assert.True(t, IsAffinityError(fmt.Errorf("wrapped: %w", err)))
	assert.False(t, IsAffinityError(&SyncError{Code: ErrCodeConfigMismatch}))
	assert.False(t, IsAffinityError(fmt.Errorf("plain")))
}

type namedEvent struct{ name string }

func (e namedEvent) EventKind() string { return e.name }

func TestKindOf(t *testing.T) {
	assert.Equal(t, Kind("PlayerMoved"), KindOf(namedEvent{name: "PlayerMoved"}))
	assert.Equal(t, Kind("eventsync.namedEvent"), KindOf(namedEvent{}), "empty name falls back to type")
	assert.Equal(t, Kind("*eventsync.bareEvent"), KindOf(&bareEvent{}))
	assert.Equal(t, Kind("<nil>"), KindOf(nil))
}

func TestSubjectOf(t *testing.T) {
	id, ok := subjectOf(ev("A", "K", "p1"))
	assert.True(t, ok)
	assert.Equal(t, SubjectID("p1"), id)

	_, ok = subjectOf(ev("A", "K", ""))
	assert.False(t, ok)

	_, ok = subjectOf(&bareEvent{})
	assert.False(t, ok)
}

func TestLivenessFunc(t *testing.T) {
	l := LivenessFunc(func(id SubjectID) bool { return id == "p1" })
	assert.True(t, l.IsConnected("p1"))
	assert.False(t, l.IsConnected("p2"))
}
