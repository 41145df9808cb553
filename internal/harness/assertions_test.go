package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/evsync/internal/eventsync"
)

func sampleTrace() []eventsync.Record {
	return []eventsync.Record{
		{Seq: 1, Type: eventsync.RecordEntered, EntryID: "A"},
		{Seq: 2, Type: eventsync.RecordAdmitted, EntryID: "A", Group: "subject:p1", Bucket: "kind:Move"},
		{Seq: 3, Type: eventsync.RecordEntered, EntryID: "B"},
		{Seq: 4, Type: eventsync.RecordQueued, EntryID: "B", Group: "subject:p1", Bucket: "kind:Move"},
		{Seq: 5, Type: eventsync.RecordAdmitted, EntryID: "B", Group: "subject:p1", Bucket: "tag:zone"},
	}
}

func TestAssertTraceContains_Found(t *testing.T) {
	err := assertTraceContains(sampleTrace(), Assertion{
		Type:   AssertTraceContains,
		Record: "queued",
		Entry:  "B",
		Bucket: "kind:Move",
	})
	assert.NoError(t, err)
}

func TestAssertTraceContains_RecordOnly(t *testing.T) {
	err := assertTraceContains(sampleTrace(), Assertion{Type: AssertTraceContains, Record: "entered"})
	assert.NoError(t, err)
}

func TestAssertTraceContains_NotFound(t *testing.T) {
	err := assertTraceContains(sampleTrace(), Assertion{
		Type:   AssertTraceContains,
		Record: "queued",
		Entry:  "A",
	})
	require.Error(t, err)

	assertErr, ok := err.(*AssertionError)
	require.True(t, ok)
	assert.Equal(t, "trace_contains", assertErr.Type)
	assert.Equal(t, "queued entry=A", assertErr.Expected)
	assert.Equal(t, "no matching record", assertErr.Actual)
}

func TestAssertTraceContains_WrongBucket(t *testing.T) {
	err := assertTraceContains(sampleTrace(), Assertion{
		Type:   AssertTraceContains,
		Record: "admitted",
		Entry:  "B",
		Bucket: "kind:Move",
	})
	assert.Error(t, err)
}

func TestAssertTraceCount(t *testing.T) {
	tests := []struct {
		name    string
		a       Assertion
		wantErr bool
	}{
		{"all admitted", Assertion{Record: "admitted", Count: 2}, false},
		{"one entry", Assertion{Record: "admitted", Entry: "B", Count: 1}, false},
		{"zero allowed", Assertion{Record: "evicted", Count: 0}, false},
		{"too few", Assertion{Record: "entered", Count: 3}, true},
		{"too many", Assertion{Record: "admitted", Count: 1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.a.Type = AssertTraceCount
			err := assertTraceCount(sampleTrace(), tt.a)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "Assertion failed: trace_count")
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestAssertAdmissionOrder(t *testing.T) {
	result := NewResult()
	result.Admissions = []string{"A", "C", "B", "D"}

	tests := []struct {
		name    string
		entries []string
		wantErr string
	}{
		{"full order", []string{"A", "C", "B", "D"}, ""},
		{"interleaving allowed", []string{"A", "B"}, ""},
		{"single", []string{"D"}, ""},
		{"wrong order", []string{"B", "C"}, "admissions were [A C B D]"},
		{"never admitted", []string{"A", "E"}, "never admitted"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := assertAdmissionOrder(result, Assertion{Type: AssertAdmissionOrder, Entries: tt.entries})
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestAssertionError_IncludesTrace(t *testing.T) {
	err := &AssertionError{
		Type:     AssertTraceCount,
		Expected: "1 x queued",
		Actual:   "0 matching records",
		Trace:    sampleTrace()[:2],
	}

	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: trace_count\n")
	assert.Contains(t, msg, "  Expected: 1 x queued\n")
	assert.Contains(t, msg, "  Actual: 0 matching records\n")
	assert.Contains(t, msg, "  1 entered A\n")
	assert.Contains(t, msg, "  2 admitted A group=subject:p1 bucket=kind:Move\n")
}

func TestEvaluateAssertions(t *testing.T) {
	result := NewResult()
	result.Trace = sampleTrace()
	result.Admissions = []string{"A", "B"}

	errs := EvaluateAssertions(result, []Assertion{
		{Type: AssertAdmissionOrder, Entries: []string{"A", "B"}},
		{Type: AssertTraceContains, Record: "evicted"},
		{Type: AssertTraceCount, Record: "queued", Count: 1},
		{Type: "final_state"},
	})

	require.Len(t, errs, 2)
	assert.Contains(t, errs[0], "Assertion failed: trace_contains")
	assert.Contains(t, errs[1], `assertion[3]: unknown assertion type "final_state"`)
}
