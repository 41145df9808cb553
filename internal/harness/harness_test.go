package harness

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/evsync/internal/eventsync"
)

func enter(id, kind, subject, scope string, tags ...string) Step {
	return Step{Enter: &EnterStep{ID: id, Kind: kind, Subject: subject, Scope: scope, Tags: tags}}
}

func intPtr(n int) *int { return &n }

func TestRun_MinimalScenario(t *testing.T) {
	scenario := &Scenario{
		Name:        "minimal",
		Description: "One per-subject event",
		Steps: []Step{
			enter("A", "Move", "p1", "per_subject"),
			{Exit: "A"},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)

	assert.True(t, result.Pass)
	assert.Empty(t, result.Errors)
	assert.Equal(t, []string{"A"}, result.Admissions)
	require.Len(t, result.Trace, 6)
	assert.Equal(t, eventsync.RecordEntered, result.Trace[0].Type)
	assert.Equal(t, eventsync.RecordGroupRemoved, result.Trace[5].Type)
	assert.Equal(t, 0, result.Final.SubjectGroups)
}

func TestRun_UntrackedEventAdmittedWithoutTrace(t *testing.T) {
	scenario := &Scenario{
		Name:        "untracked",
		Description: "None scope",
		Steps: []Step{
			enter("A", "Chat", "p1", "none"),
			enter("B", "Chat", "p1", "pure"),
			{Exit: "A"},
			{Expect: &ExpectStep{Admitted: []string{"A", "B"}, NoGroups: []string{"p1"}}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)

	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Empty(t, result.Trace)
	assert.Equal(t, []string{"A", "B"}, result.Admissions)
}

func TestRun_ExpectFailuresReported(t *testing.T) {
	scenario := &Scenario{
		Name:        "expect_failures",
		Description: "Every expectation is wrong",
		Steps: []Step{
			enter("A", "Move", "p1", "per_subject"),
			enter("B", "Move", "p1", "per_subject"),
			{Expect: &ExpectStep{
				Admitted:      []string{"B"},
				Pending:       []string{"A"},
				Evicted:       []string{"A"},
				Groups:        []string{"p2"},
				NoGroups:      []string{"p1"},
				GlobalEntries: intPtr(1),
				Queued:        intPtr(0),
				Current:       []CurrentExpect{{Subject: "p1", Kind: "Move", ID: "B"}},
			}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 8)
	assert.Contains(t, result.Errors[0], `entry "B": expected admitted`)
	assert.Contains(t, result.Errors[1], `entry "A": expected pending`)
	assert.Contains(t, result.Errors[2], `entry "A": expected evicted`)
	assert.Contains(t, result.Errors[3], `expected group for subject "p2", groups are [p1]`)
	assert.Contains(t, result.Errors[4], `expected no group for subject "p1"`)
	assert.Contains(t, result.Errors[5], "expected 1 global entries, got 0")
	assert.Contains(t, result.Errors[6], "expected 0 queued entries, got 1")
	assert.Contains(t, result.Errors[7], `bucket subject:p1/kind:Move: expected current "B", got "A"`)
	for _, msg := range result.Errors {
		assert.Contains(t, msg, "steps[2].expect")
	}
}

func TestRun_UnknownEntry(t *testing.T) {
	tests := []struct {
		name string
		step Step
		want string
	}{
		{"exit", Step{Exit: "ghost"}, `exit of unknown entry "ghost"`},
		{"expect", Step{Expect: &ExpectStep{Admitted: []string{"ghost"}}}, `unknown entry "ghost"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scenario := &Scenario{Name: "n", Description: "d", Steps: []Step{tt.step}}
			_, err := Run(scenario)
			require.Error(t, err)
			assert.Contains(t, err.Error(), "steps[0]")
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestRun_MissingScopeWithoutCatalog(t *testing.T) {
	scenario := &Scenario{
		Name:        "n",
		Description: "d",
		Steps:       []Step{enter("A", "Move", "p1", "")},
	}

	_, err := Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no scope and no policy catalog")
}

func TestRun_BadCatalog(t *testing.T) {
	scenario := &Scenario{
		Name:        "n",
		Description: "d",
		Policies:    filepath.Join(t.TempDir(), "missing"),
		Steps:       []Step{enter("A", "Move", "p1", "")},
	}

	_, err := Run(scenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to load policies")
}

func TestRun_CatalogTagsOverriddenByStep(t *testing.T) {
	scenario := &Scenario{
		Name:        "override",
		Description: "Step tags win over catalog tags",
		Policies:    filepath.Join("testdata", "policies"),
		Steps: []Step{
			enter("M", "PlayerMoved", "p1", "", "custom"),
			{Expect: &ExpectStep{Current: []CurrentExpect{
				{Subject: "p1", Tag: "custom", ID: "M"},
				{Subject: "p1", Tag: "movement", ID: ""},
			}}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_CustomTimeout(t *testing.T) {
	scenario := &Scenario{
		Name:        "short_timeout",
		Description: "Two second staleness threshold",
		Timeout:     Duration(2 * time.Second),
		Steps: []Step{
			enter("A", "Move", "p1", "per_subject"),
			{Advance: Duration(3 * time.Second)},
			enter("B", "Move", "p1", "per_subject"),
			{Expect: &ExpectStep{Admitted: []string{"B"}, Evicted: []string{"A"}}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_GlobalSweepEvery(t *testing.T) {
	scenario := &Scenario{
		Name:             "global_sweep",
		Description:      "Idle ticks sweep the global group every third tick",
		GlobalSweepEvery: 3,
		Steps: []Step{
			enter("G", "Reset", "", "global"),
			{Advance: Duration(10 * time.Second)},
			enter("H", "Reset", "", "global"),
			{Advance: Duration(6 * time.Second)},
			{Tick: 2},
			{Expect: &ExpectStep{Pending: []string{"H"}}},
			{Tick: 1},
			{Expect: &ExpectStep{Admitted: []string{"H"}, Evicted: []string{"G"}}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Equal(t, 3, result.Final.Ticks)
}

func TestRun_ConnectedListDisablesAutoConnect(t *testing.T) {
	scenario := &Scenario{
		Name:        "explicit_connected",
		Description: "Subjects outside the connected list are treated as gone",
		Connected:   []string{"p1"},
		Steps: []Step{
			enter("A", "Move", "p1", "per_subject"),
			enter("B", "Move", "p2", "per_subject"),
			enter("G", "Reset", "", "global"),
			{Exit: "A"},
			{Exit: "B"},
			{Expect: &ExpectStep{Groups: []string{"p1", "p2"}}},
			{Exit: "G"},
			{Expect: &ExpectStep{Groups: []string{"p1"}, NoGroups: []string{"p2"}}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_ConnectAndDisconnectSteps(t *testing.T) {
	scenario := &Scenario{
		Name:        "connect",
		Description: "Disconnecting an idle subject drops its group",
		Connected:   []string{},
		Steps: []Step{
			{Connect: "p1"},
			enter("G", "Reset", "", "global"),
			enter("A", "Move", "p1", "per_subject"),
			{Exit: "G"},
			{Exit: "A"},
			{Expect: &ExpectStep{NoGroups: []string{"p1"}}},
			enter("B", "Chat", "p1", "per_subject"),
			enter("H", "Reset", "", "global"),
			{Exit: "B"},
			{Expect: &ExpectStep{Groups: []string{"p1"}}},
			{Disconnect: "p1"},
			{Expect: &ExpectStep{Groups: []string{"p1"}}},
			{Exit: "H"},
			{Expect: &ExpectStep{NoGroups: []string{"p1"}}},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_ObserverReceivesEveryRecord(t *testing.T) {
	var seen []eventsync.Record
	observer := eventsync.ObserverFunc(func(r eventsync.Record) {
		seen = append(seen, r)
	})

	scenario := &Scenario{
		Name:        "observer",
		Description: "Extra observers see the same trace",
		Steps: []Step{
			enter("A", "Move", "p1", "per_subject"),
			{Exit: "A"},
		},
	}

	result, err := Run(scenario, WithObserver(observer), WithSequence(eventsync.NewSequenceAt(100)))
	require.NoError(t, err)

	assert.Equal(t, result.Trace, seen)
	assert.Equal(t, int64(101), seen[0].Seq)
}

func TestRun_AssertionFailuresReported(t *testing.T) {
	scenario := &Scenario{
		Name:        "assertions",
		Description: "Failing assertions mark the result failed",
		Steps: []Step{
			enter("A", "Move", "p1", "per_subject"),
			enter("B", "Move", "p1", "per_subject"),
			{Exit: "A"},
		},
		Assertions: []Assertion{
			{Type: AssertAdmissionOrder, Entries: []string{"B", "A"}},
			{Type: AssertTraceCount, Record: "queued", Count: 1},
		},
	}

	result, err := Run(scenario)
	require.NoError(t, err)

	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "Assertion failed: admission_order")
}

func TestResult_AddError(t *testing.T) {
	result := NewResult()
	assert.True(t, result.Pass)

	result.AddError("boom")
	assert.False(t, result.Pass)
	assert.Equal(t, []string{"boom"}, result.Errors)
}

func TestEvent_Capabilities(t *testing.T) {
	ev := &Event{ID: "A", Kind: "Move", SubjectID: "p1"}
	assert.Equal(t, eventsync.Kind("Move"), eventsync.KindOf(ev))
	assert.Equal(t, "A", ev.EventID())

	id, ok := ev.Subject()
	assert.True(t, ok)
	assert.Equal(t, eventsync.SubjectID("p1"), id)

	_, ok = (&Event{ID: "N", Kind: "Chat"}).Subject()
	assert.False(t, ok)
}
