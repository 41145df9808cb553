package harness

import (
	"fmt"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/evsync/internal/eventsync"
)

// FormatRecord renders one record as a single stable line:
//
//	<seq> <type> [<entry>] [group=<group>] [bucket=<bucket>]
//
// Timestamps are omitted; ordering is carried by seq.
func FormatRecord(rec eventsync.Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d %s", rec.Seq, rec.Type)
	if rec.EntryID != "" {
		b.WriteString(" " + rec.EntryID)
	}
	if rec.Group != "" {
		b.WriteString(" group=" + rec.Group)
	}
	if rec.Bucket != "" {
		b.WriteString(" bucket=" + rec.Bucket)
	}
	return b.String()
}

// FormatTrace renders a named trace in golden file form.
func FormatTrace(name string, trace []eventsync.Record) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "# scenario: %s\n", name)
	for _, rec := range trace {
		b.WriteString(FormatRecord(rec))
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

// RunWithGolden executes a scenario and compares its trace against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns an error if the scenario cannot be executed. Trace mismatches fail
// the test through goldie.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	AssertGolden(t, scenario.Name, result)
	return result, nil
}

// AssertGolden compares an existing result's trace against a golden file
// without re-running the scenario.
func AssertGolden(t *testing.T, scenarioName string, result *Result) {
	t.Helper()

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, FormatTrace(scenarioName, result.Trace))
}
