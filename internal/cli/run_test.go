package cli

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/evsync/internal/eventsync"
	"github.com/roach88/evsync/internal/journal"
)

func TestRun_TextOutput(t *testing.T) {
	out, _, err := execute(NewRunCommand(&RootOptions{Format: "text"}), filepath.Join(scenariosDir, "eviction.yaml"))
	require.NoError(t, err)

	assert.Contains(t, out, "✓ eviction")
	assert.Contains(t, out, "=== Trace ===")
	assert.Contains(t, out, "  5 evicted A group=subject:p1 bucket=kind:Move\n")
	assert.Contains(t, out, "  14 group_removed group=subject:p1\n")
	assert.Contains(t, out, "Subject groups:   0")
	assert.NotContains(t, out, "Run:")
}

func TestRun_JSONOutput(t *testing.T) {
	out, _, err := execute(NewRunCommand(&RootOptions{Format: "json"}), filepath.Join(scenariosDir, "per_subject_queue.yaml"))
	require.NoError(t, err)

	var result RunResult
	resp := decode(t, out, &result)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "per_subject_queue", result.Scenario)
	assert.True(t, result.Pass)
	assert.Equal(t, []string{"A", "B"}, result.Admissions)
	assert.Len(t, result.Trace, 11)
	assert.Empty(t, result.RunID)
}

func TestRun_FailingScenario(t *testing.T) {
	path := writeFile(t, t.TempDir(), "failing.yaml", failingScenario)

	out, _, err := execute(NewRunCommand(&RootOptions{Format: "text"}), path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ failing")
	assert.Contains(t, out, "=== Errors ===")
	assert.Contains(t, out, `entry "A": expected pending`)
}

func TestRun_FailingScenarioJSON(t *testing.T) {
	path := writeFile(t, t.TempDir(), "failing.yaml", failingScenario)

	out, _, err := execute(NewRunCommand(&RootOptions{Format: "json"}), path)
	require.Error(t, err)

	resp := decode(t, out, nil)
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, CodeScenario, resp.Error.Code)
}

func TestRun_MissingScenario(t *testing.T) {
	out, _, err := execute(NewRunCommand(&RootOptions{Format: "text"}), filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error ["+CodeScenario+"]")
}

func TestRun_JournalsToDatabase(t *testing.T) {
	db := filepath.Join(t.TempDir(), "evsync.db")
	scenario := filepath.Join(scenariosDir, "eviction.yaml")

	out, _, err := execute(NewRunCommand(&RootOptions{Format: "text"}), scenario, "--db", db, "--run-id", "r1")
	require.NoError(t, err)
	assert.Contains(t, out, "Run: r1 (14 records journaled)")

	// Same run ID appends after the last journaled seq.
	_, _, err = execute(NewRunCommand(&RootOptions{Format: "text"}), scenario, "--db", db, "--run-id", "r1")
	require.NoError(t, err)

	j, err := journal.Open(db)
	require.NoError(t, err)
	defer j.Close()

	ctx := context.Background()
	count, err := j.Count(ctx, journal.Filter{RunID: "r1"})
	require.NoError(t, err)
	assert.Equal(t, 28, count)

	last, err := j.LastSeq(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, int64(28), last)

	evicted, err := j.Read(ctx, journal.Filter{RunID: "r1", Type: eventsync.RecordEvicted})
	require.NoError(t, err)
	assert.Len(t, evicted, 4)

	runs, err := j.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "eviction", runs[0].Name)
}

func TestRun_GeneratedRunID(t *testing.T) {
	db := filepath.Join(t.TempDir(), "evsync.db")

	out, _, err := execute(NewRunCommand(&RootOptions{Format: "json"}), filepath.Join(scenariosDir, "fallback.yaml"), "--db", db)
	require.NoError(t, err)

	var result RunResult
	decode(t, out, &result)
	assert.Len(t, result.RunID, 36)
	assert.Equal(t, 5, result.Journaled)
}

func TestRun_BadDatabasePath(t *testing.T) {
	db := filepath.Join(t.TempDir(), "missing-dir", "evsync.db")

	_, _, err := execute(NewRunCommand(&RootOptions{Format: "text"}), filepath.Join(scenariosDir, "fallback.yaml"), "--db", db)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
