package journal

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/evsync/internal/eventsync"
	"github.com/roach88/evsync/internal/testutil"
)

// createTestJournal opens a journal in a temp directory.
func createTestJournal(t *testing.T) *Journal {
	t.Helper()
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

// move is a per-player payload.
type move struct {
	id     string
	player eventsync.SubjectID
}

func (m move) EventID() string                      { return m.id }
func (m move) EventKind() string                    { return "Move" }
func (m move) Subject() (eventsync.SubjectID, bool) { return m.player, true }

func testRun(id string) Run {
	return Run{ID: id, Name: "scenario " + id, StartedAt: testutil.Epoch}
}

func testRecord(seq int64, typ eventsync.RecordType, entryID, subject string) eventsync.Record {
	return eventsync.Record{
		Seq:     seq,
		Type:    typ,
		EntryID: entryID,
		Kind:    "Move",
		Scope:   "per_subject",
		Subject: subject,
		Group:   "subject:" + subject,
		Bucket:  "kind:Move",
		At:      testutil.Epoch.Add(time.Duration(seq) * time.Millisecond),
	}
}
