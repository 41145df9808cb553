package harness

import (
	"github.com/roach88/evsync/internal/eventsync"
)

// Event is the payload the harness submits for each enter step.
type Event struct {
	ID        string
	Kind      string
	SubjectID string
}

// EventID implements eventsync.Identified.
func (e *Event) EventID() string { return e.ID }

// EventKind implements eventsync.Kinded.
func (e *Event) EventKind() string { return e.Kind }

// Subject implements eventsync.HasSubject.
func (e *Event) Subject() (eventsync.SubjectID, bool) {
	return eventsync.SubjectID(e.SubjectID), e.SubjectID != ""
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall success: every expect step and assertion held.
	Pass bool `json:"pass"`

	// Trace contains every synchronizer record in sequence order.
	Trace []eventsync.Record `json:"trace"`

	// Admissions lists entry IDs in the order they were admitted.
	// Untracked entries count as admitted on enter.
	Admissions []string `json:"admissions"`

	// Errors contains expect and assertion failures.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Final is the synchronizer state after the last step.
	Final eventsync.Stats `json:"final"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:       true,
		Trace:      []eventsync.Record{},
		Admissions: []string{},
		Errors:     []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Observe implements eventsync.Observer by appending to the trace.
func (r *Result) Observe(rec eventsync.Record) {
	r.Trace = append(r.Trace, rec)
}
