package harness

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/roach88/evsync/internal/eventsync"
	"github.com/roach88/evsync/internal/policy"
	"github.com/roach88/evsync/internal/subject"
	"github.com/roach88/evsync/internal/testutil"
)

// Harness executes one scenario against a real Synchronizer driven by a
// manual clock. State is confined to the calling goroutine, which acts as
// the coordinating goroutine.
type Harness struct {
	sync     *eventsync.Synchronizer
	clock    *testutil.ManualClock
	registry *subject.Registry
	catalog  *policy.Catalog
	logger   *slog.Logger
	result   *Result

	// autoConnect connects subjects on first enter when the scenario
	// declares no connected list.
	autoConnect bool

	// entries maps step IDs to entries. Untracked entries map to nil.
	entries map[string]*eventsync.Entry
}

// Option configures a scenario run.
type Option func(*config)

type config struct {
	logger    *slog.Logger
	observers []eventsync.Observer
	seq       *eventsync.Sequence
}

// WithLogger sets the synchronizer logger. Runs are silent by default.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithObserver adds an observer that receives every trace record alongside
// the result.
func WithObserver(o eventsync.Observer) Option {
	return func(c *config) {
		if o != nil {
			c.observers = append(c.observers, o)
		}
	}
}

// WithSequence sets the logical clock stamping trace records, for runs that
// append to an existing journal.
func WithSequence(seq *eventsync.Sequence) Option {
	return func(c *config) {
		c.seq = seq
	}
}

// fanout delivers each record to every observer in order.
type fanout []eventsync.Observer

func (f fanout) Observe(rec eventsync.Record) {
	for _, o := range f {
		o.Observe(rec)
	}
}

// Run executes a scenario and returns the result.
//
// Execution flow:
//  1. Load the policy catalog, if the scenario names one
//  2. Build a synchronizer with a manual clock and a subject registry
//  3. Execute steps in order, checking expect steps as they come
//  4. Evaluate assertions against the trace
//
// An error is returned when the scenario cannot be executed (bad catalog,
// unknown entry IDs). Failed expectations are reported in Result.Errors.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	cfg := config{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	var catalog *policy.Catalog
	if scenario.Policies != "" {
		var errs []error
		catalog, errs = policy.Load(scenario.Policies, policy.LoadModeFailFast)
		if len(errs) > 0 {
			return nil, fmt.Errorf("failed to load policies: %w", errors.Join(errs...))
		}
	}

	result := NewResult()
	h := &Harness{
		clock:       testutil.NewManualClock(),
		registry:    subject.NewRegistry(),
		catalog:     catalog,
		logger:      cfg.logger,
		result:      result,
		autoConnect: scenario.Connected == nil,
		entries:     make(map[string]*eventsync.Entry),
	}
	for _, id := range scenario.Connected {
		h.registry.Connect(eventsync.SubjectID(id))
	}

	observer := append(fanout{result}, cfg.observers...)
	h.sync = eventsync.New(
		eventsync.WithClock(h.clock),
		eventsync.WithLiveness(h.registry),
		eventsync.WithLogger(cfg.logger),
		eventsync.WithObserver(observer),
		eventsync.WithIDGenerator(testutil.NewSequenceGenerator("entry")),
		eventsync.WithSequence(cfg.seq),
		eventsync.WithTimeout(time.Duration(scenario.Timeout)),
		eventsync.WithGlobalSweepEvery(scenario.GlobalSweepEvery),
	)
	h.registry.OnDisconnect(h.sync.SubjectDisconnected)

	for i, step := range scenario.Steps {
		if err := h.execute(i, step); err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
	}
	result.Final = h.sync.Stats()

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) execute(i int, step Step) error {
	switch {
	case step.Enter != nil:
		return h.enter(step.Enter)
	case step.Exit != "":
		e, ok := h.entries[step.Exit]
		if !ok {
			return fmt.Errorf("exit of unknown entry %q", step.Exit)
		}
		h.sync.Exit(e)
	case step.Advance > 0:
		h.clock.Advance(time.Duration(step.Advance))
	case step.Tick > 0:
		for n := 0; n < step.Tick; n++ {
			h.sync.Tick()
		}
	case step.Connect != "":
		h.registry.Connect(eventsync.SubjectID(step.Connect))
	case step.Disconnect != "":
		h.registry.Disconnect(eventsync.SubjectID(step.Disconnect))
	case step.Expect != nil:
		return h.check(i, step.Expect)
	}
	return nil
}

func (h *Harness) enter(step *EnterStep) error {
	if _, dup := h.entries[step.ID]; dup {
		return fmt.Errorf("duplicate entry id %q", step.ID)
	}
	pol, err := h.policyFor(step)
	if err != nil {
		return err
	}
	if h.autoConnect && step.Subject != "" {
		h.registry.Connect(eventsync.SubjectID(step.Subject))
	}

	e := h.sync.Enter(&Event{ID: step.ID, Kind: step.Kind, SubjectID: step.Subject}, pol)
	h.entries[step.ID] = e
	if e == nil {
		h.result.Admissions = append(h.result.Admissions, step.ID)
		return nil
	}

	id := step.ID
	e.OnAdmitted(func() {
		h.result.Admissions = append(h.result.Admissions, id)
	})
	return nil
}

// policyFor uses the step's explicit scope, otherwise the catalog policy for
// the step's kind. Step tags override catalog tags.
func (h *Harness) policyFor(step *EnterStep) (eventsync.Policy, error) {
	var pol eventsync.Policy
	if step.Scope != "" {
		scope, err := eventsync.ParseScope(step.Scope)
		if err != nil {
			return pol, err
		}
		pol.Scope = scope
	} else {
		if h.catalog == nil {
			return pol, fmt.Errorf("entry %q: no scope and no policy catalog", step.ID)
		}
		pol = h.catalog.Lookup(eventsync.Kind(step.Kind))
	}
	if len(step.Tags) > 0 {
		pol.Tags = step.Tags
	}
	return pol, nil
}

// check compares synchronizer state against an expect step. Mismatches are
// added to the result; unknown entry IDs are scenario errors.
func (h *Harness) check(i int, exp *ExpectStep) error {
	prefix := fmt.Sprintf("steps[%d].expect", i)

	lookup := func(id string) (*eventsync.Entry, error) {
		e, ok := h.entries[id]
		if !ok {
			return nil, fmt.Errorf("expect names unknown entry %q", id)
		}
		return e, nil
	}

	for _, id := range exp.Admitted {
		e, err := lookup(id)
		if err != nil {
			return err
		}
		if e != nil && !e.IsAdmitted() {
			h.result.AddError(fmt.Sprintf("%s: entry %q: expected admitted, pending in %d bucket(s)", prefix, id, e.Pending()))
		}
	}
	for _, id := range exp.Pending {
		e, err := lookup(id)
		if err != nil {
			return err
		}
		if e == nil || e.IsAdmitted() {
			h.result.AddError(fmt.Sprintf("%s: entry %q: expected pending, was admitted", prefix, id))
		}
	}
	for _, id := range exp.Evicted {
		e, err := lookup(id)
		if err != nil {
			return err
		}
		if e == nil || e.Evictions() == 0 {
			h.result.AddError(fmt.Sprintf("%s: entry %q: expected evicted, was not", prefix, id))
		}
	}

	for _, id := range exp.Groups {
		if !h.sync.HasGroup(eventsync.SubjectID(id)) {
			h.result.AddError(fmt.Sprintf("%s: expected group for subject %q, groups are %s", prefix, id, h.subjects()))
		}
	}
	for _, id := range exp.NoGroups {
		if h.sync.HasGroup(eventsync.SubjectID(id)) {
			h.result.AddError(fmt.Sprintf("%s: expected no group for subject %q", prefix, id))
		}
	}

	stats := h.sync.Stats()
	if exp.GlobalEntries != nil && stats.GlobalEntries != *exp.GlobalEntries {
		h.result.AddError(fmt.Sprintf("%s: expected %d global entries, got %d", prefix, *exp.GlobalEntries, stats.GlobalEntries))
	}
	if exp.Queued != nil && stats.QueuedEntries != *exp.Queued {
		h.result.AddError(fmt.Sprintf("%s: expected %d queued entries, got %d", prefix, *exp.Queued, stats.QueuedEntries))
	}

	for _, c := range exp.Current {
		got := h.sync.Current(eventsync.SubjectID(c.Subject), c.Tag, eventsync.Kind(c.Kind))
		if got != c.ID {
			h.result.AddError(fmt.Sprintf("%s: bucket %s: expected current %q, got %q", prefix, describeBucket(c), c.ID, got))
		}
	}
	return nil
}

func (h *Harness) subjects() string {
	ids := h.sync.Subjects()
	names := make([]string, len(ids))
	for i, id := range ids {
		names[i] = string(id)
	}
	return "[" + strings.Join(names, ", ") + "]"
}

func describeBucket(c CurrentExpect) string {
	group := "global"
	if c.Subject != "" {
		group = "subject:" + c.Subject
	}
	if c.Tag != "" {
		return group + "/tag:" + c.Tag
	}
	return group + "/kind:" + c.Kind
}
