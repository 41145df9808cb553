package eventsync

import (
	"log/slog"
	"time"
)

// DefaultTimeout is how long a bucket occupant may stay current before it is
// presumed abandoned and evicted.
const DefaultTimeout = 15 * time.Second

// DefaultGlobalSweepEvery is how many ticks pass between sweeps of the global
// group while no subject groups exist.
const DefaultGlobalSweepEvery = 60

// Clock supplies wall-clock time for entry creation and staleness checks.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Synchronizer is the top-level coordinator. It owns one global group and a
// lazily managed set of subject groups.
//
// Thread-safety model:
//   - Enter, Exit, Tick, SubjectDisconnected and the introspection methods
//     must be called from the coordinating goroutine only
//   - Entry.Admitted and Entry.Wait are safe from any goroutine
//
// INVARIANTS:
//   - order lists exactly the keys of groups, in creation order
//   - globalEntries lists in-flight Global-route entries in arrival order
type Synchronizer struct {
	clock            Clock
	liveness         Liveness
	logger           *slog.Logger
	observer         Observer
	ids              IDGenerator
	seq              *Sequence
	timeout          time.Duration
	globalSweepEvery int

	global        *group
	groups        map[SubjectID]*group
	order         []SubjectID
	globalEntries []*Entry

	cursor int
	ticks  int

	guard guard
	ready []*Entry // entries admitted during the current call
}

// Option configures a Synchronizer.
type Option func(*Synchronizer)

// WithTimeout sets the staleness threshold for bucket occupants.
//
// Default: 15s (DefaultTimeout)
func WithTimeout(d time.Duration) Option {
	return func(s *Synchronizer) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithClock sets the time source. Tests use testutil.ManualClock.
func WithClock(c Clock) Option {
	return func(s *Synchronizer) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithLiveness sets the subject liveness source consulted when deciding
// whether an emptied subject group may be discarded.
func WithLiveness(l Liveness) Option {
	return func(s *Synchronizer) {
		if l != nil {
			s.liveness = l
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Synchronizer) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithObserver sets the trace record observer.
func WithObserver(o Observer) Option {
	return func(s *Synchronizer) {
		s.observer = o
	}
}

// WithIDGenerator sets the entry ID source.
func WithIDGenerator(g IDGenerator) Option {
	return func(s *Synchronizer) {
		if g != nil {
			s.ids = g
		}
	}
}

// WithSequence sets the logical clock used to stamp trace records.
func WithSequence(seq *Sequence) Option {
	return func(s *Synchronizer) {
		if seq != nil {
			s.seq = seq
		}
	}
}

// WithGlobalSweepEvery sets how many ticks pass between global group sweeps
// while no subject groups exist.
//
// Default: 60 (DefaultGlobalSweepEvery)
func WithGlobalSweepEvery(n int) Option {
	return func(s *Synchronizer) {
		if n > 0 {
			s.globalSweepEvery = n
		}
	}
}

// WithAffinity installs an affinity checker asserted on every public call.
func WithAffinity(a Affinity) Option {
	return func(s *Synchronizer) {
		s.guard.affinity = a
	}
}

// New creates a Synchronizer.
func New(opts ...Option) *Synchronizer {
	s := &Synchronizer{
		clock:            systemClock{},
		liveness:         alwaysConnected{},
		logger:           slog.Default(),
		ids:              UUIDv7Generator{},
		seq:              NewSequence(),
		timeout:          DefaultTimeout,
		globalSweepEvery: DefaultGlobalSweepEvery,
		groups:           make(map[SubjectID]*group),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.global = newGroup(s, true, "")
	return s
}

// Enter registers an event before its listeners run.
//
// Returns nil for untracked policies (None and the reserved Pure scope):
// the caller proceeds immediately and must not call Exit. Otherwise the
// returned Entry is the suspension handle; it is admitted once it is current
// in every bucket it was placed into. The caller must call Exit exactly once
// afterwards, whether or not its work succeeded.
func (s *Synchronizer) Enter(payload any, policy Policy) *Entry {
	s.guard.acquire("Enter")
	if !policy.Tracked() {
		s.guard.release()
		return nil
	}
	defer s.finish()

	now := s.clock.Now()
	e := &Entry{
		Payload:   payload,
		Kind:      KindOf(payload),
		Policy:    policy.Normalize(),
		CreatedAt: now,
	}
	if id, ok := payload.(Identified); ok && id.EventID() != "" {
		e.ID = id.EventID()
	} else {
		e.ID = s.ids.Generate()
	}

	if policy.Scope == ScopePerSubject {
		if subject, ok := subjectOf(payload); ok {
			e.route = routeSubject
			e.subject = subject
		} else {
			s.logger.Warn("per-subject policy on payload without subject, using global scope",
				"entry_id", e.ID,
				"kind", string(e.Kind),
				"code", string(ErrCodeConfigMismatch),
				"event", "config_mismatch",
			)
			s.emitEntry(RecordFallback, e, "")
		}
	}
	if e.route == 0 {
		e.route = routeGlobal
	}

	s.emitEntry(RecordEntered, e, "")

	switch e.route {
	case routeSubject:
		g := s.subjectGroup(e.subject, now)
		g.enter(e, now)
	default:
		s.global.enter(e, now)
		for _, subject := range s.order {
			s.groups[subject].enter(e, now)
		}
		s.globalEntries = append(s.globalEntries, e)
	}

	s.logger.Debug("event entered",
		"entry_id", e.ID,
		"kind", string(e.Kind),
		"scope", policy.Scope.String(),
		"pending", e.pending,
	)
	return e
}

// Exit releases e from every bucket it occupies and promotes the next queued
// entries. Safe to call with nil. A second Exit for the same entry does
// nothing.
func (s *Synchronizer) Exit(e *Entry) {
	s.guard.acquire("Exit")
	if e == nil || !e.Policy.Tracked() {
		s.guard.release()
		return
	}
	defer s.finish()

	if e.exited {
		s.logger.Debug("duplicate exit ignored", "entry_id", e.ID)
		return
	}
	e.exited = true
	s.emitEntry(RecordExited, e, "")

	switch e.route {
	case routeSubject:
		g, ok := s.groups[e.subject]
		if !ok {
			return
		}
		if g.exit(e) {
			s.removeGroup(e.subject)
		}
	default:
		s.global.exit(e)
		var gone []SubjectID
		for _, subject := range s.order {
			if s.groups[subject].exit(e) && !s.liveness.IsConnected(subject) {
				gone = append(gone, subject)
			}
		}
		for _, subject := range gone {
			s.removeGroup(subject)
		}
		s.dropGlobalEntry(e)
	}
}

// Tick runs one step of the rotating timeout sweep. It never scans every
// group: with subject groups present it sweeps exactly one slot per tick,
// cycling through each subject group and then the global group. With no
// subject groups it sweeps the global group every GlobalSweepEvery ticks.
func (s *Synchronizer) Tick() {
	s.guard.acquire("Tick")
	defer s.finish()

	s.ticks++
	now := s.clock.Now()

	if len(s.order) == 0 {
		s.cursor = 0
		if s.ticks%s.globalSweepEvery == 0 {
			s.global.checkTimeouts(now)
		}
		return
	}

	slots := len(s.order) + 1
	if s.cursor >= slots {
		s.cursor = 0
	}
	slot := s.cursor
	s.cursor = (s.cursor + 1) % slots

	if slot == len(s.order) {
		s.global.checkTimeouts(now)
		return
	}

	subject := s.order[slot]
	g := s.groups[subject]
	g.checkTimeouts(now)
	if g.empty() && !s.liveness.IsConnected(subject) {
		s.removeGroup(subject)
	}
}

// SubjectDisconnected discards the subject's group if it holds no current
// entries. Non-empty groups are collected later by Exit or Tick.
func (s *Synchronizer) SubjectDisconnected(subject SubjectID) {
	s.guard.acquire("SubjectDisconnected")
	defer s.finish()

	if g, ok := s.groups[subject]; ok && g.empty() {
		s.removeGroup(subject)
	}
}

// subjectGroup returns the subject's group, creating it on first use. New
// groups replay every in-flight global entry so a subject that appears
// mid-global-event is blocked too.
func (s *Synchronizer) subjectGroup(subject SubjectID, now time.Time) *group {
	if g, ok := s.groups[subject]; ok {
		return g
	}
	g := newGroup(s, false, subject)
	s.groups[subject] = g
	s.order = append(s.order, subject)
	s.emitGroup(RecordGroupCreated, g)
	for _, ge := range s.globalEntries {
		g.enter(ge, now)
	}
	s.logger.Debug("subject group created",
		"subject", string(subject),
		"seeded_global_entries", len(s.globalEntries),
	)
	return g
}

// removeGroup deletes a subject group and keeps the sweep cursor pointing at
// the same next group.
func (s *Synchronizer) removeGroup(subject SubjectID) {
	g, ok := s.groups[subject]
	if !ok {
		return
	}
	delete(s.groups, subject)
	for i, id := range s.order {
		if id != subject {
			continue
		}
		s.order = append(s.order[:i], s.order[i+1:]...)
		if i < s.cursor {
			s.cursor--
		}
		break
	}
	s.emitGroup(RecordGroupRemoved, g)
	s.logger.Debug("subject group removed", "subject", string(subject))
}

func (s *Synchronizer) dropGlobalEntry(e *Entry) {
	for i, ge := range s.globalEntries {
		if ge == e {
			copy(s.globalEntries[i:], s.globalEntries[i+1:])
			s.globalEntries[len(s.globalEntries)-1] = nil
			s.globalEntries = s.globalEntries[:len(s.globalEntries)-1]
			return
		}
	}
}

// finish releases the guard, then runs continuations of entries admitted
// during the call. Continuations may call back into the synchronizer.
func (s *Synchronizer) finish() {
	ready := s.ready
	s.ready = nil
	s.guard.release()
	for _, e := range ready {
		e.runContinuations()
	}
}

func (s *Synchronizer) emit(t RecordType, e *Entry, b *bucket) {
	if s.observer == nil {
		return
	}
	r := s.record(t, e)
	r.Group = b.group.name()
	r.Bucket = b.key
	s.observer.Observe(r)
}

func (s *Synchronizer) emitEntry(t RecordType, e *Entry, group string) {
	if s.observer == nil {
		return
	}
	r := s.record(t, e)
	r.Group = group
	s.observer.Observe(r)
}

func (s *Synchronizer) emitGroup(t RecordType, g *group) {
	if s.observer == nil {
		return
	}
	s.observer.Observe(Record{
		Seq:     s.seq.Next(),
		Type:    t,
		Subject: string(g.subject),
		Group:   g.name(),
		At:      s.clock.Now(),
	})
}

func (s *Synchronizer) record(t RecordType, e *Entry) Record {
	r := Record{
		Seq:     s.seq.Next(),
		Type:    t,
		EntryID: e.ID,
		Kind:    string(e.Kind),
		Scope:   e.Policy.Scope.String(),
		At:      s.clock.Now(),
	}
	if e.route == routeSubject {
		r.Subject = string(e.subject)
	}
	return r
}

// Timeout returns the configured staleness threshold.
func (s *Synchronizer) Timeout() time.Duration {
	return s.timeout
}

// Stats is a point-in-time summary of coordinator state.
type Stats struct {
	SubjectGroups   int `json:"subject_groups"`
	GlobalEntries   int `json:"global_entries"`
	GlobalBuckets   int `json:"global_buckets"`
	OccupiedBuckets int `json:"occupied_buckets"`
	QueuedEntries   int `json:"queued_entries"`
	Ticks           int `json:"ticks"`
}

// Stats summarizes current state. Coordinating goroutine only.
func (s *Synchronizer) Stats() Stats {
	st := Stats{
		SubjectGroups: len(s.groups),
		GlobalEntries: len(s.globalEntries),
		GlobalBuckets: len(s.global.buckets),
		Ticks:         s.ticks,
	}
	count := func(g *group) {
		for _, b := range g.buckets {
			if b.current != nil {
				st.OccupiedBuckets++
			}
			st.QueuedEntries += b.len()
		}
	}
	count(s.global)
	for _, subject := range s.order {
		count(s.groups[subject])
	}
	return st
}

// Subjects returns the subjects that currently have a group, in creation
// order. Coordinating goroutine only.
func (s *Synchronizer) Subjects() []SubjectID {
	out := make([]SubjectID, len(s.order))
	copy(out, s.order)
	return out
}

// HasGroup reports whether the subject currently has a group.
func (s *Synchronizer) HasGroup(subject SubjectID) bool {
	_, ok := s.groups[subject]
	return ok
}

// Current returns the ID of the entry currently occupying a bucket, or ""
// if the bucket is empty or does not exist. An empty subject selects the
// global group; a non-empty tag selects a tag bucket, otherwise kind selects
// a type bucket.
func (s *Synchronizer) Current(subject SubjectID, tag string, kind Kind) string {
	g := s.global
	if subject != "" {
		var ok bool
		if g, ok = s.groups[subject]; !ok {
			return ""
		}
	}
	b := g.bucketFor(tag, kind)
	if b == nil || b.current == nil {
		return ""
	}
	return b.current.ID
}
