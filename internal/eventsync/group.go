package eventsync

import "time"

// group aggregates the buckets of one scope: the global scope or a single
// subject. Buckets are created on first use of their key and never removed.
type group struct {
	s       *Synchronizer
	global  bool
	subject SubjectID

	tagBuckets  map[string]*bucket
	typeBuckets map[Kind]*bucket
	buckets     []*bucket // creation order, for deterministic sweeps
}

func newGroup(s *Synchronizer, global bool, subject SubjectID) *group {
	return &group{
		s:           s,
		global:      global,
		subject:     subject,
		tagBuckets:  make(map[string]*bucket),
		typeBuckets: make(map[Kind]*bucket),
	}
}

// name identifies the group in logs and trace records.
func (g *group) name() string {
	if g.global {
		return "global"
	}
	return "subject:" + string(g.subject)
}

func (g *group) tagBucket(tag string) *bucket {
	b, ok := g.tagBuckets[tag]
	if !ok {
		b = newBucket(g, "tag:"+tag)
		g.tagBuckets[tag] = b
		g.buckets = append(g.buckets, b)
	}
	return b
}

func (g *group) typeBucket(kind Kind) *bucket {
	b, ok := g.typeBuckets[kind]
	if !ok {
		b = newBucket(g, "kind:"+string(kind))
		g.typeBuckets[kind] = b
		g.buckets = append(g.buckets, b)
	}
	return b
}

// enter routes e into one bucket per tag, or into its kind bucket when
// untagged. Admission across buckets is tracked by e's pending counter.
func (g *group) enter(e *Entry, now time.Time) {
	if len(e.Policy.Tags) > 0 {
		for _, tag := range e.Policy.Tags {
			g.tagBucket(tag).enter(e, now)
		}
		return
	}
	g.typeBucket(e.Kind).enter(e, now)
}

// exit releases e from every bucket it was routed to and reports whether
// the group is now empty.
func (g *group) exit(e *Entry) bool {
	if len(e.Policy.Tags) > 0 {
		for _, tag := range e.Policy.Tags {
			if b, ok := g.tagBuckets[tag]; ok {
				b.exit(e)
			}
		}
	} else if b, ok := g.typeBuckets[e.Kind]; ok {
		b.exit(e)
	}
	return g.empty()
}

// empty reports whether no bucket has a current occupant.
func (g *group) empty() bool {
	for _, b := range g.buckets {
		if b.current != nil {
			return false
		}
	}
	return true
}

// checkTimeouts sweeps every bucket for stalled occupants.
func (g *group) checkTimeouts(now time.Time) {
	for _, b := range g.buckets {
		b.checkTimeout(now)
	}
}

// bucketFor returns the bucket for a domain key without creating it.
func (g *group) bucketFor(tag string, kind Kind) *bucket {
	if tag != "" {
		return g.tagBuckets[tag]
	}
	return g.typeBuckets[kind]
}
