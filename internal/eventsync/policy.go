package eventsync

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Scope selects which groups an event is synchronized in.
type Scope int

const (
	// ScopeNone events are admitted immediately and never tracked.
	ScopeNone Scope = iota

	// ScopePerSubject events are serialized only against other events for
	// the same subject (and against in-flight global events).
	ScopePerSubject

	// ScopeGlobal events are serialized in the global group and in every
	// known subject group.
	ScopeGlobal

	// ScopePure is reserved. It carries no synchronization behavior and is
	// handled exactly like ScopeNone.
	ScopePure
)

var scopeNames = map[Scope]string{
	ScopeNone:       "none",
	ScopePerSubject: "per_subject",
	ScopeGlobal:     "global",
	ScopePure:       "pure",
}

// String returns the canonical lowercase name used in config files and traces.
func (s Scope) String() string {
	if name, ok := scopeNames[s]; ok {
		return name
	}
	return fmt.Sprintf("scope(%d)", int(s))
}

// ParseScope converts a scope name into a Scope.
// Empty input defaults to ScopeNone.
func ParseScope(name string) (Scope, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none":
		return ScopeNone, nil
	case "per_subject", "persubject", "subject":
		return ScopePerSubject, nil
	case "global":
		return ScopeGlobal, nil
	case "pure":
		return ScopePure, nil
	default:
		return ScopeNone, fmt.Errorf("invalid scope %q: must be none, per_subject, global, or pure", name)
	}
}

// Policy is the resolved synchronization policy for one event.
// Resolution from payload metadata happens outside this package.
type Policy struct {
	Scope Scope
	Tags  []string
}

// Tracked reports whether events with this policy take part in
// synchronization at all.
func (p Policy) Tracked() bool {
	return p.Scope == ScopePerSubject || p.Scope == ScopeGlobal
}

// Normalize returns a copy of the policy with its tags normalized.
func (p Policy) Normalize() Policy {
	return Policy{Scope: p.Scope, Tags: NormalizeTags(p.Tags)}
}

// NormalizeTags returns the NFC-normalized, trimmed, de-duplicated tag set in
// sorted order. Empty tags are dropped. An entry occupies exactly one bucket
// per distinct tag, so duplicates would otherwise queue it behind itself.
func NormalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		tag = norm.NFC.String(strings.TrimSpace(tag))
		if tag == "" {
			continue
		}
		if _, dup := seen[tag]; dup {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	if len(out) == 0 {
		return nil
	}
	sort.Strings(out)
	return out
}
