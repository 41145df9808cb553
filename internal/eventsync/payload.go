package eventsync

import "reflect"

// Kind identifies the concrete shape of a payload. Untagged entries are
// bucketed by Kind.
type Kind string

// SubjectID is the stable identity of a subject (for example a player).
type SubjectID string

// HasSubject is implemented by payloads that belong to a subject.
// PerSubject policies require it; payloads without it fall back to Global.
type HasSubject interface {
	Subject() (SubjectID, bool)
}

// Kinded lets a payload name its own Kind instead of using its Go type name.
type Kinded interface {
	EventKind() string
}

// Identified lets a payload supply the ID used for its entry.
type Identified interface {
	EventID() string
}

// Liveness reports whether a subject is still connected. Emptied groups of
// disconnected subjects are discarded.
type Liveness interface {
	IsConnected(SubjectID) bool
}

// LivenessFunc adapts a function to the Liveness interface.
type LivenessFunc func(SubjectID) bool

// IsConnected implements Liveness.
func (f LivenessFunc) IsConnected(id SubjectID) bool {
	return f(id)
}

// alwaysConnected is the default Liveness: subjects are never considered gone,
// so only PerSubject exits and explicit disconnects collect groups.
type alwaysConnected struct{}

func (alwaysConnected) IsConnected(SubjectID) bool { return true }

// KindOf returns the Kind of a payload.
func KindOf(payload any) Kind {
	if k, ok := payload.(Kinded); ok {
		if name := k.EventKind(); name != "" {
			return Kind(name)
		}
	}
	t := reflect.TypeOf(payload)
	if t == nil {
		return Kind("<nil>")
	}
	return Kind(t.String())
}

// subjectOf extracts a usable subject identity from a payload.
func subjectOf(payload any) (SubjectID, bool) {
	hs, ok := payload.(HasSubject)
	if !ok {
		return "", false
	}
	id, ok := hs.Subject()
	if !ok || id == "" {
		return "", false
	}
	return id, true
}
