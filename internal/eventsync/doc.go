// Package eventsync implements the event-synchronization coordinator.
//
// Events declare a Policy before their listeners run. The Synchronizer routes
// each event into one or more mutual-exclusion buckets and hands back an Entry
// that becomes admitted once it is the current occupant of every bucket it was
// placed into. Unrelated events never share a bucket and run concurrently.
//
// ARCHITECTURE:
//
//	Synchronizer
//	├── global group          (lifetime of the synchronizer)
//	└── subject groups        (created lazily, removed when empty and ownerless)
//	    └── buckets           (one per tag, or one per payload kind if untagged)
//	        ├── current entry
//	        └── FIFO queue
//
// Scopes:
//   - None: admitted immediately, no bookkeeping.
//   - PerSubject: serialized within the subject's group only.
//   - Global: entered into the global group and into every known subject group,
//     so global work excludes subject work in the same domain and vice versa.
//     Subject groups created later are seeded with every in-flight global entry.
//
// Single-Owner Execution:
// All state is owned by one coordinating goroutine (see internal/loop). Every
// public method asserts affinity and panics with a *SyncError on violation.
// Suspension never blocks that goroutine: a queued Entry runs its OnAdmitted
// continuations when the last bucket promotes it.
//
// Liveness:
// A bucket whose current occupant is older than the timeout (15s by default)
// evicts it, either when contended by a new arrival or during the rotating
// Tick sweep. A stuck entry is presumed abandoned.
package eventsync
