// Package harness runs scripted scenarios against the synchronizer.
//
// A scenario drives a real Synchronizer with a manual clock and deterministic
// entry IDs, so every run of the same scenario yields the same trace. Traces
// are compared against golden files.
//
// # Scenario Format
//
// Scenarios are YAML files:
//
//	name: per_subject_queue
//	description: "Same-kind events of one subject run one at a time"
//	policies: ../policies          # optional CUE catalog
//	timeout: 15s                   # optional staleness threshold
//	connected: [p1]                # optional; omitted means connect on enter
//	steps:
//	  - enter: {id: A, kind: Move, subject: p1, scope: per_subject}
//	  - enter: {id: B, kind: Move, subject: p1, scope: per_subject}
//	  - expect:
//	      admitted: [A]
//	      pending: [B]
//	      current: [{subject: p1, kind: Move, id: A}]
//	  - exit: A
//	  - advance: 16s
//	  - tick: 1
//	  - disconnect: p1
//	assertions:
//	  - type: admission_order
//	    entries: [A, B]
//
// Enter steps without a scope resolve their policy from the catalog by kind.
//
// # Assertion Types
//
//   - admission_order: the listed entries were admitted in this relative order
//   - trace_contains: some record matches record type, and optionally entry and bucket
//   - trace_count: exactly count records match record type and optional entry
//
// # Golden Files
//
// Golden traces live in testdata/golden/<name>.golden, one record per line.
// Regenerate them with:
//
//	go test ./internal/harness -update
package harness
