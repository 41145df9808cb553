package harness

import (
	"fmt"
	"strings"

	"github.com/roach88/evsync/internal/eventsync"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string             // Assertion type for categorization
	Expected string             // Human-readable expected outcome
	Actual   string             // Human-readable actual outcome
	Trace    []eventsync.Record // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, rec := range e.Trace {
		fmt.Fprintf(&buf, "  %s\n", FormatRecord(rec))
	}

	return buf.String()
}

func recordMatches(rec eventsync.Record, a Assertion) bool {
	if string(rec.Type) != a.Record {
		return false
	}
	if a.Entry != "" && rec.EntryID != a.Entry {
		return false
	}
	if a.Bucket != "" && rec.Bucket != a.Bucket {
		return false
	}
	return true
}

func describe(a Assertion) string {
	s := a.Record
	if a.Entry != "" {
		s += " entry=" + a.Entry
	}
	if a.Bucket != "" {
		s += " bucket=" + a.Bucket
	}
	return s
}

// assertTraceContains checks that at least one record matches.
func assertTraceContains(trace []eventsync.Record, a Assertion) error {
	for _, rec := range trace {
		if recordMatches(rec, a) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: describe(a),
		Actual:   "no matching record",
		Trace:    trace,
	}
}

// assertTraceCount checks the exact number of matching records.
func assertTraceCount(trace []eventsync.Record, a Assertion) error {
	n := 0
	for _, rec := range trace {
		if recordMatches(rec, a) {
			n++
		}
	}
	if n == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     AssertTraceCount,
		Expected: fmt.Sprintf("%d x %s", a.Count, describe(a)),
		Actual:   fmt.Sprintf("%d matching records", n),
		Trace:    trace,
	}
}

// assertAdmissionOrder checks that the listed entries were all admitted, in
// the given relative order. Other admissions may interleave.
func assertAdmissionOrder(result *Result, a Assertion) error {
	position := make(map[string]int, len(result.Admissions))
	for i, id := range result.Admissions {
		if _, seen := position[id]; !seen {
			position[id] = i
		}
	}

	last := -1
	for _, id := range a.Entries {
		pos, ok := position[id]
		if !ok {
			return &AssertionError{
				Type:     AssertAdmissionOrder,
				Expected: fmt.Sprintf("%s admitted", id),
				Actual:   fmt.Sprintf("never admitted; admissions were %v", result.Admissions),
				Trace:    result.Trace,
			}
		}
		if pos < last {
			return &AssertionError{
				Type:     AssertAdmissionOrder,
				Expected: fmt.Sprintf("order %v", a.Entries),
				Actual:   fmt.Sprintf("admissions were %v", result.Admissions),
				Trace:    result.Trace,
			}
		}
		last = pos
	}
	return nil
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertAdmissionOrder:
			err = assertAdmissionOrder(result, assertion)
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
