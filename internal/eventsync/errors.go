package eventsync

import (
	"errors"
	"fmt"
)

// SyncError is a coordinator fault with a structured code.
//
// Only affinity violations surface as SyncErrors (as panic values); every
// other anomaly is absorbed and logged so that one misbehaving event cannot
// block unrelated ones.
type SyncError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// EntryID identifies the affected entry, if any.
	EntryID string

	// Subject identifies the affected subject, if any.
	Subject SubjectID
}

// ErrorCode categorizes coordinator faults.
type ErrorCode string

const (
	// ErrCodeAffinityViolation indicates a call from outside the coordinating
	// goroutine, or two overlapping calls.
	ErrCodeAffinityViolation ErrorCode = "AFFINITY_VIOLATION"

	// ErrCodeConfigMismatch indicates a PerSubject policy on a payload that
	// has no subject. Logged, never raised.
	ErrCodeConfigMismatch ErrorCode = "CONFIG_MISMATCH"

	// ErrCodeStalledOccupant indicates a bucket occupant exceeded the
	// timeout. Logged, never raised.
	ErrCodeStalledOccupant ErrorCode = "STALLED_OCCUPANT"
)

// Error implements the error interface.
func (e *SyncError) Error() string {
	switch {
	case e.EntryID != "" && e.Subject != "":
		return fmt.Sprintf("%s: %s (entry=%s, subject=%s)", e.Code, e.Message, e.EntryID, e.Subject)
	case e.EntryID != "":
		return fmt.Sprintf("%s: %s (entry=%s)", e.Code, e.Message, e.EntryID)
	default:
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
}

// IsAffinityError reports whether err (or a recovered panic value) is an
// affinity violation. Uses errors.As to handle wrapped errors.
func IsAffinityError(err error) bool {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Code == ErrCodeAffinityViolation
	}
	return false
}

// NewAffinityError creates a SyncError for an affinity violation.
func NewAffinityError(op, reason string) *SyncError {
	return &SyncError{
		Code:    ErrCodeAffinityViolation,
		Message: fmt.Sprintf("%s: %s", op, reason),
	}
}
