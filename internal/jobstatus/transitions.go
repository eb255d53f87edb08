// Package jobstatus defines the lifecycle of a search job.
//
// Valid status graph:
//
//	queued ──► processing ──► completed
//	              │
//	              └──────────► error
//
// completed and error are terminal states.
package jobstatus

import "fmt"

// Status values are written verbatim into the status record and the
// result envelope.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// validTransitions lists every allowed (from → to) pair.
var validTransitions = map[Status][]Status{
	StatusQueued:     {StatusProcessing},
	StatusProcessing: {StatusCompleted, StatusError},
	// completed and error are terminal
}

// ParseStatus converts a raw string to a Status, returning an error for
// unknown values.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	switch st {
	case StatusQueued, StatusProcessing, StatusCompleted, StatusError:
		return st, nil
	}
	return "", fmt.Errorf("unknown job status %q", s)
}

// IsTransitionAllowed returns true when moving from → to is permitted by the
// state machine.
func IsTransitionAllowed(from, to Status) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false // terminal
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further transition can leave s.
func IsTerminal(s Status) bool { return s == StatusCompleted || s == StatusError }

// Advance returns to when the transition from → to is allowed.
func Advance(from, to Status) (Status, error) {
	if !IsTransitionAllowed(from, to) {
		return from, fmt.Errorf("job status transition %s → %s is not allowed", from, to)
	}
	return to, nil
}
