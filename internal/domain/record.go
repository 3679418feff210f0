package domain

import (
	"fmt"
	"time"
)

// Scope is the deletion breadth passed through to the dashboard API.
type Scope string

const (
	// ScopeSingle deletes one class occurrence.
	ScopeSingle Scope = "single"
	// ScopeSeries deletes the whole recurring series.
	ScopeSeries Scope = "series"
)

// ParseScope validates a scope string coming from the UI or from a
// persisted record.
func ParseScope(s string) (Scope, error) {
	switch Scope(s) {
	case ScopeSingle:
		return ScopeSingle, nil
	case ScopeSeries:
		return ScopeSeries, nil
	}
	return "", fmt.Errorf("unknown scope %q", s)
}

// PendingDelete is the one persisted record: a deletion that has been
// requested but not yet committed to the server. SecondsLeft and the
// failure text are runtime-derived and never stored.
type PendingDelete struct {
	Active        bool   `json:"active"`
	TargetID      string `json:"targetId"`
	Scope         Scope  `json:"scope"`
	Message       string `json:"message"`
	EndsAtEpochMs int64  `json:"endsAtEpochMs"`
}

// SecondsLeft derives the remaining whole seconds at now, never negative.
func (p PendingDelete) SecondsLeft(now time.Time) int {
	remainingMs := p.EndsAtEpochMs - now.UnixMilli()
	if remainingMs <= 0 {
		return 0
	}
	return int((remainingMs + 999) / 1000)
}

// Expired reports whether the undo window has closed.
func (p PendingDelete) Expired(now time.Time) bool {
	return now.UnixMilli() >= p.EndsAtEpochMs
}

// Valid reports whether a record read back from a store is usable.
// Invalid records are treated the same as an absent record.
func (p PendingDelete) Valid() bool {
	if !p.Active || p.TargetID == "" || p.EndsAtEpochMs <= 0 {
		return false
	}
	_, err := ParseScope(string(p.Scope))
	return err == nil
}

// DeleteOutcomeCode classifies the result of one delete call.
type DeleteOutcomeCode int

const (
	// OutcomeDeleted means the server removed the resource.
	OutcomeDeleted DeleteOutcomeCode = iota
	// OutcomeAlreadyGone means the server answered 404: the resource was
	// already absent, which counts as success.
	OutcomeAlreadyGone
	// OutcomeFailed means the call failed for a non-idempotent reason.
	OutcomeFailed
)

// String returns the metrics/log label for the outcome.
func (c DeleteOutcomeCode) String() string {
	switch c {
	case OutcomeDeleted:
		return "deleted"
	case OutcomeAlreadyGone:
		return "already_gone"
	case OutcomeFailed:
		return "failed"
	}
	return "unknown"
}

// DeleteOutcome is what the delete executor reports back to the
// controller. Message is set only for OutcomeFailed.
type DeleteOutcome struct {
	Code    DeleteOutcomeCode
	Message string
}

// StartDeleteRequest is the payload for the local API.
type StartDeleteRequest struct {
	TargetID        string `json:"targetId"`
	Scope           string `json:"scope"`
	Message         string `json:"message"`
	DurationSeconds int    `json:"durationSeconds"`
}

// PendingDeleteResponse is the local API view of the current countdown.
type PendingDeleteResponse struct {
	State         string `json:"state"`
	TargetID      string `json:"targetId"`
	Scope         string `json:"scope"`
	Message       string `json:"message"`
	EndsAtEpochMs int64  `json:"endsAtEpochMs,omitempty"`
	SecondsLeft   int    `json:"secondsLeft"`
	Error         string `json:"error,omitempty"`
}
