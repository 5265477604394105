package harness

import (
	"github.com/roach88/rewind/internal/ir"
	"github.com/roach88/rewind/internal/journal"
)

// TraceEvent is one journal bus event as seen by the harness.
type TraceEvent struct {
	Seq        int64       `json:"seq"`
	Kind       string      `json:"kind"`
	Action     string      `json:"action,omitempty"`
	Version    uint64      `json:"version"`
	Cursor     int         `json:"cursor"`
	HistoryLen int         `json:"history_len"`
	Detail     ir.IRObject `json:"detail,omitempty"`
}

func traceEventFrom(e journal.Event) TraceEvent {
	return TraceEvent{
		Seq:        e.Seq,
		Kind:       string(e.Kind),
		Action:     e.Action,
		Version:    e.Version,
		Cursor:     e.Cursor,
		HistoryLen: e.HistoryLen,
		Detail:     e.Detail,
	}
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass is true when every step, expectation and assertion held.
	Pass bool `json:"pass"`

	// SessionID is the session the trace was recorded under.
	SessionID string `json:"session_id"`

	// Trace contains every bus event in sequence order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// State holds the final properties of every live named object.
	// Destroyed objects are absent.
	State map[string]ir.IRObject `json:"state,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
		State:  make(map[string]ir.IRObject),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
