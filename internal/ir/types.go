package ir

import (
	"fmt"
	"strconv"
)

// ObjectID is the stable identity of a live object. Zero is never assigned.
type ObjectID uint64

// String renders the identity as "#id".
func (id ObjectID) String() string {
	return "#" + strconv.FormatUint(uint64(id), 10)
}

// MergeMode controls how a newly opened action coalesces with the previous one.
type MergeMode int

const (
	// MergeDisable never merges; every open creates a fresh action.
	MergeDisable MergeMode = iota
	// MergeEnds replaces the previous do-side and keeps its undo-side.
	MergeEnds
	// MergeAll accumulates both sides into the previous action.
	MergeAll
)

// String returns the lower-case mode name used in scenario files.
func (m MergeMode) String() string {
	switch m {
	case MergeDisable:
		return "disable"
	case MergeEnds:
		return "ends"
	case MergeAll:
		return "all"
	default:
		return fmt.Sprintf("MergeMode(%d)", int(m))
	}
}

// ParseMergeMode parses "disable", "ends" or "all". The empty string is disable.
func ParseMergeMode(s string) (MergeMode, error) {
	switch s {
	case "", "disable":
		return MergeDisable, nil
	case "ends":
		return MergeEnds, nil
	case "all":
		return MergeAll, nil
	default:
		return MergeDisable, fmt.Errorf("invalid merge mode %q: must be one of disable, ends, all", s)
	}
}

// Effect names what a declared method does to its target property.
type Effect string

const (
	EffectSet    Effect = "set"    // property = arg0
	EffectAdd    Effect = "add"    // int property += arg0
	EffectAppend Effect = "append" // array property gains arg0
	EffectRemove Effect = "remove" // array property loses first element equal to arg0
	EffectToggle Effect = "toggle" // bool property flipped, no args
	EffectNoop   Effect = "noop"
)

// ValidEffects lists the effects a class schema may declare.
var ValidEffects = map[Effect]bool{
	EffectSet:    true,
	EffectAdd:    true,
	EffectAppend: true,
	EffectRemove: true,
	EffectToggle: true,
	EffectNoop:   true,
}

// ClassSpec is a compiled object class.
type ClassSpec struct {
	Name       string         `json:"name"`
	RefCounted bool           `json:"refcounted"`
	Properties []PropertySpec `json:"properties"`
	Methods    []MethodSpec   `json:"methods"`
}

// PropertySpec declares a typed property and its default value.
type PropertySpec struct {
	Name    string  `json:"name"`
	Type    string  `json:"type"`
	Default IRValue `json:"default,omitempty"`
}

// MethodSpec declares a callable method with positional typed args.
type MethodSpec struct {
	Name     string     `json:"name"`
	Args     []NamedArg `json:"args"`
	Effect   Effect     `json:"effect"`
	Property string     `json:"property,omitempty"`
}

// NamedArg represents a named argument with type.
type NamedArg struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Property returns the named property spec.
func (c *ClassSpec) Property(name string) (PropertySpec, bool) {
	for _, p := range c.Properties {
		if p.Name == name {
			return p, true
		}
	}
	return PropertySpec{}, false
}

// Method returns the named method spec.
func (c *ClassSpec) Method(name string) (MethodSpec, bool) {
	for _, m := range c.Methods {
		if m.Name == name {
			return m, true
		}
	}
	return MethodSpec{}, false
}

// EventKind names a journal event record.
type EventKind string

const (
	EventVersionChanged  EventKind = "version_changed"
	EventActionCommitted EventKind = "commit"
	EventActionMerged    EventKind = "merge"
	EventUndo            EventKind = "undo"
	EventRedo            EventKind = "redo"
	EventHistoryCleared  EventKind = "clear"
	EventActionDiscarded EventKind = "discard"
	EventActionEvicted   EventKind = "evict"
	EventDiagnostic      EventKind = "diagnostic"
	EventMethod          EventKind = "method"
	EventProperty        EventKind = "property"
	EventDestroyed       EventKind = "destroyed"
)

// JournalEvent is the flat record of one journal event, as written to the
// event store and the harness trace.
type JournalEvent struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	Seq        int64     `json:"seq"`
	Kind       EventKind `json:"kind"`
	Action     string    `json:"action,omitempty"`
	Version    uint64    `json:"version"`
	Cursor     int       `json:"cursor"`
	HistoryLen int       `json:"history_len"`
	Detail     IRObject  `json:"detail,omitempty"`
}

// Session identifies one recorded journal run.
type Session struct {
	ID            string `json:"id"`
	Scenario      string `json:"scenario"`
	ClassesHash   string `json:"classes_hash,omitempty"`
	StartedAtSeq  int64  `json:"started_at_seq"`
	EngineVersion string `json:"engine_version"`
}
