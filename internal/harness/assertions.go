package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/rewind/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Full trace for debugging context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nFull trace:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s", event.Seq, event.Kind)
			if event.Action != "" {
				fmt.Fprintf(&buf, " %q", event.Action)
			}
			if len(event.Detail) > 0 {
				fmt.Fprintf(&buf, " %s", ir.Format(event.Detail))
			}
			buf.WriteByte('\n')
		}
	}

	return buf.String()
}

// AssertionContext provides context for evaluating assertions.
type AssertionContext struct {
	// Names resolves "@name" values in expected details and state.
	Names map[string]ir.ObjectID
}

func (c *AssertionContext) names() map[string]ir.ObjectID {
	if c == nil {
		return nil
	}
	return c.Names
}

// assertTraceContains checks that some event has the kind, the action when
// one is given, and a detail containing the expected keys.
func assertTraceContains(trace []TraceEvent, a Assertion, names map[string]ir.ObjectID) error {
	want, err := expectedDetail(a.Detail, names)
	if err != nil {
		return fmt.Errorf("trace_contains: %w", err)
	}
	for _, event := range trace {
		if matchEvent(event, a) && matchDetail(event.Detail, want) {
			return nil
		}
	}

	expected := a.Kind
	if a.Action != "" {
		expected += fmt.Sprintf(" for action %q", a.Action)
	}
	if len(want) > 0 {
		expected += " with detail " + ir.Format(want)
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: expected,
		Actual:   "not found in trace",
		Trace:    trace,
	}
}

// assertTraceOrder checks that the kinds appear in order. Other events may
// come between them.
func assertTraceOrder(trace []TraceEvent, a Assertion) error {
	next := 0
	for _, event := range trace {
		if next < len(a.Kinds) && event.Kind == a.Kinds[next] {
			next++
		}
	}
	if next == len(a.Kinds) {
		return nil
	}

	kinds := make([]string, len(trace))
	for i, event := range trace {
		kinds[i] = event.Kind
	}
	return &AssertionError{
		Type:     AssertTraceOrder,
		Expected: fmt.Sprintf("kinds in order: %v", a.Kinds),
		Actual: fmt.Sprintf("matched %v, missing %s after that; trace kinds %v",
			a.Kinds[:next], a.Kinds[next], kinds),
		Trace: trace,
	}
}

// assertTraceCount checks that exactly Count events match the kind and, when
// given, the action.
func assertTraceCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, event := range trace {
		if matchEvent(event, a) {
			count++
		}
	}

	if count != a.Count {
		what := a.Kind
		if a.Action != "" {
			what += fmt.Sprintf(" for action %q", a.Action)
		}
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", a.Count, what),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertFinalState checks the object's final properties (subset match).
func assertFinalState(state map[string]ir.IRObject, a Assertion, names map[string]ir.ObjectID) error {
	props, ok := state[a.Object]
	if !ok {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("live object %s", a.Object),
			Actual:   "object is destroyed or unknown",
		}
	}

	var diffs []string
	for _, key := range sortedKeys(a.Expect) {
		want, err := convertToIRValue(a.Expect[key], names)
		if err != nil {
			return fmt.Errorf("final_state %s.%s: %w", a.Object, key, err)
		}
		got, ok := props[key]
		switch {
		case !ok:
			diffs = append(diffs, fmt.Sprintf("%s: missing", key))
		case !ir.Equal(want, got):
			diffs = append(diffs, fmt.Sprintf("%s: expected %s, got %s", key, ir.Format(want), ir.Format(got)))
		}
	}
	if len(diffs) > 0 {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%s matches %v", a.Object, a.Expect),
			Actual:   strings.Join(diffs, "; "),
		}
	}
	return nil
}

func matchEvent(event TraceEvent, a Assertion) bool {
	if event.Kind != a.Kind {
		return false
	}
	return a.Action == "" || event.Action == a.Action
}

func expectedDetail(detail map[string]any, names map[string]ir.ObjectID) (ir.IRObject, error) {
	if len(detail) == 0 {
		return nil, nil
	}
	v, err := convertToIRValue(detail, names)
	if err != nil {
		return nil, err
	}
	return v.(ir.IRObject), nil
}

// matchDetail checks that actual contains every key of expected (subset
// match). Nested objects are matched the same way; everything else must be
// equal.
func matchDetail(actual, expected ir.IRObject) bool {
	for key, want := range expected {
		got, ok := actual[key]
		if !ok {
			return false
		}
		if wantObj, isObj := want.(ir.IRObject); isObj {
			gotObj, ok := got.(ir.IRObject)
			if !ok || !matchDetail(gotObj, wantObj) {
				return false
			}
			continue
		}
		if !ir.Equal(want, got) {
			return false
		}
	}
	return true
}

// EvaluateAssertions evaluates all assertions against the result.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string
	names := actx.names()

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Trace, assertion, names)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Trace, assertion)
		case AssertTraceCount:
			err = assertTraceCount(result.Trace, assertion)
		case AssertFinalState:
			err = assertFinalState(result.State, assertion, names)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
