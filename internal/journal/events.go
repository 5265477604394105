package journal

import (
	"errors"
	"fmt"

	"github.com/roach88/rewind/internal/ir"
)

// Event is one notification on the journal's bus. Version, Cursor and
// HistoryLen are the journal state after the change.
type Event struct {
	Seq        int64
	Kind       ir.EventKind
	Action     string
	Version    uint64
	Cursor     int
	HistoryLen int
	Detail     ir.IRObject
}

// Record flattens e into the stored form for session. It fails when the
// detail cannot be canonicalized, since the event would have no ID.
func (e Event) Record(sessionID string) (ir.JournalEvent, error) {
	id, err := ir.EventID(sessionID, e.Seq, e.Kind, e.Detail)
	if err != nil {
		return ir.JournalEvent{}, fmt.Errorf("record %s event %d: %w", e.Kind, e.Seq, err)
	}
	return ir.JournalEvent{
		ID:         id,
		SessionID:  sessionID,
		Seq:        e.Seq,
		Kind:       e.Kind,
		Action:     e.Action,
		Version:    e.Version,
		Cursor:     e.Cursor,
		HistoryLen: e.HistoryLen,
		Detail:     e.Detail,
	}, nil
}

// Listener receives bus events synchronously, on the goroutine that caused them.
type Listener func(Event)

type subscription struct {
	id int
	fn Listener
}

// bus fans events out to listeners in subscription order.
type bus struct {
	nextID int
	subs   []subscription
}

func (b *bus) subscribe(fn Listener) func() {
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, fn: fn})
	return func() {
		for i, s := range b.subs {
			if s.id == id {
				b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

func (b *bus) publish(e Event) {
	// Listeners may unsubscribe while we iterate.
	subs := b.subs
	for _, s := range subs {
		s.fn(e)
	}
}

// DiagnosticKind categorizes non-fatal problems found during dispatch.
type DiagnosticKind string

const (
	// DiagCallFailed: the target resolved but the method call returned an error.
	DiagCallFailed DiagnosticKind = "call_failed"

	// DiagLambdaUnobserved: a method observer is installed but a lambda ran,
	// and lambdas have no method name to report.
	DiagLambdaUnobserved DiagnosticKind = "lambda_unobserved"
)

// Diagnostic is a problem reported during dispatch. It never aborts the
// surrounding action.
type Diagnostic struct {
	Kind      DiagnosticKind
	Action    string
	Direction Direction
	Target    ir.ObjectID
	Method    string
	Args      []ir.IRValue
	Err       error
}

// String renders the diagnostic as a log line.
func (d Diagnostic) String() string {
	switch d.Kind {
	case DiagCallFailed:
		return fmt.Sprintf("error calling method from action %q: %s.%s(%s): %v",
			d.Action, d.Target, d.Method, ir.FormatArgs(d.Args), d.Err)
	case DiagLambdaUnobserved:
		return fmt.Sprintf("lambda in action %q cannot be reported to the method observer", d.Action)
	default:
		return string(d.Kind)
	}
}

func (d Diagnostic) detail() ir.IRObject {
	detail := ir.IRObject{
		"kind":      ir.IRString(string(d.Kind)),
		"direction": ir.IRString(d.Direction.String()),
	}
	if d.Target != 0 {
		detail["target"] = ir.IRRef(d.Target)
	}
	if d.Method != "" {
		detail["method"] = ir.IRString(d.Method)
		detail["args"] = cloneArgs(d.Args)
	}
	if d.Err != nil {
		detail["error"] = ir.IRString(d.Err.Error())
		var ce *CallError
		if errors.As(d.Err, &ce) {
			detail["call_error"] = ir.IRString(ce.Kind.String())
		}
	}
	return detail
}

func cloneArgs(args []ir.IRValue) ir.IRArray {
	out := make(ir.IRArray, len(args))
	for i, a := range args {
		out[i] = ir.Clone(a)
	}
	return out
}
