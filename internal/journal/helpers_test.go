package journal

import (
	"io"
	"log/slog"
	"testing"

	"github.com/roach88/rewind/internal/ir"
	"github.com/roach88/rewind/internal/testutil"
)

// fakeObject is a property bag standing in for a live object.
type fakeObject struct {
	id         ir.ObjectID
	refCounted bool
	props      map[string]ir.IRValue
	holds      int
	edited     int
}

func (o *fakeObject) ID() ir.ObjectID { return o.id }

type fakeRef struct {
	table *fakeTable
	obj   *fakeObject
	done  bool
}

func (r *fakeRef) Object() Object { return r.obj }

func (r *fakeRef) Release() {
	if r.done {
		return
	}
	r.done = true
	r.obj.holds--
	if r.obj.holds == 0 {
		r.table.kill(r.obj)
	}
}

type fakeCall struct {
	target ir.ObjectID
	method string
	args   []ir.IRValue
}

// fakeTable implements ObjectTable over fakeObjects. Methods:
//   - rotate(n): adds n to "rotation"
//   - add_child(ref) / remove_child(ref): edits the "children" array
//   - fail(): always returns CallInvalidMethod
type fakeTable struct {
	next      ir.ObjectID
	live      map[ir.ObjectID]*fakeObject
	destroyed map[ir.ObjectID]int
	calls     []fakeCall
}

func newFakeTable() *fakeTable {
	return &fakeTable{
		live:      make(map[ir.ObjectID]*fakeObject),
		destroyed: make(map[ir.ObjectID]int),
	}
}

func (t *fakeTable) create(refCounted bool) *fakeObject {
	t.next++
	obj := &fakeObject{id: t.next, refCounted: refCounted, props: make(map[string]ir.IRValue)}
	if refCounted {
		obj.holds = 1
	}
	t.live[obj.id] = obj
	return obj
}

func (t *fakeTable) kill(obj *fakeObject) {
	if _, ok := t.live[obj.id]; !ok {
		return
	}
	delete(t.live, obj.id)
	t.destroyed[obj.id]++
}

func (t *fakeTable) Resolve(id ir.ObjectID) (Object, bool) {
	obj, ok := t.live[id]
	if !ok {
		return nil, false
	}
	return obj, true
}

func (t *fakeTable) IsRefCounted(obj Object) bool {
	return obj.(*fakeObject).refCounted
}

func (t *fakeTable) Retain(obj Object) StrongRef {
	o := obj.(*fakeObject)
	o.holds++
	return &fakeRef{table: t, obj: o}
}

func (t *fakeTable) Call(obj Object, method string, args []ir.IRValue) error {
	o := obj.(*fakeObject)
	t.calls = append(t.calls, fakeCall{target: o.id, method: method, args: append([]ir.IRValue(nil), args...)})
	switch method {
	case "rotate":
		if len(args) != 1 {
			return &CallError{Kind: CallTooFewArguments, Argument: 1}
		}
		cur, _ := o.props["rotation"].(ir.IRInt)
		o.props["rotation"] = cur + args[0].(ir.IRInt)
	case "add_child":
		children, _ := o.props["children"].(ir.IRArray)
		o.props["children"] = append(children, args[0])
	case "remove_child":
		children, _ := o.props["children"].(ir.IRArray)
		out := ir.IRArray{}
		for _, c := range children {
			if !ir.Equal(c, args[0]) {
				out = append(out, c)
			}
		}
		o.props["children"] = out
	default:
		return &CallError{Kind: CallInvalidMethod}
	}
	return nil
}

func (t *fakeTable) Set(obj Object, property string, value ir.IRValue) {
	obj.(*fakeObject).props[property] = value
}

func (t *fakeTable) MarkEdited(obj Object) {
	obj.(*fakeObject).edited++
}

func (t *fakeTable) Destroy(obj Object) {
	t.kill(obj.(*fakeObject))
}

// recordingComposite logs its faces into a shared slice.
type recordingComposite struct {
	name  string
	log   *[]string
	apply bool
}

func (c *recordingComposite) Redo()          { *c.log = append(*c.log, c.name+".redo") }
func (c *recordingComposite) Undo()          { *c.log = append(*c.log, c.name+".undo") }
func (c *recordingComposite) CanApply() bool { return c.apply }

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestJournal returns a journal over a fresh fake table with a manual
// clock at 1000ms.
func newTestJournal(t *testing.T, opts ...Option) (*Journal, *fakeTable, *testutil.ManualClock) {
	t.Helper()
	table := newFakeTable()
	clock := testutil.NewManualClock(1000)
	base := []Option{WithClock(clock), WithLogger(quietLogger())}
	return New(table, append(base, opts...)...), table, clock
}

// collect subscribes to the bus and returns the growing event list.
func collect(j *Journal) *[]Event {
	var events []Event
	j.Subscribe(func(e Event) { events = append(events, e) })
	return &events
}

func kinds(events []Event) []ir.EventKind {
	out := make([]ir.EventKind, len(events))
	for i, e := range events {
		out[i] = e.Kind
	}
	return out
}

func countKind(events []Event, kind ir.EventKind) int {
	n := 0
	for _, e := range events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}
