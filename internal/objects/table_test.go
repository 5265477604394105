package objects

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rewind/internal/ir"
	"github.com/roach88/rewind/internal/journal"
	"github.com/roach88/rewind/internal/testutil"
)

func testClasses() []ir.ClassSpec {
	return []ir.ClassSpec{
		{
			Name: "Node",
			Properties: []ir.PropertySpec{
				{Name: "name", Type: ir.TypeString},
				{Name: "x", Type: ir.TypeInt, Default: ir.IRInt(7)},
				{Name: "visible", Type: ir.TypeBool},
				{Name: "children", Type: ir.TypeArray},
				{Name: "parent", Type: ir.TypeRef},
			},
			Methods: []ir.MethodSpec{
				{Name: "move", Args: []ir.NamedArg{{Name: "dx", Type: ir.TypeInt}}, Effect: ir.EffectAdd, Property: "x"},
				{Name: "rename", Args: []ir.NamedArg{{Name: "to", Type: ir.TypeString}}, Effect: ir.EffectSet, Property: "name"},
				{Name: "add_child", Args: []ir.NamedArg{{Name: "child", Type: ir.TypeRef}}, Effect: ir.EffectAppend, Property: "children"},
				{Name: "remove_child", Args: []ir.NamedArg{{Name: "child", Type: ir.TypeRef}}, Effect: ir.EffectRemove, Property: "children"},
				{Name: "flip", Effect: ir.EffectToggle, Property: "visible"},
				{Name: "ping", Effect: ir.EffectNoop},
			},
		},
		{
			Name:       "Mesh",
			RefCounted: true,
			Properties: []ir.PropertySpec{{Name: "verts", Type: ir.TypeInt}},
		},
	}
}

func newTestTable(t *testing.T) *Table {
	t.Helper()
	return NewTable(testClasses(), WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

func mustCreate(t *testing.T, table *Table, class string, props ir.IRObject) *Instance {
	t.Helper()
	obj, err := table.Create(class, props)
	require.NoError(t, err)
	return obj
}

func TestTable_CreateDefaults(t *testing.T) {
	table := newTestTable(t)
	obj := mustCreate(t, table, "Node", ir.IRObject{"name": ir.IRString("root")})

	assert.Equal(t, ir.ObjectID(1), obj.ID())
	assert.Equal(t, "Node", obj.Class())
	props, ok := table.Props(obj.ID())
	require.True(t, ok)
	assert.Equal(t, ir.IRObject{
		"name":     ir.IRString("root"),
		"x":        ir.IRInt(7),
		"visible":  ir.IRBool(false),
		"children": ir.IRArray{},
		"parent":   ir.IRNull{},
	}, props)
}

func TestTable_CreateErrors(t *testing.T) {
	table := newTestTable(t)

	_, err := table.Create("Ghost", nil)
	assert.ErrorIs(t, err, ErrUnknownClass)

	_, err = table.Create("Node", ir.IRObject{"nope": ir.IRInt(1)})
	assert.ErrorIs(t, err, ErrUnknownProperty)

	_, err = table.Create("Node", ir.IRObject{"x": ir.IRString("1")})
	assert.ErrorIs(t, err, ErrTypeMismatch)
	assert.ErrorContains(t, err, "expected int, got string")

	assert.Equal(t, 0, table.Len(), "failed creates allocate nothing")
}

func TestTable_IDsNeverReused(t *testing.T) {
	table := newTestTable(t)
	a := mustCreate(t, table, "Node", nil)
	table.Destroy(a)
	b := mustCreate(t, table, "Node", nil)

	assert.Equal(t, ir.ObjectID(2), b.ID())
	_, ok := table.Resolve(a.ID())
	assert.False(t, ok)
	assert.Equal(t, []ir.ObjectID{2}, table.Live())
}

func TestTable_CallEffects(t *testing.T) {
	table := newTestTable(t)
	parent := mustCreate(t, table, "Node", nil)
	child := mustCreate(t, table, "Node", nil)

	require.NoError(t, table.Call(parent, "move", []ir.IRValue{ir.IRInt(3)}))
	require.NoError(t, table.Call(parent, "rename", []ir.IRValue{ir.IRString("p")}))
	require.NoError(t, table.Call(parent, "add_child", []ir.IRValue{ir.IRRef(child.ID())}))
	require.NoError(t, table.Call(parent, "add_child", []ir.IRValue{ir.IRRef(child.ID())}))
	require.NoError(t, table.Call(parent, "remove_child", []ir.IRValue{ir.IRRef(child.ID())}))
	require.NoError(t, table.Call(parent, "flip", nil))
	require.NoError(t, table.Call(parent, "ping", nil))

	props, _ := table.Props(parent.ID())
	assert.Equal(t, ir.IRInt(10), props["x"])
	assert.Equal(t, ir.IRString("p"), props["name"])
	assert.Equal(t, ir.IRArray{ir.IRRef(child.ID())}, props["children"], "remove drops only the first match")
	assert.Equal(t, ir.IRBool(true), props["visible"])
}

func TestTable_CallErrors(t *testing.T) {
	table := newTestTable(t)
	obj := mustCreate(t, table, "Node", nil)

	tests := []struct {
		name   string
		method string
		args   []ir.IRValue
		want   journal.CallError
	}{
		{"unknown method", "fly", nil, journal.CallError{Kind: journal.CallInvalidMethod}},
		{"too few", "move", nil, journal.CallError{Kind: journal.CallTooFewArguments, Argument: 1}},
		{"too many", "flip", []ir.IRValue{ir.IRInt(1)}, journal.CallError{Kind: journal.CallTooManyArguments, Argument: 0}},
		{"wrong type", "move", []ir.IRValue{ir.IRString("1")},
			journal.CallError{Kind: journal.CallInvalidArgument, Argument: 0, Expected: "int", Got: "string"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := table.Call(obj, tt.method, tt.args)
			var ce *journal.CallError
			require.True(t, errors.As(err, &ce), "got %v", err)
			assert.Equal(t, tt.want, *ce)
		})
	}

	table.Destroy(obj)
	err := table.Call(obj, "move", []ir.IRValue{ir.IRInt(1)})
	var ce *journal.CallError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, journal.CallInstanceIsNull, ce.Kind)
}

func TestTable_NullRefArgumentAccepted(t *testing.T) {
	table := newTestTable(t)
	obj := mustCreate(t, table, "Node", nil)

	table.Set(obj, "parent", ir.IRRef(5))
	table.Set(obj, "parent", ir.IRNull{})

	v, ok := table.Get(obj.ID(), "parent")
	require.True(t, ok)
	assert.Equal(t, ir.IRNull{}, v)
}

func TestTable_RegisterNative(t *testing.T) {
	table := newTestTable(t)
	obj := mustCreate(t, table, "Node", nil)

	table.RegisterNative("Node", "double", func(tb *Table, inst *Instance, args []ir.IRValue) error {
		x, _ := tb.Get(inst.ID(), "x")
		tb.Set(inst, "x", x.(ir.IRInt)*2)
		return nil
	})
	table.RegisterNative("Node", "move", func(tb *Table, inst *Instance, args []ir.IRValue) error {
		tb.Set(inst, "name", ir.IRString("moved natively"))
		return nil
	})

	require.NoError(t, table.Call(obj, "double", nil))
	x, _ := table.Get(obj.ID(), "x")
	assert.Equal(t, ir.IRInt(14), x)

	require.NoError(t, table.Call(obj, "move", []ir.IRValue{ir.IRInt(1)}))
	name, _ := table.Get(obj.ID(), "name")
	assert.Equal(t, ir.IRString("moved natively"), name)
	x, _ = table.Get(obj.ID(), "x")
	assert.Equal(t, ir.IRInt(14), x, "native replaces the declared effect")

	err := table.Call(obj, "move", nil)
	assert.Error(t, err, "declared arity still checked for natives")
}

func TestTable_SetIgnoresBadWrites(t *testing.T) {
	table := newTestTable(t)
	obj := mustCreate(t, table, "Node", nil)

	table.Set(obj, "missing", ir.IRInt(1))
	table.Set(obj, "x", ir.IRString("seven"))

	props, _ := table.Props(obj.ID())
	assert.NotContains(t, props, "missing")
	assert.Equal(t, ir.IRInt(7), props["x"])
}

func TestTable_RefCounting(t *testing.T) {
	table := newTestTable(t)
	var destroyed []ir.ObjectID
	table.OnDestroy(func(id ir.ObjectID, class string) {
		assert.Equal(t, "Mesh", class)
		destroyed = append(destroyed, id)
	})

	mesh := mustCreate(t, table, "Mesh", nil)
	assert.True(t, table.IsRefCounted(mesh))
	assert.Equal(t, 1, table.Holds(mesh.ID()))

	ref := table.Retain(mesh)
	assert.Equal(t, 2, table.Holds(mesh.ID()))
	assert.Same(t, mesh, ref.Object())

	table.Release(mesh)
	assert.Empty(t, destroyed)

	ref.Release()
	ref.Release()
	assert.Equal(t, []ir.ObjectID{mesh.ID()}, destroyed, "last release destroys exactly once")
	_, ok := table.Resolve(mesh.ID())
	assert.False(t, ok)
}

func TestTable_DestroyHooks(t *testing.T) {
	table := newTestTable(t)
	node := mustCreate(t, table, "Node", nil)
	count := 0
	table.OnDestroy(func(ir.ObjectID, string) { count++ })

	assert.False(t, table.IsRefCounted(node))
	table.Destroy(node)
	table.Destroy(node)

	assert.Equal(t, 1, count)
}

func TestTable_Edited(t *testing.T) {
	table := newTestTable(t)
	obj := mustCreate(t, table, "Node", nil)

	assert.False(t, table.Edited(obj.ID()))
	table.MarkEdited(obj)
	assert.True(t, table.Edited(obj.ID()))
	table.ClearEdited()
	assert.False(t, table.Edited(obj.ID()))
}

func TestTable_PropsAreCopies(t *testing.T) {
	table := newTestTable(t)
	obj := mustCreate(t, table, "Node", ir.IRObject{"children": ir.IRArray{ir.IRInt(1)}})

	props, _ := table.Props(obj.ID())
	props["children"].(ir.IRArray)[0] = ir.IRInt(99)

	again, _ := table.Props(obj.ID())
	assert.Equal(t, ir.IRArray{ir.IRInt(1)}, again["children"])
}

// The table drives a real journal end to end: spawn a child, undo, then
// truncate the history so the journal collects the orphan.
func TestTable_WithJournal(t *testing.T) {
	table := newTestTable(t)
	clock := testutil.NewManualClock(0)
	j := journal.New(table,
		journal.WithClock(clock),
		journal.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	parent := mustCreate(t, table, "Node", nil)
	child := mustCreate(t, table, "Node", nil)

	j.CreateAction("Spawn", ir.MergeDisable)
	require.NoError(t, j.AddDoReference(child))
	require.NoError(t, j.AddDoMethod(parent, "add_child", ir.IRRef(child.ID())))
	require.NoError(t, j.AddUndoMethod(parent, "remove_child", ir.IRRef(child.ID())))
	require.NoError(t, j.CommitAction())

	kids, _ := table.Get(parent.ID(), "children")
	assert.Equal(t, ir.IRArray{ir.IRRef(child.ID())}, kids)
	assert.True(t, table.Edited(parent.ID()))

	_, err := j.Undo()
	require.NoError(t, err)
	kids, _ = table.Get(parent.ID(), "children")
	assert.Equal(t, ir.IRArray{}, kids)

	j.CreateAction("Other", ir.MergeDisable)
	require.NoError(t, j.CommitAction())

	_, alive := table.Resolve(child.ID())
	assert.False(t, alive)
	_, alive = table.Resolve(parent.ID())
	assert.True(t, alive)
}
