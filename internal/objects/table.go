// Package objects provides a live-object table for the journal: instances of
// compiled classes with typed properties, declared method effects and
// optional reference counting.
//
// It is the "scene" the harness and CLI drive journals against. Method calls
// are resolved by name at dispatch time, which is the one reflective boundary
// the journal needs.
//
// Thread-safety: Table is safe for concurrent use. Native methods run without
// the table lock held so they may call back into the table.
package objects

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/roach88/rewind/internal/ir"
	"github.com/roach88/rewind/internal/journal"
)

var (
	// ErrUnknownClass is returned by Create for a class that was not loaded.
	ErrUnknownClass = errors.New("unknown class")

	// ErrUnknownProperty is returned by Create for an undeclared property.
	ErrUnknownProperty = errors.New("unknown property")

	// ErrTypeMismatch is returned by Create for a value of the wrong type.
	ErrTypeMismatch = errors.New("type mismatch")
)

// NativeMethod implements a method in Go. It takes precedence over a declared
// effect of the same name. Declared argument specs are still checked before
// it runs.
type NativeMethod func(t *Table, obj *Instance, args []ir.IRValue) error

// DestroyFunc observes object destruction.
type DestroyFunc func(id ir.ObjectID, class string)

// Instance is one live object.
type Instance struct {
	id    ir.ObjectID
	class *ir.ClassSpec
}

// ID implements journal.Object.
func (o *Instance) ID() ir.ObjectID { return o.id }

// Class returns the instance's class name.
func (o *Instance) Class() string { return o.class.Name }

type entry struct {
	obj    *Instance
	props  ir.IRObject
	holds  int
	edited bool
}

// Table maps object identities to live instances.
type Table struct {
	mu        sync.RWMutex
	classes   map[string]*ir.ClassSpec
	natives   map[string]map[string]NativeMethod
	live      map[ir.ObjectID]*entry
	next      ir.ObjectID
	onDestroy []DestroyFunc
	logger    *slog.Logger
}

var _ journal.ObjectTable = (*Table)(nil)

// Option configures a Table.
type Option func(*Table)

// WithLogger sets the logger used for ignored writes.
func WithLogger(l *slog.Logger) Option {
	return func(t *Table) {
		t.logger = l
	}
}

// NewTable creates an empty table that can instantiate the given classes.
func NewTable(classes []ir.ClassSpec, opts ...Option) *Table {
	t := &Table{
		classes: make(map[string]*ir.ClassSpec, len(classes)),
		natives: make(map[string]map[string]NativeMethod),
		live:    make(map[ir.ObjectID]*entry),
		logger:  slog.Default(),
	}
	for i := range classes {
		c := classes[i]
		t.classes[c.Name] = &c
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// RegisterNative installs a Go implementation for class.method.
func (t *Table) RegisterNative(class, method string, fn NativeMethod) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.natives[class] == nil {
		t.natives[class] = make(map[string]NativeMethod)
	}
	t.natives[class][method] = fn
}

// OnDestroy registers fn to run after any object is destroyed.
func (t *Table) OnDestroy(fn DestroyFunc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onDestroy = append(t.onDestroy, fn)
}

// Create instantiates class with the declared defaults overridden by props.
// IDs start at 1 and are never reused. For a reference-counted class the
// caller owns one hold and must Release it.
func (t *Table) Create(class string, props ir.IRObject) (*Instance, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	spec, ok := t.classes[class]
	if !ok {
		return nil, fmt.Errorf("create %q: %w", class, ErrUnknownClass)
	}

	values := make(ir.IRObject, len(spec.Properties))
	for _, p := range spec.Properties {
		values[p.Name] = defaultValue(p)
	}
	for _, name := range props.SortedKeys() {
		p, ok := spec.Property(name)
		if !ok {
			return nil, fmt.Errorf("create %q: property %q: %w", class, name, ErrUnknownProperty)
		}
		v := props[name]
		if !slotAccepts(p.Type, v) {
			return nil, fmt.Errorf("create %q: property %q: expected %s, got %s: %w",
				class, name, p.Type, ir.TypeName(v), ErrTypeMismatch)
		}
		values[name] = ir.Clone(v)
	}

	t.next++
	obj := &Instance{id: t.next, class: spec}
	e := &entry{obj: obj, props: values}
	if spec.RefCounted {
		e.holds = 1
	}
	t.live[obj.id] = e
	return obj, nil
}

// defaultValue returns the declared default, or the zero value of the type.
func defaultValue(p ir.PropertySpec) ir.IRValue {
	if p.Default != nil {
		return ir.Clone(p.Default)
	}
	switch p.Type {
	case ir.TypeInt:
		return ir.IRInt(0)
	case ir.TypeString:
		return ir.IRString("")
	case ir.TypeBool:
		return ir.IRBool(false)
	case ir.TypeArray:
		return ir.IRArray{}
	case ir.TypeObject:
		return ir.IRObject{}
	default:
		return ir.IRNull{}
	}
}

// slotAccepts reports whether v may be stored in a slot of type typ.
// Ref slots are nullable.
func slotAccepts(typ string, v ir.IRValue) bool {
	if typ == ir.TypeRef && ir.IsNull(v) {
		return true
	}
	return ir.Conforms(v, typ)
}

// Resolve implements journal.ObjectTable.
func (t *Table) Resolve(id ir.ObjectID) (journal.Object, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.live[id]
	if !ok {
		return nil, false
	}
	return e.obj, true
}

// Lookup is Resolve returning the concrete instance.
func (t *Table) Lookup(id ir.ObjectID) (*Instance, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.live[id]
	if !ok {
		return nil, false
	}
	return e.obj, true
}

// IsRefCounted implements journal.ObjectTable.
func (t *Table) IsRefCounted(obj journal.Object) bool {
	inst, ok := obj.(*Instance)
	return ok && inst.class.RefCounted
}

// Holds returns the number of strong holds on id; zero for dead objects and
// objects that are not reference-counted.
func (t *Table) Holds(id ir.ObjectID) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if e, ok := t.live[id]; ok {
		return e.holds
	}
	return 0
}

// Ref is one strong hold. Release is idempotent.
type Ref struct {
	table *Table
	obj   *Instance
	once  sync.Once
}

// Object implements journal.StrongRef.
func (r *Ref) Object() journal.Object { return r.obj }

// Release implements journal.StrongRef.
func (r *Ref) Release() {
	r.once.Do(func() { r.table.release(r.obj.id) })
}

// Retain implements journal.ObjectTable.
func (t *Table) Retain(obj journal.Object) journal.StrongRef {
	t.mu.Lock()
	defer t.mu.Unlock()
	inst := obj.(*Instance)
	if e, ok := t.live[inst.id]; ok {
		e.holds++
	}
	return &Ref{table: t, obj: inst}
}

// Release drops the hold Create handed out for a reference-counted object.
func (t *Table) Release(obj journal.Object) {
	t.release(obj.ID())
}

func (t *Table) release(id ir.ObjectID) {
	t.mu.Lock()
	e, ok := t.live[id]
	if !ok || e.holds == 0 {
		t.mu.Unlock()
		return
	}
	e.holds--
	if e.holds > 0 {
		t.mu.Unlock()
		return
	}
	hooks := t.removeLocked(id)
	t.mu.Unlock()
	runHooks(hooks, e.obj)
}

// Destroy implements journal.ObjectTable. Destroying a dead object is a no-op;
// destroying a reference-counted one removes it regardless of holds.
func (t *Table) Destroy(obj journal.Object) {
	t.mu.Lock()
	e, ok := t.live[obj.ID()]
	if !ok {
		t.mu.Unlock()
		return
	}
	hooks := t.removeLocked(obj.ID())
	t.mu.Unlock()
	runHooks(hooks, e.obj)
}

func (t *Table) removeLocked(id ir.ObjectID) []DestroyFunc {
	delete(t.live, id)
	return slices.Clone(t.onDestroy)
}

func runHooks(hooks []DestroyFunc, obj *Instance) {
	for _, fn := range hooks {
		fn(obj.id, obj.class.Name)
	}
}

// Set implements journal.ObjectTable. Writes to undeclared properties and
// values of the wrong type are logged and ignored.
func (t *Table) Set(obj journal.Object, property string, value ir.IRValue) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.live[obj.ID()]
	if !ok {
		return
	}
	p, ok := e.obj.class.Property(property)
	if !ok {
		t.logger.Warn("ignoring write to unknown property",
			"object", obj.ID().String(), "class", e.obj.class.Name, "property", property)
		return
	}
	if !slotAccepts(p.Type, value) {
		t.logger.Warn("ignoring write of wrong type",
			"object", obj.ID().String(), "property", property,
			"expected", p.Type, "got", ir.TypeName(value))
		return
	}
	e.props[property] = ir.Clone(value)
}

// Get returns a copy of one property value.
func (t *Table) Get(id ir.ObjectID, property string) (ir.IRValue, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.live[id]
	if !ok {
		return nil, false
	}
	v, ok := e.props[property]
	if !ok {
		return nil, false
	}
	return ir.Clone(v), true
}

// Props returns a copy of every property of id.
func (t *Table) Props(id ir.ObjectID) (ir.IRObject, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.live[id]
	if !ok {
		return nil, false
	}
	return ir.Clone(e.props).(ir.IRObject), true
}

// MarkEdited implements journal.ObjectTable.
func (t *Table) MarkEdited(obj journal.Object) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.live[obj.ID()]; ok {
		e.edited = true
	}
}

// Edited reports whether id was marked edited since the last ClearEdited.
func (t *Table) Edited(id ir.ObjectID) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.live[id]
	return ok && e.edited
}

// ClearEdited resets the edited flag on every object, as a save would.
func (t *Table) ClearEdited() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, e := range t.live {
		e.edited = false
	}
}

// Live returns the identities of all live objects in ascending order.
func (t *Table) Live() []ir.ObjectID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ids := make([]ir.ObjectID, 0, len(t.live))
	for id := range t.live {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Len returns the number of live objects.
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.live)
}
