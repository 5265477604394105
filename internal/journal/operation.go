package journal

import (
	"github.com/roach88/rewind/internal/ir"
)

// MaxMethodArgs is the maximum number of arguments a journaled method call
// can carry.
const MaxMethodArgs = 5

// OpKind names an operation variant.
type OpKind string

const (
	OpMethod    OpKind = "method"
	OpProperty  OpKind = "property"
	OpLambda    OpKind = "lambda"
	OpReference OpKind = "reference"
	OpComposite OpKind = "composite"
)

// Direction selects which face of an operation dispatch runs.
type Direction int

const (
	Forward Direction = iota
	Backward
)

// String returns "do" or "undo".
func (d Direction) String() string {
	if d == Backward {
		return "undo"
	}
	return "do"
}

// Composite is a caller-supplied sub-action. The same value sits in both
// operation lists of its action; dispatch direction decides which face runs.
// A composite whose CanApply returns false is skipped.
type Composite interface {
	Redo()
	Undo()
	CanApply() bool
}

// Operation is a sealed sum over the operation variants.
// Only *MethodOp, *PropertyOp, *LambdaOp, *ReferenceOp and *CompositeOp
// implement it.
type Operation interface {
	Kind() OpKind
	operation()
}

// target is how an operation holds the object it addresses: through a strong
// reference for reference-counted objects, by identity otherwise.
type target interface {
	id() ir.ObjectID
	release()
}

type strongTarget struct {
	ref StrongRef
	oid ir.ObjectID
}

func (t strongTarget) id() ir.ObjectID { return t.oid }
func (t strongTarget) release()        { t.ref.Release() }

type weakTarget struct {
	oid ir.ObjectID
}

func (t weakTarget) id() ir.ObjectID { return t.oid }
func (t weakTarget) release()        {}

// MethodOp calls a named method on its target.
type MethodOp struct {
	target target
	Method string
	Args   [MaxMethodArgs]ir.IRValue
}

// PropertyOp writes a named property on its target.
type PropertyOp struct {
	target   target
	Property string
	Value    ir.IRValue
}

// LambdaOp runs a captured callable. If it has an owner, the owner is marked
// edited after the call and the operation is skipped once the owner is gone.
type LambdaOp struct {
	owner target // nil when unowned
	Fn    func()
}

// ReferenceOp carries no work. It keeps its target alive for as long as the
// action is in the history.
type ReferenceOp struct {
	target target
}

// CompositeOp embeds a caller-supplied sub-action.
type CompositeOp struct {
	Composite Composite
}

func (*MethodOp) Kind() OpKind    { return OpMethod }
func (*PropertyOp) Kind() OpKind  { return OpProperty }
func (*LambdaOp) Kind() OpKind    { return OpLambda }
func (*ReferenceOp) Kind() OpKind { return OpReference }
func (*CompositeOp) Kind() OpKind { return OpComposite }

func (*MethodOp) operation()    {}
func (*PropertyOp) operation()  {}
func (*LambdaOp) operation()    {}
func (*ReferenceOp) operation() {}
func (*CompositeOp) operation() {}

// ArgSpan returns the arguments up to the first null slot.
func (op *MethodOp) ArgSpan() []ir.IRValue {
	n := 0
	for n < MaxMethodArgs && !ir.IsNull(op.Args[n]) {
		n++
	}
	return op.Args[:n]
}

// TargetID returns the identity of the object the operation addresses.
func (op *MethodOp) TargetID() ir.ObjectID { return op.target.id() }

// TargetID returns the identity of the object the operation addresses.
func (op *PropertyOp) TargetID() ir.ObjectID { return op.target.id() }

// TargetID returns the identity of the object the operation keeps alive.
func (op *ReferenceOp) TargetID() ir.ObjectID { return op.target.id() }

// OwnerID returns the owner identity, or false for an unowned lambda.
func (op *LambdaOp) OwnerID() (ir.ObjectID, bool) {
	if op.owner == nil {
		return 0, false
	}
	return op.owner.id(), true
}

// targetOf returns the hold an operation carries, or nil for composites and
// unowned lambdas.
func targetOf(op Operation) target {
	switch o := op.(type) {
	case *MethodOp:
		return o.target
	case *PropertyOp:
		return o.target
	case *LambdaOp:
		return o.owner
	case *ReferenceOp:
		return o.target
	default:
		return nil
	}
}

// release drops the strong reference an operation holds, if any.
func release(op Operation) {
	if t := targetOf(op); t != nil {
		t.release()
	}
}

// discard drops an operation whose action is leaving the history. A
// Reference is the only root of the object it names, so that object is
// collected: a strong hold is released (the table destroys the object on the
// last release) and a live identity is destroyed outright.
func discard(op Operation, objects ObjectTable) {
	ref, ok := op.(*ReferenceOp)
	if !ok {
		release(op)
		return
	}
	switch t := ref.target.(type) {
	case strongTarget:
		t.release()
	case weakTarget:
		if obj, alive := objects.Resolve(t.oid); alive {
			objects.Destroy(obj)
		}
	}
}

// OperationInfo is a read-only description of an operation.
type OperationInfo struct {
	Kind   OpKind
	Target ir.ObjectID // zero for composites and unowned lambdas
	Name   string      // method or property name
	Args   []ir.IRValue
	Strong bool
}

func describe(op Operation) OperationInfo {
	info := OperationInfo{Kind: op.Kind()}
	if t := targetOf(op); t != nil {
		info.Target = t.id()
		_, info.Strong = t.(strongTarget)
	}
	switch o := op.(type) {
	case *MethodOp:
		info.Name = o.Method
		info.Args = append([]ir.IRValue(nil), o.ArgSpan()...)
	case *PropertyOp:
		info.Name = o.Property
		info.Args = []ir.IRValue{o.Value}
	}
	return info
}
