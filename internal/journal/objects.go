package journal

import (
	"fmt"

	"github.com/roach88/rewind/internal/ir"
)

// Object is a live object as seen by the journal: something with a stable
// identity. Everything else about it is reached through the ObjectTable.
type Object interface {
	ID() ir.ObjectID
}

// StrongRef is one hold on a reference-counted object. Releasing the last
// hold destroys the object.
type StrongRef interface {
	Object() Object
	Release()
}

// ObjectTable resolves identities to live objects and performs the reflective
// calls dispatch needs. It is the only place the journal touches object state.
type ObjectTable interface {
	// Resolve returns the live object for id, or false if it no longer exists.
	Resolve(id ir.ObjectID) (Object, bool)

	// IsRefCounted reports whether obj is kept alive by strong references.
	IsRefCounted(obj Object) bool

	// Retain adds a hold on a reference-counted object.
	Retain(obj Object) StrongRef

	// Call invokes a named method. A failed call returns a *CallError.
	Call(obj Object, method string, args []ir.IRValue) error

	// Set writes a named property.
	Set(obj Object, property string, value ir.IRValue)

	// MarkEdited flags obj as modified since it was last saved.
	MarkEdited(obj Object)

	// Destroy frees an object that is not reference-counted.
	Destroy(obj Object)
}

// CallErrorKind enumerates the ways a method call can fail.
type CallErrorKind int

const (
	CallInvalidMethod CallErrorKind = iota + 1
	CallInvalidArgument
	CallTooManyArguments
	CallTooFewArguments
	CallInstanceIsNull
)

// String returns the kind name.
func (k CallErrorKind) String() string {
	switch k {
	case CallInvalidMethod:
		return "invalid_method"
	case CallInvalidArgument:
		return "invalid_argument"
	case CallTooManyArguments:
		return "too_many_arguments"
	case CallTooFewArguments:
		return "too_few_arguments"
	case CallInstanceIsNull:
		return "instance_is_null"
	default:
		return fmt.Sprintf("CallErrorKind(%d)", int(k))
	}
}

// CallError describes a failed method call.
type CallError struct {
	Kind CallErrorKind

	// Argument is the zero-based index of the offending argument for
	// CallInvalidArgument, or the expected argument count for the arity kinds.
	Argument int

	// Expected is the expected type name for CallInvalidArgument.
	Expected string

	// Got is the actual type name for CallInvalidArgument.
	Got string
}

// Error implements the error interface.
func (e *CallError) Error() string {
	switch e.Kind {
	case CallInvalidMethod:
		return "method not found"
	case CallInvalidArgument:
		return fmt.Sprintf("cannot convert argument %d from %s to %s", e.Argument+1, e.Got, e.Expected)
	case CallTooManyArguments:
		return fmt.Sprintf("too many arguments, expected %d", e.Argument)
	case CallTooFewArguments:
		return fmt.Sprintf("too few arguments, expected %d", e.Argument)
	case CallInstanceIsNull:
		return "instance is null"
	default:
		return e.Kind.String()
	}
}
