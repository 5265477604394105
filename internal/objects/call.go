package objects

import (
	"github.com/roach88/rewind/internal/ir"
	"github.com/roach88/rewind/internal/journal"
)

// Call implements journal.ObjectTable. Natives win over declared effects.
// Arguments are checked against the declared method spec when there is one.
func (t *Table) Call(obj journal.Object, method string, args []ir.IRValue) error {
	t.mu.RLock()
	e, alive := t.live[obj.ID()]
	var (
		class  *ir.ClassSpec
		native NativeMethod
	)
	if alive {
		class = e.obj.class
		native = t.natives[class.Name][method]
	}
	t.mu.RUnlock()

	if !alive {
		return &journal.CallError{Kind: journal.CallInstanceIsNull}
	}

	spec, declared := class.Method(method)
	if !declared && native == nil {
		return &journal.CallError{Kind: journal.CallInvalidMethod}
	}
	if declared {
		if err := checkArgs(spec, args); err != nil {
			return err
		}
	}
	if native != nil {
		return native(t, e.obj, args)
	}
	return t.applyEffect(e.obj, spec, args)
}

func checkArgs(spec ir.MethodSpec, args []ir.IRValue) error {
	want := len(spec.Args)
	if len(args) < want {
		return &journal.CallError{Kind: journal.CallTooFewArguments, Argument: want}
	}
	if len(args) > want {
		return &journal.CallError{Kind: journal.CallTooManyArguments, Argument: want}
	}
	for i, a := range spec.Args {
		if !slotAccepts(a.Type, args[i]) {
			return &journal.CallError{
				Kind:     journal.CallInvalidArgument,
				Argument: i,
				Expected: a.Type,
				Got:      ir.TypeName(args[i]),
			}
		}
	}
	return nil
}

// applyEffect runs a declared effect. The class compiler guarantees effect
// arity and the target property; a missing property reads as its zero value.
func (t *Table) applyEffect(obj *Instance, spec ir.MethodSpec, args []ir.IRValue) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.live[obj.id]
	if !ok {
		return &journal.CallError{Kind: journal.CallInstanceIsNull}
	}
	cur := e.props[spec.Property]

	switch spec.Effect {
	case ir.EffectNoop:
		return nil

	case ir.EffectSet:
		e.props[spec.Property] = ir.Clone(args[0])

	case ir.EffectAdd:
		n, _ := cur.(ir.IRInt)
		delta, ok := args[0].(ir.IRInt)
		if !ok {
			return &journal.CallError{Kind: journal.CallInvalidArgument, Expected: ir.TypeInt, Got: ir.TypeName(args[0])}
		}
		e.props[spec.Property] = n + delta

	case ir.EffectAppend:
		arr, _ := cur.(ir.IRArray)
		next := make(ir.IRArray, len(arr), len(arr)+1)
		copy(next, arr)
		e.props[spec.Property] = append(next, ir.Clone(args[0]))

	case ir.EffectRemove:
		arr, _ := cur.(ir.IRArray)
		next := make(ir.IRArray, 0, len(arr))
		removed := false
		for _, v := range arr {
			if !removed && ir.Equal(v, args[0]) {
				removed = true
				continue
			}
			next = append(next, v)
		}
		e.props[spec.Property] = next

	case ir.EffectToggle:
		b, _ := cur.(ir.IRBool)
		e.props[spec.Property] = !b

	default:
		return &journal.CallError{Kind: journal.CallInvalidMethod}
	}
	return nil
}
