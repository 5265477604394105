package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/rewind/internal/ir"
)

// CompileClass parses a CUE value into a ClassSpec.
//
// The CUE value should be the class struct itself, e.g.:
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`class: Node: { property: { x: int | *0 } }`)
//	spec, err := CompileClass(v.LookupPath(cue.ParsePath("class.Node")))
//
// Property and argument types come from the CUE kind (int, string, bool,
// list, struct) or from a concrete type-name string such as "ref" or "any".
// Any other concrete value is both the type and the default.
func CompileClass(v cue.Value) (*ir.ClassSpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	spec := &ir.ClassSpec{
		Properties: []ir.PropertySpec{},
		Methods:    []ir.MethodSpec{},
	}

	labels := v.Path().Selectors()
	if len(labels) > 0 {
		spec.Name = labels[len(labels)-1].String()
	}

	if rc := v.LookupPath(cue.ParsePath("refcounted")); rc.Exists() {
		b, err := rc.Bool()
		if err != nil {
			return nil, &CompileError{
				Field:   "refcounted",
				Message: "refcounted must be a concrete bool",
				Pos:     rc.Pos(),
			}
		}
		spec.RefCounted = b
	}

	var err error
	spec.Properties, err = parseProperties(v)
	if err != nil {
		return nil, err
	}

	spec.Methods, err = parseMethods(v)
	if err != nil {
		return nil, err
	}

	return spec, nil
}

// CompileClasses compiles every entry under the top-level "class" struct, in
// declaration order. It stops at the first error.
func CompileClasses(root cue.Value) ([]ir.ClassSpec, error) {
	classesVal := root.LookupPath(cue.ParsePath("class"))
	if !classesVal.Exists() {
		return nil, nil
	}
	iter, err := classesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var classes []ir.ClassSpec
	for iter.Next() {
		spec, err := CompileClass(iter.Value())
		if err != nil {
			return classes, err
		}
		classes = append(classes, *spec)
	}
	return classes, nil
}

func parseProperties(v cue.Value) ([]ir.PropertySpec, error) {
	props := []ir.PropertySpec{}

	propsVal := v.LookupPath(cue.ParsePath("property"))
	if !propsVal.Exists() {
		return props, nil
	}

	iter, err := propsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		name := iter.Label()
		fieldVal := iter.Value()

		typ, err := extractTypeName(fieldVal)
		if err != nil {
			return nil, err
		}
		def, err := extractDefault(fieldVal)
		if err != nil {
			return nil, err
		}
		props = append(props, ir.PropertySpec{Name: name, Type: typ, Default: def})
	}
	return props, nil
}

func parseMethods(v cue.Value) ([]ir.MethodSpec, error) {
	methods := []ir.MethodSpec{}

	methodsVal := v.LookupPath(cue.ParsePath("method"))
	if !methodsVal.Exists() {
		return methods, nil
	}

	iter, err := methodsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}
	for iter.Next() {
		m := ir.MethodSpec{
			Name:   iter.Label(),
			Args:   []ir.NamedArg{},
			Effect: ir.EffectNoop,
		}
		methodVal := iter.Value()

		// Args keep declaration order; CUE field iteration preserves it.
		argsVal := methodVal.LookupPath(cue.ParsePath("args"))
		if argsVal.Exists() {
			argsIter, err := argsVal.Fields()
			if err != nil {
				return nil, formatCUEError(err)
			}
			for argsIter.Next() {
				argType, err := extractTypeName(argsIter.Value())
				if err != nil {
					return nil, err
				}
				m.Args = append(m.Args, ir.NamedArg{Name: argsIter.Label(), Type: argType})
			}
		}

		if effectVal := methodVal.LookupPath(cue.ParsePath("effect")); effectVal.Exists() {
			effect, err := effectVal.String()
			if err != nil {
				return nil, &CompileError{
					Field:   "effect",
					Message: fmt.Sprintf("method %q: effect must be a string", m.Name),
					Pos:     effectVal.Pos(),
				}
			}
			m.Effect = ir.Effect(effect)
		}

		if propVal := methodVal.LookupPath(cue.ParsePath("property")); propVal.Exists() {
			prop, err := propVal.String()
			if err != nil {
				return nil, &CompileError{
					Field:   "property",
					Message: fmt.Sprintf("method %q: property must be a string", m.Name),
					Pos:     propVal.Pos(),
				}
			}
			m.Property = prop
		}

		methods = append(methods, m)
	}
	return methods, nil
}

// extractTypeName converts a CUE type to an IR type string.
// Floats are forbidden.
func extractTypeName(v cue.Value) (string, error) {
	if name, ok := typeNameLiteral(v); ok {
		return name, nil
	}

	switch v.IncompleteKind() {
	case cue.StringKind:
		return ir.TypeString, nil
	case cue.IntKind:
		return ir.TypeInt, nil
	case cue.BoolKind:
		return ir.TypeBool, nil
	case cue.ListKind:
		return ir.TypeArray, nil
	case cue.StructKind:
		return ir.TypeObject, nil
	case cue.FloatKind, cue.NumberKind:
		return "", &CompileError{
			Field:   "type",
			Message: "float types are forbidden - use int instead",
			Pos:     v.Pos(),
		}
	case cue.NullKind:
		return "", &CompileError{
			Field:   "type",
			Message: `null needs a type name, e.g. "ref"`,
			Pos:     v.Pos(),
		}
	default:
		return "", &CompileError{
			Field:   "type",
			Message: fmt.Sprintf("unsupported type kind: %v", v.IncompleteKind()),
			Pos:     v.Pos(),
		}
	}
}

// typeNameLiteral reports whether v is a concrete string naming an IR type.
func typeNameLiteral(v cue.Value) (string, bool) {
	if v.Kind() != cue.StringKind {
		return "", false
	}
	s, err := v.String()
	if err != nil || !ir.ValidTypes[s] {
		return "", false
	}
	return s, true
}

// extractDefault returns the CUE default of v, or v itself when it is fully
// concrete. Type-name literals and open types have no default.
func extractDefault(v cue.Value) (ir.IRValue, error) {
	if _, ok := typeNameLiteral(v); ok {
		return nil, nil
	}
	if def, ok := v.Default(); ok {
		return toIR(def)
	}
	if v.IsConcrete() && v.Validate(cue.Concrete(true)) == nil {
		return toIR(v)
	}
	return nil, nil
}

// toIR converts a concrete CUE value to an IRValue.
func toIR(v cue.Value) (ir.IRValue, error) {
	switch v.Kind() {
	case cue.NullKind:
		return ir.IRNull{}, nil

	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.IRBool(b), nil

	case cue.IntKind:
		n, err := v.Int64()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.IRInt(n), nil

	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return nil, formatCUEError(err)
		}
		return ir.IRString(s), nil

	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		arr := ir.IRArray{}
		for iter.Next() {
			elem, err := toIR(iter.Value())
			if err != nil {
				return nil, err
			}
			arr = append(arr, elem)
		}
		return arr, nil

	case cue.StructKind:
		iter, err := v.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		obj := ir.IRObject{}
		for iter.Next() {
			elem, err := toIR(iter.Value())
			if err != nil {
				return nil, err
			}
			obj[iter.Label()] = elem
		}
		return obj, nil

	case cue.FloatKind, cue.NumberKind:
		return nil, &CompileError{
			Field:   "type",
			Message: "float values are forbidden - use int instead",
			Pos:     v.Pos(),
		}

	default:
		return nil, &CompileError{
			Field:   "default",
			Message: fmt.Sprintf("unsupported default of kind %v", v.Kind()),
			Pos:     v.Pos(),
		}
	}
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// Return first error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
