package compiler

import (
	"fmt"
	"strings"

	"github.com/roach88/rewind/internal/ir"
)

// Validation error codes (E100-E199)
const (
	// General validation errors (E100)
	ErrUnsupportedIRType = "E100" // unsupported IR type for validation

	// ClassSpec errors (E101-E109)
	ErrUnknownEffect      = "E101" // effect is not one of the known effects
	ErrEffectProperty     = "E102" // effect property missing or undeclared
	ErrEffectArity        = "E103" // effect takes a different number of args
	ErrInvalidFieldType   = "E104" // invalid type string
	ErrDuplicateName      = "E105" // duplicate class/property/method/arg name
	ErrFloatTypeForbidden = "E106" // float types not allowed
	ErrEffectTypeMismatch = "E107" // effect, arg and property types disagree
	ErrDefaultMismatch    = "E108" // default does not conform to the property type
	ErrClassNameEmpty     = "E109" // class name is required
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate validates compiled IR against schema rules.
// Returns all errors found (does not fail-fast).
// Supports a single ClassSpec or a set of them; a set is also checked for
// duplicate class names.
func Validate(v any) []ValidationError {
	switch spec := v.(type) {
	case *ir.ClassSpec:
		return validateClassSpec(spec)
	case ir.ClassSpec:
		return validateClassSpec(&spec)
	case []ir.ClassSpec:
		return validateClassSet(spec)
	default:
		return []ValidationError{{
			Field:   "type",
			Message: fmt.Sprintf("unsupported IR type: %T", v),
			Code:    ErrUnsupportedIRType,
		}}
	}
}

func validateClassSet(classes []ir.ClassSpec) []ValidationError {
	var errs []ValidationError
	seen := make(map[string]bool)
	for i := range classes {
		c := &classes[i]
		if seen[c.Name] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("class[%d].name", i),
				Message: fmt.Sprintf("duplicate class name: %q", c.Name),
				Code:    ErrDuplicateName,
			})
		}
		seen[c.Name] = true
		errs = append(errs, validateClassSpec(c)...)
	}
	return errs
}

// validateClassSpec validates a class specification.
func validateClassSpec(spec *ir.ClassSpec) []ValidationError {
	var errs []ValidationError
	prefix := "class." + spec.Name

	// E109: name is required
	if strings.TrimSpace(spec.Name) == "" {
		prefix = "class"
		errs = append(errs, ValidationError{
			Field:   "class.name",
			Message: "class name is required and must be non-empty",
			Code:    ErrClassNameEmpty,
		})
	}

	propNames := make(map[string]bool)
	for i, p := range spec.Properties {
		field := fmt.Sprintf("%s.property[%d]", prefix, i)

		// E105: duplicate property name
		if propNames[p.Name] {
			errs = append(errs, ValidationError{
				Field:   field + ".name",
				Message: fmt.Sprintf("duplicate property name: %q", p.Name),
				Code:    ErrDuplicateName,
			})
		}
		propNames[p.Name] = true

		typeErrs := validateFieldType(p.Type, field+".type", p.Name)
		errs = append(errs, typeErrs...)

		// E108: default must fit the slot
		if p.Default != nil && len(typeErrs) == 0 && !slotAccepts(p.Type, p.Default) {
			errs = append(errs, ValidationError{
				Field:   field + ".default",
				Message: fmt.Sprintf("default for %q is %s, expected %s", p.Name, ir.TypeName(p.Default), p.Type),
				Code:    ErrDefaultMismatch,
			})
		}
	}

	methodNames := make(map[string]bool)
	for i, m := range spec.Methods {
		field := fmt.Sprintf("%s.method[%d]", prefix, i)

		// E105: duplicate method name
		if methodNames[m.Name] {
			errs = append(errs, ValidationError{
				Field:   field + ".name",
				Message: fmt.Sprintf("duplicate method name: %q", m.Name),
				Code:    ErrDuplicateName,
			})
		}
		methodNames[m.Name] = true

		argNames := make(map[string]bool)
		for j, arg := range m.Args {
			argField := fmt.Sprintf("%s.args[%d]", field, j)
			if argNames[arg.Name] {
				errs = append(errs, ValidationError{
					Field:   argField + ".name",
					Message: fmt.Sprintf("duplicate argument name: %q", arg.Name),
					Code:    ErrDuplicateName,
				})
			}
			argNames[arg.Name] = true
			errs = append(errs, validateFieldType(arg.Type, argField+".type", arg.Name)...)
		}

		errs = append(errs, validateEffect(spec, m, field)...)
	}

	return errs
}

// effectArity is the number of arguments each effect consumes. Noop takes any
// number so natives can declare their arity on it.
var effectArity = map[ir.Effect]int{
	ir.EffectSet:    1,
	ir.EffectAdd:    1,
	ir.EffectAppend: 1,
	ir.EffectRemove: 1,
	ir.EffectToggle: 0,
}

// effectPropertyType is the property type an effect requires; empty means any.
var effectPropertyType = map[ir.Effect]string{
	ir.EffectAdd:    ir.TypeInt,
	ir.EffectAppend: ir.TypeArray,
	ir.EffectRemove: ir.TypeArray,
	ir.EffectToggle: ir.TypeBool,
}

func validateEffect(spec *ir.ClassSpec, m ir.MethodSpec, field string) []ValidationError {
	var errs []ValidationError

	// E101: known effect
	if !ir.ValidEffects[m.Effect] {
		return []ValidationError{{
			Field:   field + ".effect",
			Message: fmt.Sprintf("unknown effect %q for method %q", m.Effect, m.Name),
			Code:    ErrUnknownEffect,
		}}
	}
	if m.Effect == ir.EffectNoop {
		return nil
	}

	// E103: arity
	if want := effectArity[m.Effect]; len(m.Args) != want {
		errs = append(errs, ValidationError{
			Field:   field + ".args",
			Message: fmt.Sprintf("effect %q takes %d argument(s), method %q declares %d", m.Effect, want, m.Name, len(m.Args)),
			Code:    ErrEffectArity,
		})
	}

	// E102: target property
	if m.Property == "" {
		errs = append(errs, ValidationError{
			Field:   field + ".property",
			Message: fmt.Sprintf("effect %q on method %q needs a property", m.Effect, m.Name),
			Code:    ErrEffectProperty,
		})
		return errs
	}
	prop, ok := spec.Property(m.Property)
	if !ok {
		errs = append(errs, ValidationError{
			Field:   field + ".property",
			Message: fmt.Sprintf("method %q targets undeclared property %q", m.Name, m.Property),
			Code:    ErrEffectProperty,
		})
		return errs
	}

	// E107: types line up
	if want, ok := effectPropertyType[m.Effect]; ok && prop.Type != want && prop.Type != ir.TypeAny {
		errs = append(errs, ValidationError{
			Field:   field + ".property",
			Message: fmt.Sprintf("effect %q needs a %s property, %q is %s", m.Effect, want, prop.Name, prop.Type),
			Code:    ErrEffectTypeMismatch,
		})
	}
	if len(m.Args) == 1 {
		argType := m.Args[0].Type
		var want string
		switch m.Effect {
		case ir.EffectSet:
			want = prop.Type
		case ir.EffectAdd:
			want = ir.TypeInt
		}
		if want != "" && argType != want && argType != ir.TypeAny && want != ir.TypeAny {
			errs = append(errs, ValidationError{
				Field:   field + ".args[0].type",
				Message: fmt.Sprintf("effect %q on %q needs a %s argument, got %s", m.Effect, prop.Name, want, argType),
				Code:    ErrEffectTypeMismatch,
			})
		}
	}

	return errs
}

// validateFieldType validates a type string, returning errors for invalid types and floats.
func validateFieldType(fieldType, fieldPath, fieldName string) []ValidationError {
	// E106: float forbidden
	if isFloatType(fieldType) {
		return []ValidationError{{
			Field:   fieldPath,
			Message: fmt.Sprintf("float type forbidden for field %q, use int instead", fieldName),
			Code:    ErrFloatTypeForbidden,
		}}
	}

	// E104: check for valid type
	if !ir.ValidTypes[fieldType] {
		return []ValidationError{{
			Field:   fieldPath,
			Message: fmt.Sprintf("invalid type %q for field %q", fieldType, fieldName),
			Code:    ErrInvalidFieldType,
		}}
	}

	return nil
}

// slotAccepts mirrors the object table: ref slots are nullable.
func slotAccepts(typ string, v ir.IRValue) bool {
	if typ == ir.TypeRef && ir.IsNull(v) {
		return true
	}
	return ir.Conforms(v, typ)
}

// isFloatType checks if a type string represents a float type.
func isFloatType(t string) bool {
	floatTypes := map[string]bool{
		"float":   true,
		"float32": true,
		"float64": true,
		"number":  true,
		"double":  true,
	}
	return floatTypes[t]
}
