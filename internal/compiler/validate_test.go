package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rewind/internal/ir"
)

func validClass() ir.ClassSpec {
	return ir.ClassSpec{
		Name: "Node",
		Properties: []ir.PropertySpec{
			{Name: "rotation", Type: ir.TypeInt, Default: ir.IRInt(0)},
			{Name: "children", Type: ir.TypeArray},
			{Name: "visible", Type: ir.TypeBool},
			{Name: "label", Type: ir.TypeString},
			{Name: "parent", Type: ir.TypeRef, Default: ir.IRNull{}},
		},
		Methods: []ir.MethodSpec{
			{Name: "rotate", Args: []ir.NamedArg{{Name: "deg", Type: ir.TypeInt}}, Effect: ir.EffectAdd, Property: "rotation"},
			{Name: "add_child", Args: []ir.NamedArg{{Name: "c", Type: ir.TypeRef}}, Effect: ir.EffectAppend, Property: "children"},
			{Name: "remove_child", Args: []ir.NamedArg{{Name: "c", Type: ir.TypeRef}}, Effect: ir.EffectRemove, Property: "children"},
			{Name: "flip", Effect: ir.EffectToggle, Property: "visible"},
			{Name: "relabel", Args: []ir.NamedArg{{Name: "s", Type: ir.TypeString}}, Effect: ir.EffectSet, Property: "label"},
			{Name: "native", Args: []ir.NamedArg{{Name: "a", Type: ir.TypeAny}, {Name: "b", Type: ir.TypeInt}}, Effect: ir.EffectNoop},
		},
	}
}

func codes(errs []ValidationError) []string {
	out := make([]string, 0, len(errs))
	for _, e := range errs {
		out = append(out, e.Code)
	}
	return out
}

func TestValidateClassValid(t *testing.T) {
	spec := validClass()
	assert.Empty(t, Validate(&spec))
	assert.Empty(t, Validate(spec), "value form is accepted too")
}

func TestValidateClassErrors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *ir.ClassSpec)
		want   []string
	}{
		{"empty name", func(c *ir.ClassSpec) { c.Name = " " }, []string{ErrClassNameEmpty}},
		{"unknown effect", func(c *ir.ClassSpec) { c.Methods[0].Effect = "spin" }, []string{ErrUnknownEffect}},
		{"missing property", func(c *ir.ClassSpec) { c.Methods[0].Property = "" }, []string{ErrEffectProperty}},
		{"undeclared property", func(c *ir.ClassSpec) { c.Methods[0].Property = "angle" }, []string{ErrEffectProperty}},
		{"toggle with args", func(c *ir.ClassSpec) {
			c.Methods[3].Args = []ir.NamedArg{{Name: "x", Type: ir.TypeBool}}
		}, []string{ErrEffectArity}},
		{"add without args", func(c *ir.ClassSpec) { c.Methods[0].Args = nil }, []string{ErrEffectArity}},
		{"add to array", func(c *ir.ClassSpec) { c.Methods[0].Property = "children" }, []string{ErrEffectTypeMismatch}},
		{"set with wrong arg", func(c *ir.ClassSpec) { c.Methods[4].Args[0].Type = ir.TypeInt }, []string{ErrEffectTypeMismatch}},
		{"duplicate property", func(c *ir.ClassSpec) {
			c.Properties = append(c.Properties, ir.PropertySpec{Name: "label", Type: ir.TypeString})
		}, []string{ErrDuplicateName}},
		{"duplicate method", func(c *ir.ClassSpec) { c.Methods = append(c.Methods, c.Methods[0]) }, []string{ErrDuplicateName}},
		{"duplicate arg", func(c *ir.ClassSpec) { c.Methods[5].Args[1].Name = "a" }, []string{ErrDuplicateName}},
		{"invalid type", func(c *ir.ClassSpec) { c.Properties[4].Type = "reference" }, []string{ErrInvalidFieldType}},
		{"float type", func(c *ir.ClassSpec) { c.Methods[5].Args[1].Type = "float64" }, []string{ErrFloatTypeForbidden}},
		{"default mismatch", func(c *ir.ClassSpec) { c.Properties[0].Default = ir.IRString("0") }, []string{ErrDefaultMismatch}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := validClass()
			tt.mutate(&spec)
			assert.Equal(t, tt.want, codes(Validate(&spec)))
		})
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	spec := validClass()
	spec.Methods[0].Effect = "spin"
	spec.Methods[3].Property = "missing"
	spec.Properties[4].Type = "float"

	errs := Validate(&spec)
	require.Len(t, errs, 3)
	assert.ElementsMatch(t, []string{ErrUnknownEffect, ErrEffectProperty, ErrFloatTypeForbidden}, codes(errs))
}

func TestValidateClassSet(t *testing.T) {
	a, b := validClass(), validClass()
	errs := Validate([]ir.ClassSpec{a, b})
	require.Len(t, errs, 1)
	assert.Equal(t, ErrDuplicateName, errs[0].Code)
	assert.Equal(t, "class[1].name", errs[0].Field)
}

func TestValidateUnsupportedType(t *testing.T) {
	errs := Validate("nope")
	require.Len(t, errs, 1)
	assert.Equal(t, ErrUnsupportedIRType, errs[0].Code)
}

func TestValidationErrorFormat(t *testing.T) {
	e := ValidationError{Field: "class.Node.method[0].effect", Message: "bad", Code: ErrUnknownEffect}
	assert.Equal(t, "[E101] class.Node.method[0].effect: bad", e.Error())
	e.Line = 4
	assert.Equal(t, "[E101] line 4: class.Node.method[0].effect: bad", e.Error())
}
