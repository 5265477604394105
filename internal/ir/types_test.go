package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMergeMode(t *testing.T) {
	for _, m := range []MergeMode{MergeDisable, MergeEnds, MergeAll} {
		got, err := ParseMergeMode(m.String())
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}

	got, err := ParseMergeMode("")
	require.NoError(t, err)
	assert.Equal(t, MergeDisable, got)

	_, err = ParseMergeMode("sometimes")
	assert.ErrorContains(t, err, "invalid merge mode")
}

func TestClassSpec_Lookup(t *testing.T) {
	c := ClassSpec{
		Name:       "Node",
		Properties: []PropertySpec{{Name: "x", Type: TypeInt}},
		Methods:    []MethodSpec{{Name: "nudge", Effect: EffectAdd, Property: "x"}},
	}

	p, ok := c.Property("x")
	assert.True(t, ok)
	assert.Equal(t, TypeInt, p.Type)

	_, ok = c.Property("y")
	assert.False(t, ok)

	m, ok := c.Method("nudge")
	assert.True(t, ok)
	assert.Equal(t, EffectAdd, m.Effect)
}

func TestObjectID_String(t *testing.T) {
	assert.Equal(t, "#12", ObjectID(12).String())
}
