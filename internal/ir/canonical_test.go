package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalCanonical_SortedAndCompact(t *testing.T) {
	got, err := MarshalCanonical(IRObject{
		"b": IRInt(2),
		"a": IRArray{IRBool(true), IRString("x")},
	})
	require.NoError(t, err)
	assert.Equal(t, `{"a":[true,"x"],"b":2}`, string(got))
}

func TestMarshalCanonical_PlainGoShapes(t *testing.T) {
	got, err := MarshalCanonical(map[string]any{
		"seq":  int64(3),
		"kind": "commit",
		"args": []any{1, "y"},
		"ok":   true,
		"ver":  uint64(9),
	})
	require.NoError(t, err)
	assert.Equal(t, `{"args":[1,"y"],"kind":"commit","ok":true,"seq":3,"ver":9}`, string(got))
}

func TestMarshalCanonical_Ref(t *testing.T) {
	got, err := MarshalCanonical(IRArray{IRRef(4)})
	require.NoError(t, err)
	assert.Equal(t, `[{"$ref":4}]`, string(got))
}

func TestMarshalCanonical_NoHTMLEscape(t *testing.T) {
	got, err := MarshalCanonical(IRString("<a & b>\u2028"))
	require.NoError(t, err)
	assert.Equal(t, "\"<a & b>\u2028\"", string(got))
}

func TestMarshalCanonical_ControlCharacters(t *testing.T) {
	got, err := MarshalCanonical("a\"b\\c\nd\x01")
	require.NoError(t, err)
	assert.Equal(t, `"a\"b\\c\nd\u0001"`, string(got))
}

func TestMarshalCanonical_NFC(t *testing.T) {
	// "e" + combining acute normalizes to U+00E9.
	got, err := MarshalCanonical("e\u0301")
	require.NoError(t, err)
	assert.Equal(t, "\"\u00e9\"", string(got))
}

func TestMarshalCanonical_Null(t *testing.T) {
	got, err := MarshalCanonical(IRObject{"parent": IRNull{}, "args": IRArray{IRInt(1), IRNull{}}})
	require.NoError(t, err)
	assert.Equal(t, `{"args":[1,null],"parent":null}`, string(got))
}

func TestMarshalCanonical_Rejects(t *testing.T) {
	_, err := MarshalCanonical(map[string]any{"f": 1.5})
	assert.ErrorContains(t, err, "floats")

	_, err = MarshalCanonical(struct{}{})
	assert.ErrorContains(t, err, "unsupported")
}
