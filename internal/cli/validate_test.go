package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rewind/internal/compiler"
)

const invalidClasses = `
package classes

class: Node: {
	property: {
		rotation: int | *0
		label:    string | *""
	}
	method: {
		rotate: {
			args: degrees: int
			effect:   "add"
			property: "angle"
		}
		rename: {
			args: to: int
			effect:   "set"
			property: "label"
		}
	}
}
`

func TestValidateValidClasses(t *testing.T) {
	dir := writeClassesDir(t, validClasses)

	out, err := execute(t, NewValidateCommand(&RootOptions{Format: "text"}), dir)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ All 2 class(es) valid")
}

func TestValidateValidClassesJSON(t *testing.T) {
	dir := writeClassesDir(t, validClasses)

	out, err := execute(t, NewValidateCommand(&RootOptions{Format: "json"}), dir)
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	assert.Equal(t, 2, resp.Data.Classes)
}

func TestValidateNonExistentDirectory(t *testing.T) {
	out, err := execute(t, NewValidateCommand(&RootOptions{Format: "text"}), "/nonexistent/directory/path")
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrCodeNotFound)
	assert.Contains(t, out, "not found")
}

func TestValidateEmptyDirectory(t *testing.T) {
	out, err := execute(t, NewValidateCommand(&RootOptions{Format: "text"}), t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrCodeNoFiles)
	assert.Contains(t, out, "no CUE files found")
}

func TestValidateReportsAllErrors(t *testing.T) {
	dir := writeClassesDir(t, invalidClasses)

	out, err := execute(t, NewValidateCommand(&RootOptions{Format: "text"}), dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "validation failed with 2 error(s)")
	assert.Contains(t, out, "✗ Validation failed")
	assert.Contains(t, out, compiler.ErrEffectProperty)
	assert.Contains(t, out, compiler.ErrEffectTypeMismatch)
}

func TestValidateReportsAllErrorsJSON(t *testing.T) {
	dir := writeClassesDir(t, invalidClasses)

	out, err := execute(t, NewValidateCommand(&RootOptions{Format: "json"}), dir)
	require.Error(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
		Error  *CLIError        `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.False(t, resp.Data.Valid)
	assert.Len(t, resp.Data.Errors, 2)
	require.NotNil(t, resp.Error)
	assert.Equal(t, resp.Data.Errors[0].Code, resp.Error.Code)
}

func TestValidateCompileErrorHasLine(t *testing.T) {
	dir := writeClassesDir(t, "package classes\n\nclass: Node: property: ratio: float\n")

	results, errs := LoadClasses(dir, LoadModeCollectAll)
	require.NotNil(t, results)
	verrs := ValidateClasses(results, errs)
	require.Len(t, verrs, 1)
	assert.Equal(t, compiler.ErrInvalidFieldType, verrs[0].Code)
	assert.Equal(t, 3, verrs[0].Line)
}
