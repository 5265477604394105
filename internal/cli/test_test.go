package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rewind/internal/harness"
)

func TestTestCommandMissingArgs(t *testing.T) {
	_, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg")
}

func TestTestCommandNonExistentScenariosDir(t *testing.T) {
	_, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}), "/nonexistent/scenarios")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "scenarios directory not found")
}

func TestTestCommandEmptyDir(t *testing.T) {
	out, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}), t.TempDir())
	require.NoError(t, err)
	assert.Contains(t, out, "No scenarios found.")
}

func TestTestCommandInvalidFilter(t *testing.T) {
	_, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}), "--filter", "[", harnessScenarios)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestTestCommandHarnessScenarios(t *testing.T) {
	out, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}),
		"--parallel", "4",
		"--golden-dir", "../harness/testdata/golden",
		harnessScenarios)
	require.NoError(t, err, out)
	assert.Contains(t, out, "✓ property_toggle")
	assert.Contains(t, out, "✓ merge_ends")
	assert.Contains(t, out, "0 failed")
	assert.Contains(t, out, "✓ All scenarios passed")
}

func TestTestCommandFilterJSON(t *testing.T) {
	out, err := execute(t, NewTestCommand(&RootOptions{Format: "json"}), "--filter", "merge_*.yaml", harnessScenarios)
	require.NoError(t, err)

	var resp struct {
		Status string              `json:"status"`
		Data   harness.SuiteResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 3, resp.Data.Total)
	assert.Equal(t, 3, resp.Data.Passed)
	for _, o := range resp.Data.Outcomes {
		assert.Contains(t, o.Name, "merge_")
	}
}

func TestTestCommandUpdateThenCompare(t *testing.T) {
	goldenDir := filepath.Join(t.TempDir(), "golden")
	args := []string{"--filter", "property_toggle.yaml", "--golden-dir", goldenDir, harnessScenarios}

	out, err := execute(t, NewTestCommand(&RootOptions{Format: "text"}), append([]string{"--update"}, args...)...)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ property_toggle (golden updated)")

	written, err := os.ReadFile(harness.GoldenPath(goldenDir, "property_toggle"))
	require.NoError(t, err)
	committed, err := os.ReadFile("../harness/testdata/golden/property_toggle.golden")
	require.NoError(t, err)
	assert.Equal(t, string(committed), string(written))

	require.NoError(t, os.WriteFile(harness.GoldenPath(goldenDir, "property_toggle"), []byte("{}"), 0644))
	out, err = execute(t, NewTestCommand(&RootOptions{Format: "text"}), args...)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ property_toggle")
	assert.Contains(t, out, "trace differs from golden")
}

func TestTestCommandFailureJSON(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.yaml"), []byte("name: broken\n"), 0644))

	out, err := execute(t, NewTestCommand(&RootOptions{Format: "json"}), dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeTestFailed, resp.Error.Code)
}
