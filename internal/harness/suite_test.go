package harness

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindScenarios(t *testing.T) {
	all, err := FindScenarios("testdata/scenarios", "")
	require.NoError(t, err)
	assert.Contains(t, all, filepath.Join("testdata", "scenarios", "property_toggle.yaml"))
	assert.IsIncreasing(t, all)

	merges, err := FindScenarios("testdata/scenarios", "merge_*.yaml")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join("testdata", "scenarios", "merge_all_window.yaml"),
		filepath.Join("testdata", "scenarios", "merge_ends.yaml"),
		filepath.Join("testdata", "scenarios", "merge_window_expired.yaml"),
	}, merges)

	_, err = FindScenarios("testdata/scenarios", "[")
	assert.ErrorContains(t, err, "invalid filter pattern")
}

func TestFindScenarios_Nested(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "merge", "deep"), 0755))
	for _, p := range []string{"top.yaml", "merge/a.yml", "merge/deep/b.yaml", "merge/notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, p), []byte("x"), 0644))
	}

	got, err := FindScenarios(dir, "merge/**")
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "merge", "a.yml"),
		filepath.Join(dir, "merge", "deep", "b.yaml"),
	}, got)
}

func TestRunSuite_Testdata(t *testing.T) {
	paths, err := FindScenarios("testdata/scenarios", "")
	require.NoError(t, err)

	result, err := RunSuite(context.Background(), paths, SuiteOptions{Parallel: 4})
	require.NoError(t, err)
	assert.Equal(t, len(paths), result.Total)
	assert.Equal(t, len(paths), result.Passed, "failures: %+v", result.Failures())
	assert.Empty(t, result.Failures())
	for i, o := range result.Outcomes {
		assert.Equal(t, paths[i], o.Path)
		assert.NotZero(t, o.Events)
	}
}

func TestRunSuite_Golden(t *testing.T) {
	paths := []string{
		"testdata/scenarios/property_toggle.yaml",
		"testdata/scenarios/nested_open.yaml",
	}

	result, err := RunSuite(context.Background(), paths, SuiteOptions{GoldenDir: GoldenDir})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Passed, "failures: %+v", result.Failures())

	for _, o := range result.Outcomes {
		assert.Equal(t, GoldenMatched, o.Golden)
	}

	dir := t.TempDir()
	result, err = RunSuite(context.Background(), paths, SuiteOptions{GoldenDir: dir})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Passed, "missing golden files fall back to assertions")
	assert.Equal(t, GoldenMissing, result.Outcomes[0].Golden)

	result, err = RunSuite(context.Background(), paths, SuiteOptions{GoldenDir: dir, Update: true})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Passed)
	assert.Equal(t, GoldenUpdated, result.Outcomes[1].Golden)
	assert.FileExists(t, GoldenPath(dir, "property_toggle"))

	result, err = RunSuite(context.Background(), paths, SuiteOptions{GoldenDir: dir})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Passed)

	require.NoError(t, WriteGolden(dir, "nested_open", []byte("{}")))
	result, err = RunSuite(context.Background(), paths, SuiteOptions{GoldenDir: dir})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, GoldenMismatch, result.Outcomes[1].Golden)
	assert.Contains(t, result.Outcomes[1].Errors[0], "trace differs from golden")
}

func TestRunSuite_Failures(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("name: [\n"), 0644))

	result, err := RunSuite(context.Background(), []string{bad, "testdata/scenarios/misuse.yaml"}, SuiteOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, result.Passed)
	require.Len(t, result.Failures(), 1)
	assert.Contains(t, result.Failures()[0].Errors[0], "failed to load scenario")
	assert.Equal(t, "2 scenarios, 1 passed, 1 failed", result.Summary())
}

func TestRunSuite_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := RunSuite(ctx, []string{"testdata/scenarios/misuse.yaml"}, SuiteOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}
