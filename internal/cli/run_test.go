package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rewind/internal/store"
)

func TestRunScenario(t *testing.T) {
	out, err := execute(t, NewRunCommand(&RootOptions{Format: "text"}), toggleScenario)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ property_toggle (9 events)")
	assert.NotContains(t, out, "Recorded session")
}

func TestRunScenarioJSON(t *testing.T) {
	out, err := execute(t, NewRunCommand(&RootOptions{Format: "json"}), toggleScenario)
	require.NoError(t, err)

	var resp struct {
		Status    string    `json:"status"`
		Data      RunResult `json:"data"`
		SessionID string    `json:"session_id"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "test-session-toggle", resp.SessionID)
	assert.True(t, resp.Data.Pass)
	assert.Equal(t, 9, resp.Data.Events)
}

func TestRunMetrics(t *testing.T) {
	out, err := execute(t, NewRunCommand(&RootOptions{Format: "text"}), "--metrics", toggleScenario)
	require.NoError(t, err)
	assert.Contains(t, out, "rewind_actions_committed_total 1")
	assert.Contains(t, out, "rewind_undo_total 1")
	assert.Contains(t, out, "rewind_redo_total 1")
	assert.Contains(t, out, "rewind_version 1")
}

func TestRunRecordsToDatabase(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "rewind.db")

	out, err := execute(t, NewRunCommand(&RootOptions{Format: "text"}), "--db", dbPath, "--session", "cli-session", toggleScenario)
	require.NoError(t, err)
	assert.Contains(t, out, "Recorded session: cli-session")

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	sess, err := st.ReadSession(context.Background(), "cli-session")
	require.NoError(t, err)
	assert.Equal(t, "property_toggle", sess.Scenario)
	n, err := st.CountSessionEvents(context.Background(), "cli-session")
	require.NoError(t, err)
	assert.Equal(t, 9, n)
}

func TestRunNewSessionPerRun(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "rewind.db")
	opts := &RunOptions{
		RootOptions:      &RootOptions{Format: "text"},
		Database:         dbPath,
		SessionGenerator: &sequenceSessions{prefix: "run-"},
	}

	for range 2 {
		cmd := &cobra.Command{}
		cmd.SetOut(io.Discard)
		cmd.SetErr(io.Discard)
		require.NoError(t, runScenario(opts, toggleScenario, cmd))
	}

	st, err := store.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	sessions, err := st.ListSessions(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "run-1", sessions[0].ID)
	assert.Equal(t, "run-2", sessions[1].ID)
}

func TestRunFailingScenario(t *testing.T) {
	dir := t.TempDir()
	classes, err := filepath.Abs("../harness/testdata/classes/node.cue")
	require.NoError(t, err)
	scenario := `name: failing
description: "expects the wrong version"
classes: [` + classes + `]
objects:
  - { name: a, class: Node }
steps:
  - open: { name: Move }
  - do_property: { object: a, property: x, value: 1 }
  - commit: {}
  - expect: { version: 2 }
`
	path := filepath.Join(dir, "failing.yaml")
	require.NoError(t, os.WriteFile(path, []byte(scenario), 0644))

	out, err := execute(t, NewRunCommand(&RootOptions{Format: "text"}), path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ failing")
	assert.Contains(t, out, "version: expected 2, got 1")
}

func TestRunMissingScenario(t *testing.T) {
	_, err := execute(t, NewRunCommand(&RootOptions{Format: "text"}), "/nonexistent/scenario.yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "failed to load scenario")
}

func TestRunBadDatabasePath(t *testing.T) {
	_, err := execute(t, NewRunCommand(&RootOptions{Format: "text"}), "--db", "/nonexistent/dir/rewind.db", toggleScenario)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open database")
}

// sequenceSessions names sessions prefix1, prefix2, ...
type sequenceSessions struct {
	prefix string
	n      int
}

func (g *sequenceSessions) Generate() string {
	g.n++
	return fmt.Sprintf("%s%d", g.prefix, g.n)
}
