package harness

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/rewind/internal/ir"
)

// GoldenDir is where golden traces live, relative to the test package.
const GoldenDir = "testdata/golden"

// goldenSuffix is the golden file extension.
const goldenSuffix = ".golden"

// TraceSnapshot captures the complete trace and final state of a run.
// All fields use canonical JSON serialization for deterministic comparison.
type TraceSnapshot struct {
	ScenarioName string                 `json:"scenario_name"`
	SessionID    string                 `json:"session_id,omitempty"`
	Trace        []TraceEvent           `json:"trace"`
	State        map[string]ir.IRObject `json:"state,omitempty"`
}

// toCanonicalMap converts a TraceSnapshot to a map[string]any for canonical JSON serialization.
// This is required because ir.MarshalCanonical only handles IR types and primitives.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	traceList := make([]any, len(s.Trace))
	for i, event := range s.Trace {
		eventMap := map[string]any{
			"seq":         event.Seq,
			"kind":        event.Kind,
			"version":     event.Version,
			"cursor":      event.Cursor,
			"history_len": event.HistoryLen,
		}
		if event.Action != "" {
			eventMap["action"] = event.Action
		}
		if len(event.Detail) > 0 {
			eventMap["detail"] = event.Detail
		}
		traceList[i] = eventMap
	}

	result := map[string]any{
		"scenario_name": s.ScenarioName,
		"trace":         traceList,
	}
	if s.SessionID != "" {
		result["session_id"] = s.SessionID
	}
	if len(s.State) > 0 {
		state := make(map[string]any, len(s.State))
		for name, props := range s.State {
			state[name] = props
		}
		result["state"] = state
	}
	return result
}

// SnapshotJSON renders a result as the canonical JSON stored in golden files.
func SnapshotJSON(scenarioName string, result *Result) ([]byte, error) {
	snapshot := TraceSnapshot{
		ScenarioName: scenarioName,
		SessionID:    result.SessionID,
		Trace:        result.Trace,
		State:        result.State,
	}
	return ir.MarshalCanonical(snapshot.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares the snapshot against a golden file.
// The golden file is stored in testdata/golden/{scenario.Name}.golden
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails.
// Test failure (via goldie) occurs if the snapshot doesn't match the golden file.
func RunWithGolden(t *testing.T, scenario *Scenario, opts ...Option) (*Result, error) {
	t.Helper()

	result, err := Run(scenario, opts...)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return result, err
	}
	return result, nil
}

// AssertGolden compares the given result against a golden file.
// This is useful when you've already run a scenario and want to compare
// the result against a golden file without re-running.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := SnapshotJSON(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir(GoldenDir),
		goldie.WithNameSuffix(goldenSuffix),
	)
	g.Assert(t, scenarioName, data)

	return nil
}

// GoldenPath returns the golden file for a scenario under dir.
func GoldenPath(dir, scenarioName string) string {
	return filepath.Join(dir, scenarioName+goldenSuffix)
}

// WriteGolden writes data as the scenario's golden file, creating dir.
func WriteGolden(dir, scenarioName string, data []byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create golden dir: %w", err)
	}
	if err := os.WriteFile(GoldenPath(dir, scenarioName), data, 0o644); err != nil {
		return fmt.Errorf("write golden file: %w", err)
	}
	return nil
}

// ErrNoGolden is returned by CompareGolden when the golden file is missing.
var ErrNoGolden = errors.New("golden file not found")

// CompareGolden reports whether data matches the scenario's golden file.
// Outside of tests there is no *testing.T for goldie, so the CLI compares
// bytes directly.
func CompareGolden(dir, scenarioName string, data []byte) (bool, error) {
	want, err := os.ReadFile(GoldenPath(dir, scenarioName))
	if errors.Is(err, os.ErrNotExist) {
		return false, ErrNoGolden
	}
	if err != nil {
		return false, fmt.Errorf("read golden file: %w", err)
	}
	return bytes.Equal(want, data), nil
}
