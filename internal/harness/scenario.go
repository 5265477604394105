package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/rewind/internal/ir"
)

// Scenario drives one journal against a table of live objects and checks
// the resulting trace and state.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Classes lists CUE files declaring the object classes.
	// Paths are relative to the scenario file location.
	Classes []string `yaml:"classes"`

	// Session is an optional fixed session ID for deterministic traces.
	// If empty, defaults to "test-session-default".
	Session string `yaml:"session,omitempty"`

	// MergeWindow overrides the journal's merge window in milliseconds.
	MergeWindow *uint64 `yaml:"merge_window,omitempty"`

	// MaxActions bounds the history; zero means unbounded.
	MaxActions int `yaml:"max_actions,omitempty"`

	// Objects are created in order before the first step.
	Objects []ObjectDecl `yaml:"objects,omitempty"`

	// Steps are executed in order against the journal.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final trace and state.
	// Supported types: trace_contains, trace_order, trace_count, final_state
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// ObjectDecl creates a named object.
type ObjectDecl struct {
	Name  string         `yaml:"name"`
	Class string         `yaml:"class"`
	Props map[string]any `yaml:"props,omitempty"`
}

// Step is one scenario step. Exactly one of the action fields is set.
// Empty-bodied steps are written with an explicit map, e.g. `- commit: {}`.
type Step struct {
	At      *uint64 `yaml:"at,omitempty"`
	Advance *uint64 `yaml:"advance,omitempty"`

	Open *OpenStep `yaml:"open,omitempty"`
	Pair *PairStep `yaml:"pair,omitempty"`

	DoMethod      *MethodStep    `yaml:"do_method,omitempty"`
	UndoMethod    *MethodStep    `yaml:"undo_method,omitempty"`
	DoProperty    *PropertyStep  `yaml:"do_property,omitempty"`
	UndoProperty  *PropertyStep  `yaml:"undo_property,omitempty"`
	DoLambda      *MethodStep    `yaml:"do_lambda,omitempty"`
	UndoLambda    *MethodStep    `yaml:"undo_lambda,omitempty"`
	DoReference   *ReferenceStep `yaml:"do_reference,omitempty"`
	UndoReference *ReferenceStep `yaml:"undo_reference,omitempty"`

	Commit *struct{}    `yaml:"commit,omitempty"`
	Undo   *HistoryStep `yaml:"undo,omitempty"`
	Redo   *HistoryStep `yaml:"redo,omitempty"`
	Clear  *ClearStep   `yaml:"clear,omitempty"`

	Create  *ObjectDecl    `yaml:"create,omitempty"`
	Destroy *ReferenceStep `yaml:"destroy,omitempty"`
	Release *ReferenceStep `yaml:"release,omitempty"`

	Expect *Expectation `yaml:"expect,omitempty"`

	// Error is the usage error code the step must be refused with, e.g.
	// NO_OPEN_ACTION. Steps without it must succeed.
	Error string `yaml:"error,omitempty"`
}

// OpenStep opens an action.
type OpenStep struct {
	Name  string `yaml:"name"`
	Merge string `yaml:"merge,omitempty"` // disable | ends | all
}

// PairStep opens and commits a one-lambda action. The lambdas call the
// given methods; the owner is the do-side object.
type PairStep struct {
	Name  string     `yaml:"name"`
	Merge string     `yaml:"merge,omitempty"`
	Do    MethodStep `yaml:"do"`
	Undo  MethodStep `yaml:"undo"`
}

// MethodStep names a method call. For lambda steps the object is also the
// lambda's owner; an empty object makes an unowned lambda.
type MethodStep struct {
	Object string `yaml:"object"`
	Method string `yaml:"method"`
	Args   []any  `yaml:"args,omitempty"`
}

// PropertyStep names a property write.
type PropertyStep struct {
	Object   string `yaml:"object"`
	Property string `yaml:"property"`
	Value    any    `yaml:"value"`
}

// ReferenceStep names an object.
type ReferenceStep struct {
	Object string `yaml:"object"`
}

// HistoryStep is an undo or redo. Want, when set, is the expected return.
type HistoryStep struct {
	Want *bool `yaml:"want,omitempty"`
}

// ClearStep clears the history.
type ClearStep struct {
	Bump bool `yaml:"bump,omitempty"`
}

// Expectation checks journal and object state at a point in the run.
// Unset fields are not checked.
type Expectation struct {
	Version   *uint64                   `yaml:"version,omitempty"`
	Cursor    *int                      `yaml:"cursor,omitempty"`
	History   *int                      `yaml:"history,omitempty"`
	HasUndo   *bool                     `yaml:"has_undo,omitempty"`
	HasRedo   *bool                     `yaml:"has_redo,omitempty"`
	Action    *string                   `yaml:"action,omitempty"`
	Depth     *int                      `yaml:"depth,omitempty"`
	Objects   map[string]map[string]any `yaml:"objects,omitempty"`
	Alive     []string                  `yaml:"alive,omitempty"`
	Destroyed []string                  `yaml:"destroyed,omitempty"`
	Edited    []string                  `yaml:"edited,omitempty"`
}

// Assertion validates trace or final state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "trace_contains": an event of Kind (and Action, Detail subset) exists
	// - "trace_order": Kinds appear as a subsequence of the trace
	// - "trace_count": events of Kind (and Action) occur exactly Count times
	// - "final_state": Object's properties match Expect (subset)
	Type string `yaml:"type"`

	Kind   string         `yaml:"kind,omitempty"`
	Action string         `yaml:"action,omitempty"`
	Detail map[string]any `yaml:"detail,omitempty"`

	// Kinds is the expected event order (used by trace_order).
	Kinds []string `yaml:"kinds,omitempty"`

	// Count is the expected number of occurrences (used by trace_count).
	Count int `yaml:"count,omitempty"`

	// Object names the object (used by final_state).
	Object string `yaml:"object,omitempty"`

	// Expect contains expected property values (used by final_state).
	Expect map[string]any `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
)

// knownKinds are the event kinds assertions may name.
var knownKinds = map[ir.EventKind]bool{
	ir.EventVersionChanged:  true,
	ir.EventActionCommitted: true,
	ir.EventActionMerged:    true,
	ir.EventUndo:            true,
	ir.EventRedo:            true,
	ir.EventHistoryCleared:  true,
	ir.EventActionDiscarded: true,
	ir.EventActionEvicted:   true,
	ir.EventDiagnostic:      true,
	ir.EventMethod:          true,
	ir.EventProperty:        true,
	ir.EventDestroyed:       true,
}

// LoadScenario reads and parses a scenario YAML file, resolving class paths
// relative to the file's directory.
// Returns an error if the file doesn't exist, is malformed, contains unknown
// fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	return LoadScenarioWithBasePath(path, filepath.Dir(path))
}

// LoadScenarioWithBasePath reads and parses a scenario YAML file,
// resolving class paths relative to the provided base path.
func LoadScenarioWithBasePath(path, basePath string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	// Resolve class paths relative to base path BEFORE validation
	for i, classPath := range scenario.Classes {
		if !filepath.IsAbs(classPath) && basePath != "" {
			scenario.Classes[i] = filepath.Join(basePath, classPath)
		}
	}

	if err := validateScenario(scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	for _, classPath := range scenario.Classes {
		if _, err := os.Stat(classPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("invalid scenario: class file not found: %s", classPath)
		}
	}

	return scenario, nil
}

// ParseScenario decodes scenario YAML strictly. Class paths are left as
// written and not checked for existence.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Classes) == 0 {
		return fmt.Errorf("classes list is required and must be non-empty")
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	if s.MaxActions < 0 {
		return fmt.Errorf("max_actions must be non-negative")
	}

	names := make(map[string]bool)
	for i, obj := range s.Objects {
		if err := validateObjectDecl(obj, names); err != nil {
			return fmt.Errorf("objects[%d]: %w", i, err)
		}
	}

	for i := range s.Steps {
		if err := validateStep(&s.Steps[i], names); err != nil {
			return fmt.Errorf("steps[%d]: %w", i, err)
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}

	return nil
}

func validateObjectDecl(obj ObjectDecl, names map[string]bool) error {
	if obj.Name == "" {
		return fmt.Errorf("name is required")
	}
	if obj.Class == "" {
		return fmt.Errorf("class is required")
	}
	if names[obj.Name] {
		return fmt.Errorf("duplicate object name %q", obj.Name)
	}
	names[obj.Name] = true
	return nil
}

// validateStep checks that exactly one action is set and that its required
// fields are present. Objects created by earlier steps join names.
func validateStep(step *Step, names map[string]bool) error {
	set := 0
	count := func(present bool) {
		if present {
			set++
		}
	}
	count(step.At != nil)
	count(step.Advance != nil)
	count(step.Open != nil)
	count(step.Pair != nil)
	count(step.DoMethod != nil)
	count(step.UndoMethod != nil)
	count(step.DoProperty != nil)
	count(step.UndoProperty != nil)
	count(step.DoLambda != nil)
	count(step.UndoLambda != nil)
	count(step.DoReference != nil)
	count(step.UndoReference != nil)
	count(step.Commit != nil)
	count(step.Undo != nil)
	count(step.Redo != nil)
	count(step.Clear != nil)
	count(step.Create != nil)
	count(step.Destroy != nil)
	count(step.Release != nil)
	count(step.Expect != nil)

	switch {
	case set == 0:
		return fmt.Errorf("step has no action")
	case set > 1:
		return fmt.Errorf("step has %d actions, expected exactly one", set)
	}

	switch {
	case step.Open != nil:
		if _, err := ir.ParseMergeMode(step.Open.Merge); err != nil {
			return err
		}
	case step.Pair != nil:
		if step.Pair.Do.Method == "" || step.Pair.Undo.Method == "" {
			return fmt.Errorf("pair: do and undo methods are required")
		}
		if _, err := ir.ParseMergeMode(step.Pair.Merge); err != nil {
			return err
		}
	case step.DoMethod != nil, step.UndoMethod != nil:
		m := step.DoMethod
		if m == nil {
			m = step.UndoMethod
		}
		if m.Method == "" {
			return fmt.Errorf("method is required")
		}
	case step.DoLambda != nil, step.UndoLambda != nil:
		m := step.DoLambda
		if m == nil {
			m = step.UndoLambda
		}
		if m.Method == "" {
			return fmt.Errorf("method is required")
		}
	case step.DoProperty != nil, step.UndoProperty != nil:
		p := step.DoProperty
		if p == nil {
			p = step.UndoProperty
		}
		if p.Property == "" {
			return fmt.Errorf("property is required")
		}
	case step.Destroy != nil:
		if step.Destroy.Object == "" {
			return fmt.Errorf("destroy: object is required")
		}
	case step.Release != nil:
		if step.Release.Object == "" {
			return fmt.Errorf("release: object is required")
		}
	case step.Create != nil:
		if err := validateObjectDecl(*step.Create, names); err != nil {
			return fmt.Errorf("create: %w", err)
		}
	case step.Expect != nil:
		if step.Error != "" {
			return fmt.Errorf("expect steps cannot carry an error")
		}
	}

	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains, AssertTraceCount:
		if a.Kind == "" {
			return fmt.Errorf("assertions[%d]: kind is required for %s", index, a.Type)
		}
		if !knownKinds[ir.EventKind(a.Kind)] {
			return fmt.Errorf("assertions[%d]: unknown event kind %q", index, a.Kind)
		}
		if a.Type == AssertTraceCount && a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertTraceOrder:
		if len(a.Kinds) == 0 {
			return fmt.Errorf("assertions[%d]: kinds list is required for trace_order", index)
		}
		for _, k := range a.Kinds {
			if !knownKinds[ir.EventKind(k)] {
				return fmt.Errorf("assertions[%d]: unknown event kind %q", index, k)
			}
		}
	case AssertFinalState:
		if a.Object == "" {
			return fmt.Errorf("assertions[%d]: object is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
