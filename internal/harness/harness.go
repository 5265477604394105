package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/roach88/rewind/internal/compiler"
	"github.com/roach88/rewind/internal/ir"
	"github.com/roach88/rewind/internal/journal"
	"github.com/roach88/rewind/internal/objects"
	"github.com/roach88/rewind/internal/store"
	"github.com/roach88/rewind/internal/testutil"
)

// Option configures a scenario run.
type Option func(*config)

type config struct {
	logger    *slog.Logger
	store     *store.Store
	sessions  store.SessionGenerator
	observers []func(*journal.Journal)
}

// WithLogger sets the logger handed to the journal and object table.
// Runs are silent by default.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithStore records the run into s instead of a private in-memory database.
// The caller keeps ownership of s.
func WithStore(s *store.Store) Option {
	return func(c *config) {
		c.store = s
	}
}

// WithSessionGenerator overrides the scenario's fixed session ID.
func WithSessionGenerator(g store.SessionGenerator) Option {
	return func(c *config) {
		c.sessions = g
	}
}

// WithObserver is called with the journal before the first step, e.g. to
// attach a metrics collector.
func WithObserver(fn func(*journal.Journal)) Option {
	return func(c *config) {
		c.observers = append(c.observers, fn)
	}
}

// Run executes a test scenario and returns the result.
func Run(scenario *Scenario, opts ...Option) (*Result, error) {
	return RunContext(context.Background(), scenario, opts...)
}

// RunContext executes a test scenario and returns the result.
//
// Each run gets a fresh object table, a journal on a manual clock starting
// at 0, and a fixed session ID, so the same scenario always produces the
// same trace. Every bus event is recorded to the store and the trace.
//
// Execution flow:
//  1. Compile and validate the scenario's classes
//  2. Create the declared objects
//  3. Execute steps, checking expected errors and expectations
//  4. Flush the recorded session to the store
//  5. Evaluate assertions against the trace and final state
//
// A returned error means the scenario could not be run at all; behavioral
// mismatches are reported in Result.Errors.
func RunContext(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	cfg := &config{
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.sessions == nil {
		cfg.sessions = testutil.NewFixedSessionGenerator(scenario.Session)
	}

	classes, err := compiler.CompileFiles(scenario.Classes...)
	if err != nil {
		return nil, fmt.Errorf("failed to load classes: %w", err)
	}
	classesHash, err := ir.ClassesHash(classes)
	if err != nil {
		return nil, fmt.Errorf("failed to hash classes: %w", err)
	}

	st := cfg.store
	if st == nil {
		st, err = store.Open(":memory:")
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory store: %w", err)
		}
		defer st.Close()
	}

	r := newRunner(scenario, classes, cfg)
	result := r.result
	result.SessionID = cfg.sessions.Generate()

	recorder := store.NewRecorder(st, ir.Session{
		ID:            result.SessionID,
		Scenario:      scenario.Name,
		ClassesHash:   classesHash,
		StartedAtSeq:  1,
		EngineVersion: ir.EngineVersion,
	})
	recorder.Attach(r.journal)
	defer recorder.Detach()

	for _, obs := range cfg.observers {
		obs(r.journal)
	}

	for i, decl := range scenario.Objects {
		if err := r.create(decl); err != nil {
			return nil, fmt.Errorf("objects[%d]: %w", i, err)
		}
	}

	for i := range scenario.Steps {
		if err := r.step(i, &scenario.Steps[i]); err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
	}

	written, err := recorder.Flush(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to record session: %w", err)
	}
	cfg.logger.Debug("scenario recorded",
		"scenario", scenario.Name,
		"session", result.SessionID,
		"events", written,
	)

	r.snapshotState()

	actx := &AssertionContext{Names: r.refNames()}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}

	return result, nil
}

// runner holds the live state of one scenario run.
type runner struct {
	scenario *Scenario
	table    *objects.Table
	journal  *journal.Journal
	clock    *testutil.ManualClock
	logger   *slog.Logger
	result   *Result

	// names keeps every object ever created, dead or alive, so steps can
	// target destroyed objects.
	names map[string]*objects.Instance
	order []string
}

func newRunner(scenario *Scenario, classes []ir.ClassSpec, cfg *config) *runner {
	r := &runner{
		scenario: scenario,
		table:    objects.NewTable(classes, objects.WithLogger(cfg.logger)),
		clock:    testutil.NewManualClock(0),
		logger:   cfg.logger,
		result:   NewResult(),
		names:    make(map[string]*objects.Instance),
	}

	jopts := []journal.Option{
		journal.WithClock(r.clock),
		journal.WithLogger(cfg.logger),
	}
	if scenario.MergeWindow != nil {
		jopts = append(jopts, journal.WithMergeWindow(*scenario.MergeWindow))
	}
	if scenario.MaxActions > 0 {
		jopts = append(jopts, journal.WithMaxActions(scenario.MaxActions))
	}
	r.journal = journal.New(r.table, jopts...)

	r.table.OnDestroy(func(id ir.ObjectID, class string) {
		r.journal.Annotate(ir.EventDestroyed, ir.IRObject{
			"object": ir.IRRef(id),
			"class":  ir.IRString(class),
		})
	})
	r.journal.Subscribe(func(e journal.Event) {
		r.result.Trace = append(r.result.Trace, traceEventFrom(e))
	})
	return r
}

func (r *runner) create(decl ObjectDecl) error {
	if _, dup := r.names[decl.Name]; dup {
		return fmt.Errorf("duplicate object name %q", decl.Name)
	}
	props, err := r.convertObject(decl.Props)
	if err != nil {
		return fmt.Errorf("object %q props: %w", decl.Name, err)
	}
	obj, err := r.table.Create(decl.Class, props)
	if err != nil {
		return fmt.Errorf("create %q: %w", decl.Name, err)
	}
	r.names[decl.Name] = obj
	r.order = append(r.order, decl.Name)
	r.logger.Debug("object created", "name", decl.Name, "class", decl.Class, "id", obj.ID().String())
	return nil
}

// object returns the named object. The empty name is no object.
func (r *runner) object(name string) (journal.Object, error) {
	if name == "" {
		return nil, nil
	}
	obj, ok := r.names[name]
	if !ok {
		return nil, fmt.Errorf("unknown object %q", name)
	}
	return obj, nil
}

// step executes one step. Setup errors (unknown names, bad values) abort the
// run; journal refusals and failed expectations are recorded as failures.
func (r *runner) step(i int, s *Step) error {
	if s.Expect != nil {
		for _, msg := range r.checkExpectation(s.Expect) {
			r.result.AddError(fmt.Sprintf("steps[%d]: expect: %s", i, msg))
		}
		return nil
	}

	callErr, err := r.apply(i, s)
	if err != nil {
		return err
	}

	switch {
	case s.Error == "" && callErr != nil:
		r.result.AddError(fmt.Sprintf("steps[%d]: unexpected error: %v", i, callErr))
	case s.Error != "" && callErr == nil:
		r.result.AddError(fmt.Sprintf("steps[%d]: expected error %s, got none", i, s.Error))
	case s.Error != "":
		code, ok := journal.CodeOf(callErr)
		if !ok || string(code) != s.Error {
			r.result.AddError(fmt.Sprintf("steps[%d]: expected error %s, got %v", i, s.Error, callErr))
		}
	}
	return nil
}

// apply performs the step's action. callErr is the journal's answer; err is
// a problem with the scenario itself.
func (r *runner) apply(i int, s *Step) (callErr, err error) {
	j := r.journal

	switch {
	case s.At != nil:
		r.clock.Set(*s.At)
		return nil, nil

	case s.Advance != nil:
		r.clock.Advance(*s.Advance)
		return nil, nil

	case s.Open != nil:
		mode, err := ir.ParseMergeMode(s.Open.Merge)
		if err != nil {
			return nil, err
		}
		j.CreateAction(s.Open.Name, mode)
		return nil, nil

	case s.Pair != nil:
		mode, err := ir.ParseMergeMode(s.Pair.Merge)
		if err != nil {
			return nil, err
		}
		owner, err := r.object(s.Pair.Do.Object)
		if err != nil {
			return nil, err
		}
		do, err := r.lambda(s.Pair.Do)
		if err != nil {
			return nil, err
		}
		undo, err := r.lambda(s.Pair.Undo)
		if err != nil {
			return nil, err
		}
		return j.CreateActionPair(s.Pair.Name, owner, do, undo, mode), nil

	case s.DoMethod != nil:
		return r.method(s.DoMethod, j.AddDoMethod)

	case s.UndoMethod != nil:
		return r.method(s.UndoMethod, j.AddUndoMethod)

	case s.DoProperty != nil:
		return r.property(s.DoProperty, j.AddDoProperty)

	case s.UndoProperty != nil:
		return r.property(s.UndoProperty, j.AddUndoProperty)

	case s.DoLambda != nil:
		return r.addLambda(s.DoLambda, j.AddDoLambda)

	case s.UndoLambda != nil:
		return r.addLambda(s.UndoLambda, j.AddUndoLambda)

	case s.DoReference != nil:
		obj, err := r.object(s.DoReference.Object)
		if err != nil {
			return nil, err
		}
		return j.AddDoReference(obj), nil

	case s.UndoReference != nil:
		obj, err := r.object(s.UndoReference.Object)
		if err != nil {
			return nil, err
		}
		return j.AddUndoReference(obj), nil

	case s.Commit != nil:
		return j.CommitAction(), nil

	case s.Undo != nil:
		ok, callErr := j.Undo()
		r.checkWant(i, "undo", s.Undo, ok, callErr)
		return callErr, nil

	case s.Redo != nil:
		ok, callErr := j.Redo()
		r.checkWant(i, "redo", s.Redo, ok, callErr)
		return callErr, nil

	case s.Clear != nil:
		return j.ClearHistory(s.Clear.Bump), nil

	case s.Create != nil:
		return nil, r.create(*s.Create)

	case s.Destroy != nil:
		obj, err := r.object(s.Destroy.Object)
		if err != nil {
			return nil, err
		}
		if obj == nil {
			return nil, fmt.Errorf("destroy: object is required")
		}
		r.table.Destroy(obj)
		return nil, nil

	case s.Release != nil:
		obj, err := r.object(s.Release.Object)
		if err != nil {
			return nil, err
		}
		if obj == nil {
			return nil, fmt.Errorf("release: object is required")
		}
		r.table.Release(obj)
		return nil, nil
	}

	return nil, fmt.Errorf("step has no action")
}

func (r *runner) checkWant(i int, op string, h *HistoryStep, got bool, callErr error) {
	if h.Want == nil || callErr != nil {
		return
	}
	if got != *h.Want {
		r.result.AddError(fmt.Sprintf("steps[%d]: %s returned %v, expected %v", i, op, got, *h.Want))
	}
}

func (r *runner) method(m *MethodStep, add func(journal.Object, string, ...ir.IRValue) error) (callErr, err error) {
	obj, err := r.object(m.Object)
	if err != nil {
		return nil, err
	}
	args, err := r.convertArgs(m.Args)
	if err != nil {
		return nil, fmt.Errorf("%s args: %w", m.Method, err)
	}
	return add(obj, m.Method, args...), nil
}

func (r *runner) property(p *PropertyStep, add func(journal.Object, string, ir.IRValue) error) (callErr, err error) {
	obj, err := r.object(p.Object)
	if err != nil {
		return nil, err
	}
	value, err := r.convertValue(p.Value)
	if err != nil {
		return nil, fmt.Errorf("%s value: %w", p.Property, err)
	}
	return add(obj, p.Property, value), nil
}

func (r *runner) addLambda(m *MethodStep, add func(func(), journal.Object) error) (callErr, err error) {
	owner, err := r.object(m.Object)
	if err != nil {
		return nil, err
	}
	fn, err := r.lambda(*m)
	if err != nil {
		return nil, err
	}
	return add(fn, owner), nil
}

// lambda wraps a method call in a closure, the way a host binds a callback.
// Call failures are logged; lambdas have no way to report them.
func (r *runner) lambda(m MethodStep) (func(), error) {
	obj, err := r.object(m.Object)
	if err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, fmt.Errorf("lambda %s needs an object", m.Method)
	}
	args, err := r.convertArgs(m.Args)
	if err != nil {
		return nil, fmt.Errorf("%s args: %w", m.Method, err)
	}
	return func() {
		if err := r.table.Call(obj, m.Method, args); err != nil {
			r.logger.Debug("lambda call failed",
				"object", obj.ID().String(),
				"method", m.Method,
				"error", err,
			)
		}
	}, nil
}

// checkExpectation compares live state against e and returns one message per
// mismatch.
func (r *runner) checkExpectation(e *Expectation) []string {
	var msgs []string
	j := r.journal
	mismatch := func(field string, want, got any) {
		msgs = append(msgs, fmt.Sprintf("%s: expected %v, got %v", field, want, got))
	}

	if e.Version != nil && *e.Version != j.Version() {
		mismatch("version", *e.Version, j.Version())
	}
	if e.Cursor != nil && *e.Cursor != j.Cursor() {
		mismatch("cursor", *e.Cursor, j.Cursor())
	}
	if e.History != nil && *e.History != j.Len() {
		mismatch("history", *e.History, j.Len())
	}
	if e.HasUndo != nil && *e.HasUndo != j.HasUndo() {
		mismatch("has_undo", *e.HasUndo, j.HasUndo())
	}
	if e.HasRedo != nil && *e.HasRedo != j.HasRedo() {
		mismatch("has_redo", *e.HasRedo, j.HasRedo())
	}
	if e.Depth != nil && *e.Depth != j.Depth() {
		mismatch("depth", *e.Depth, j.Depth())
	}
	if e.Action != nil {
		name, err := j.CurrentActionName()
		if err != nil {
			msgs = append(msgs, fmt.Sprintf("action: %v", err))
		} else if name != *e.Action {
			mismatch("action", fmt.Sprintf("%q", *e.Action), fmt.Sprintf("%q", name))
		}
	}

	for _, name := range sortedKeys(e.Objects) {
		msgs = append(msgs, r.checkProps(name, e.Objects[name])...)
	}
	for _, name := range e.Alive {
		if !r.alive(name) {
			msgs = append(msgs, fmt.Sprintf("alive: %s was destroyed", name))
		}
	}
	for _, name := range e.Destroyed {
		if r.alive(name) {
			msgs = append(msgs, fmt.Sprintf("destroyed: %s is alive", name))
		}
	}
	for _, name := range e.Edited {
		obj, ok := r.names[name]
		if !ok || !r.table.Edited(obj.ID()) {
			msgs = append(msgs, fmt.Sprintf("edited: %s was not edited", name))
		}
	}
	return msgs
}

func (r *runner) alive(name string) bool {
	obj, ok := r.names[name]
	if !ok {
		return false
	}
	_, live := r.table.Resolve(obj.ID())
	return live
}

// checkProps compares the named object's properties against want (subset).
func (r *runner) checkProps(name string, want map[string]any) []string {
	obj, ok := r.names[name]
	if !ok {
		return []string{fmt.Sprintf("objects: unknown object %q", name)}
	}
	props, live := r.table.Props(obj.ID())
	if !live {
		return []string{fmt.Sprintf("objects: %s was destroyed", name)}
	}

	var msgs []string
	for _, key := range sortedKeys(want) {
		expected, err := r.convertValue(want[key])
		if err != nil {
			msgs = append(msgs, fmt.Sprintf("objects: %s.%s: %v", name, key, err))
			continue
		}
		got, ok := props[key]
		if !ok {
			msgs = append(msgs, fmt.Sprintf("objects: %s has no property %q", name, key))
			continue
		}
		if !ir.Equal(expected, got) {
			msgs = append(msgs, fmt.Sprintf("objects: %s.%s: expected %s, got %s",
				name, key, ir.Format(expected), ir.Format(got)))
		}
	}
	return msgs
}

// snapshotState copies the properties of every live named object.
func (r *runner) snapshotState() {
	for _, name := range r.order {
		if props, ok := r.table.Props(r.names[name].ID()); ok {
			r.result.State[name] = props
		}
	}
}

// refNames maps object names to refs for assertion values.
func (r *runner) refNames() map[string]ir.ObjectID {
	out := make(map[string]ir.ObjectID, len(r.names))
	for name, obj := range r.names {
		out[name] = obj.ID()
	}
	return out
}

func (r *runner) convertValue(v any) (ir.IRValue, error) {
	return convertToIRValue(v, r.refNames())
}

func (r *runner) convertArgs(args []any) ([]ir.IRValue, error) {
	out := make([]ir.IRValue, len(args))
	for i, a := range args {
		v, err := r.convertValue(a)
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

func (r *runner) convertObject(props map[string]any) (ir.IRObject, error) {
	if props == nil {
		return nil, nil
	}
	out := make(ir.IRObject, len(props))
	for k, v := range props {
		iv, err := r.convertValue(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		out[k] = iv
	}
	return out, nil
}

// convertToIRValue converts a decoded YAML value to an IRValue.
// YAML null becomes IRNull and a string "@name" becomes a ref to the named
// object; "@@" escapes a literal leading "@".
func convertToIRValue(v any, names map[string]ir.ObjectID) (ir.IRValue, error) {
	switch val := v.(type) {
	case nil:
		return ir.IRNull{}, nil
	case string:
		if strings.HasPrefix(val, "@@") {
			return ir.IRString(val[1:]), nil
		}
		if name, ok := strings.CutPrefix(val, "@"); ok {
			id, known := names[name]
			if !known {
				return nil, fmt.Errorf("unknown object %q", name)
			}
			return ir.IRRef(id), nil
		}
		return ir.IRString(val), nil
	case []any:
		arr := make(ir.IRArray, len(val))
		for i, e := range val {
			iv, err := convertToIRValue(e, names)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			arr[i] = iv
		}
		return arr, nil
	case map[string]any:
		obj := make(ir.IRObject, len(val))
		for k, e := range val {
			iv, err := convertToIRValue(e, names)
			if err != nil {
				return nil, fmt.Errorf("[%q]: %w", k, err)
			}
			obj[k] = iv
		}
		return obj, nil
	default:
		return ir.FromAny(v)
	}
}
