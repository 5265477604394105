package journal

import (
	"log/slog"

	"github.com/roach88/rewind/internal/ir"
)

// DefaultMergeWindow is how long, in milliseconds, a touched action stays
// open to merging with a new action of the same name.
const DefaultMergeWindow uint64 = 800

// CommitNotifyFunc is called once per committed action with its name.
type CommitNotifyFunc func(ud any, action string)

// MethodNotifyFunc is called after every dispatched method call.
type MethodNotifyFunc func(ud any, target Object, method string, args []ir.IRValue)

// PropertyNotifyFunc is called after every dispatched property write.
type PropertyNotifyFunc func(ud any, target Object, property string, value ir.IRValue)

// Journal is the undo/redo history controller.
//
// INVARIANTS (outside an open action):
//   - -1 <= cursor < len(actions)
//   - depth == 0
//
// While an action is open, the action being filled sits at cursor+1.
type Journal struct {
	objects     ObjectTable
	clock       Clock
	logger      *slog.Logger
	mergeWindow uint64
	maxActions  int // 0 means unbounded

	actions    []*action
	cursor     int
	depth      int
	version    uint64
	committing int
	// dispatching counts dispatch frames on the stack.
	dispatching int
	mergeMode  ir.MergeMode
	merging    bool

	commitNotify   CommitNotifyFunc
	commitUD       any
	methodNotify   MethodNotifyFunc
	methodUD       any
	propertyNotify PropertyNotifyFunc
	propertyUD     any
	onDiagnostic   func(Diagnostic)

	bus bus
	seq Sequence
}

// Option configures a Journal.
type Option func(*Journal)

// WithClock sets the clock the merge window is measured against.
//
// Default: a SystemClock created by New.
func WithClock(c Clock) Option {
	return func(j *Journal) {
		j.clock = c
	}
}

// WithMergeWindow sets the merge window in milliseconds. Zero disables merging.
func WithMergeWindow(ms uint64) Option {
	return func(j *Journal) {
		j.mergeWindow = ms
	}
}

// WithMaxActions bounds the history. When a new action pushes the history
// past n entries the oldest one is evicted. n <= 0 leaves it unbounded.
func WithMaxActions(n int) Option {
	return func(j *Journal) {
		if n < 0 {
			n = 0
		}
		j.maxActions = n
	}
}

// WithLogger sets the logger caller misuse and diagnostics are reported to.
func WithLogger(l *slog.Logger) Option {
	return func(j *Journal) {
		j.logger = l
	}
}

// New creates an empty journal over the given object table.
//
// The journal starts at version 0 with cursor -1. Panics if objects is nil.
func New(objects ObjectTable, opts ...Option) *Journal {
	if objects == nil {
		panic("journal: nil ObjectTable")
	}
	j := &Journal{
		objects:     objects,
		clock:       NewSystemClock(),
		logger:      slog.Default(),
		mergeWindow: DefaultMergeWindow,
		cursor:      -1,
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

// CreateAction opens an action, or re-opens the previous one when mode
// allows a merge. Calls nest: only the outermost open creates or merges, and
// each open must be matched by a CommitAction.
func (j *Journal) CreateAction(name string, mode ir.MergeMode) {
	if j.refuseReentry("CreateAction") != nil {
		return
	}
	if j.depth == 0 {
		now := j.clock.NowMillis()
		j.discardRedo()

		if j.canMerge(name, mode, now) {
			j.cursor = len(j.actions) - 2
			j.actions[len(j.actions)-1].reopen(mode, now, j.objects)
			j.mergeMode = mode
			j.merging = true
		} else {
			j.actions = append(j.actions, newAction(name, now))
			j.mergeMode = ir.MergeDisable
			j.evictOverflow()
		}
	}
	j.depth++
}

func (j *Journal) canMerge(name string, mode ir.MergeMode, now uint64) bool {
	if mode == ir.MergeDisable || len(j.actions) == 0 {
		return false
	}
	prev := j.actions[len(j.actions)-1]
	return prev.name == name && prev.lastTouched+j.mergeWindow > now
}

// CreateActionPair opens an action and appends one do/undo lambda pair.
// The caller still commits.
func (j *Journal) CreateActionPair(name string, owner Object, do, undo func(), mode ir.MergeMode) error {
	if do == nil || undo == nil {
		return j.misuse("CreateActionPair", ErrCodeNilCallable, "do and undo callables are required")
	}
	if err := j.refuseReentry("CreateActionPair"); err != nil {
		return err
	}
	j.CreateAction(name, mode)
	if err := j.AddDoLambda(do, owner); err != nil {
		return err
	}
	return j.AddUndoLambda(undo, owner)
}

// side selects which list of the open action an append targets.
type side int

const (
	doSide side = iota
	undoSide
)

// openAction returns the action appends should land in.
func (j *Journal) openAction(op string) (*action, error) {
	if j.depth <= 0 {
		return nil, j.misuse(op, ErrCodeNoOpenAction, "no action is open")
	}
	if j.cursor+1 >= len(j.actions) {
		return nil, j.misuse(op, ErrCodeNoActionSlot, "open action is missing from the history")
	}
	return j.actions[j.cursor+1], nil
}

// suppressed reports whether an undo-side append must be dropped because the
// open action is a MergeEnds merge, whose original undo-side is authoritative.
func (j *Journal) suppressed(s side) bool {
	return s == undoSide && j.mergeMode == ir.MergeEnds
}

func (j *Journal) push(a *action, s side, op Operation) {
	now := j.clock.NowMillis()
	if s == doSide {
		a.pushDo(op, now)
	} else {
		a.pushUndo(op, now)
	}
}

// hold picks the target representation: a strong reference for
// reference-counted objects, the bare identity otherwise.
func (j *Journal) hold(obj Object) target {
	if j.objects.IsRefCounted(obj) {
		return strongTarget{ref: j.objects.Retain(obj), oid: obj.ID()}
	}
	return weakTarget{oid: obj.ID()}
}

// AddDoMethod appends a method call to the open action's do-side.
func (j *Journal) AddDoMethod(target Object, method string, args ...ir.IRValue) error {
	return j.addMethod("AddDoMethod", doSide, target, method, args)
}

// AddUndoMethod appends a method call to the open action's undo-side.
// Dropped during a MergeEnds merge.
func (j *Journal) AddUndoMethod(target Object, method string, args ...ir.IRValue) error {
	return j.addMethod("AddUndoMethod", undoSide, target, method, args)
}

func (j *Journal) addMethod(opName string, s side, target Object, method string, args []ir.IRValue) error {
	if target == nil {
		return j.misuse(opName, ErrCodeNilTarget, "target object is nil")
	}
	a, err := j.openAction(opName)
	if err != nil {
		return err
	}
	if len(args) > MaxMethodArgs {
		return j.misuse(opName, ErrCodeTooManyArgs, "method calls take at most 5 arguments")
	}
	if j.suppressed(s) {
		return nil
	}
	op := &MethodOp{target: j.hold(target), Method: method}
	for i, arg := range args {
		op.Args[i] = ir.Clone(arg)
	}
	j.push(a, s, op)
	return nil
}

// AddDoProperty appends a property write to the open action's do-side.
func (j *Journal) AddDoProperty(target Object, property string, value ir.IRValue) error {
	return j.addProperty("AddDoProperty", doSide, target, property, value)
}

// AddUndoProperty appends a property write to the open action's undo-side.
// Dropped during a MergeEnds merge.
func (j *Journal) AddUndoProperty(target Object, property string, value ir.IRValue) error {
	return j.addProperty("AddUndoProperty", undoSide, target, property, value)
}

func (j *Journal) addProperty(opName string, s side, target Object, property string, value ir.IRValue) error {
	if target == nil {
		return j.misuse(opName, ErrCodeNilTarget, "target object is nil")
	}
	a, err := j.openAction(opName)
	if err != nil {
		return err
	}
	if j.suppressed(s) {
		return nil
	}
	j.push(a, s, &PropertyOp{target: j.hold(target), Property: property, Value: ir.Clone(value)})
	return nil
}

// AddDoLambda appends a callable to the open action's do-side. A nil owner
// makes the lambda unowned: it always runs and marks nothing edited.
func (j *Journal) AddDoLambda(fn func(), owner Object) error {
	return j.addLambda("AddDoLambda", doSide, fn, owner)
}

// AddUndoLambda appends a callable to the open action's undo-side.
// Dropped during a MergeEnds merge.
func (j *Journal) AddUndoLambda(fn func(), owner Object) error {
	return j.addLambda("AddUndoLambda", undoSide, fn, owner)
}

func (j *Journal) addLambda(opName string, s side, fn func(), owner Object) error {
	if fn == nil {
		return j.misuse(opName, ErrCodeNilCallable, "callable is nil")
	}
	a, err := j.openAction(opName)
	if err != nil {
		return err
	}
	if j.suppressed(s) {
		return nil
	}
	op := &LambdaOp{Fn: fn}
	if owner != nil {
		op.owner = j.hold(owner)
	}
	j.push(a, s, op)
	return nil
}

// AddDoReference makes the open action's do-side the owner of target. If the
// action is ever discarded without being current, target is destroyed.
func (j *Journal) AddDoReference(target Object) error {
	return j.addReference("AddDoReference", doSide, target)
}

// AddUndoReference makes the open action's undo-side the owner of target. If
// the action is ever evicted from the tail, target is destroyed.
func (j *Journal) AddUndoReference(target Object) error {
	return j.addReference("AddUndoReference", undoSide, target)
}

func (j *Journal) addReference(opName string, s side, target Object) error {
	if target == nil {
		return j.misuse(opName, ErrCodeNilTarget, "target object is nil")
	}
	a, err := j.openAction(opName)
	if err != nil {
		return err
	}
	if j.suppressed(s) {
		return nil
	}
	j.push(a, s, &ReferenceOp{target: j.hold(target)})
	return nil
}

// AddComposite appends c to both sides of the open action.
func (j *Journal) AddComposite(c Composite) error {
	if c == nil {
		return j.misuse("AddComposite", ErrCodeNilCallable, "composite is nil")
	}
	a, err := j.openAction("AddComposite")
	if err != nil {
		return err
	}
	op := &CompositeOp{Composite: c}
	now := j.clock.NowMillis()
	a.pushDo(op, now)
	a.pushUndo(op, now)
	return nil
}

// CommitAction closes the innermost open action. Closing the outermost one
// applies the action's do-side through the same path Redo uses.
//
// A merged commit leaves Version where it was before the matching
// CreateAction: the version is decremented here and the redo increments it back.
func (j *Journal) CommitAction() error {
	if j.depth <= 0 {
		return j.misuse("CommitAction", ErrCodeNoOpenAction, "no action is open")
	}
	j.depth--
	if j.depth > 0 {
		return nil
	}

	merged := j.merging
	if merged {
		j.version--
		j.merging = false
	}

	j.committing++
	applied := j.redo()
	j.committing--

	if len(j.actions) == 0 {
		return nil
	}
	name := j.actions[len(j.actions)-1].name
	if j.commitNotify != nil {
		j.commitNotify(j.commitUD, name)
	}
	if !applied {
		return nil
	}
	kind := ir.EventActionCommitted
	if merged {
		kind = ir.EventActionMerged
	}
	j.emit(kind, name, ir.IRObject{"merge_mode": ir.IRString(j.mergeMode.String())})
	return nil
}

// Redo applies the next action's do-side and advances the cursor.
// Returns false when there is nothing to redo.
func (j *Journal) Redo() (bool, error) {
	if j.depth > 0 {
		return false, j.misuse("Redo", ErrCodeActionOpen, "cannot redo while an action is open")
	}
	if err := j.refuseReentry("Redo"); err != nil {
		return false, err
	}
	return j.redo(), nil
}

func (j *Journal) redo() bool {
	if j.cursor+1 >= len(j.actions) {
		return false
	}
	j.cursor++
	a := j.actions[j.cursor]
	j.dispatch(a.name, a.doOps, Forward)
	j.version++

	if j.committing == 0 {
		j.emit(ir.EventRedo, a.name, nil)
	}
	j.emit(ir.EventVersionChanged, a.name, nil)
	return true
}

// Undo applies the current action's undo-side and moves the cursor back.
// Returns false when there is nothing to undo.
func (j *Journal) Undo() (bool, error) {
	if j.depth > 0 {
		return false, j.misuse("Undo", ErrCodeActionOpen, "cannot undo while an action is open")
	}
	if err := j.refuseReentry("Undo"); err != nil {
		return false, err
	}
	if j.cursor < 0 {
		return false, nil
	}
	a := j.actions[j.cursor]
	j.dispatch(a.name, a.undoOps, Backward)
	if j.cursor >= 0 {
		j.cursor--
	}
	j.version--

	j.emit(ir.EventUndo, a.name, nil)
	j.emit(ir.EventVersionChanged, a.name, nil)
	return true, nil
}

// ClearHistory drops every action. Forward actions are discarded as by a new
// open; applied ones are evicted from the tail. bumpVersion increments the
// version even when the history was already empty.
func (j *Journal) ClearHistory(bumpVersion bool) error {
	if j.depth > 0 {
		return j.misuse("ClearHistory", ErrCodeActionOpen, "cannot clear while an action is open")
	}
	if err := j.refuseReentry("ClearHistory"); err != nil {
		return err
	}
	dropped := len(j.actions)
	j.discardRedo()
	for len(j.actions) > 0 {
		j.popTail()
	}
	j.emit(ir.EventHistoryCleared, "", ir.IRObject{
		"dropped":      ir.IRInt(dropped),
		"bump_version": ir.IRBool(bumpVersion),
	})
	if bumpVersion {
		j.version++
		j.emit(ir.EventVersionChanged, "", nil)
	}
	return nil
}

// discardRedo truncates the history to cursor+1 entries.
func (j *Journal) discardRedo() {
	if j.cursor+1 >= len(j.actions) {
		return
	}
	dropped := j.actions[j.cursor+1:]
	j.actions = j.actions[:j.cursor+1]
	for _, a := range dropped {
		a.discardForward(j.objects)
		j.emit(ir.EventActionDiscarded, a.name, nil)
	}
	clear(dropped)
}

// popTail evicts the oldest action.
func (j *Journal) popTail() *action {
	a := j.actions[0]
	j.actions[0] = nil
	j.actions = j.actions[1:]
	if j.cursor >= 0 {
		j.cursor--
	}
	a.discardTail(j.objects)
	return a
}

// evictOverflow enforces WithMaxActions after a fresh action was appended.
func (j *Journal) evictOverflow() {
	for j.maxActions > 0 && len(j.actions) > j.maxActions {
		a := j.popTail()
		j.emit(ir.EventActionEvicted, a.name, nil)
	}
}

// HasUndo reports whether there is an applied action to undo.
func (j *Journal) HasUndo() bool {
	return j.cursor >= 0
}

// HasRedo reports whether there is an undone action to redo.
func (j *Journal) HasRedo() bool {
	return j.cursor+1 < len(j.actions)
}

// CurrentActionName returns the name of the most recently applied action, or
// "" if none.
func (j *Journal) CurrentActionName() (string, error) {
	if j.depth > 0 {
		return "", j.misuse("CurrentActionName", ErrCodeActionOpen, "cannot query while an action is open")
	}
	if j.cursor < 0 {
		return "", nil
	}
	return j.actions[j.cursor].name, nil
}

// Version returns the change counter observers compare against.
func (j *Journal) Version() uint64 {
	return j.version
}

// IsCommittingAction reports whether a commit is dispatching right now.
// User code run from dispatch can use it to tell commit from redo.
func (j *Journal) IsCommittingAction() bool {
	return j.committing > 0
}

// Len returns the number of actions in the history.
func (j *Journal) Len() int {
	return len(j.actions)
}

// Cursor returns the index of the most recently applied action, -1 if none.
func (j *Journal) Cursor() int {
	return j.cursor
}

// Depth returns the number of unmatched CreateAction calls.
func (j *Journal) Depth() int {
	return j.depth
}

// History returns a snapshot of every action, oldest first.
func (j *Journal) History() []ActionInfo {
	out := make([]ActionInfo, len(j.actions))
	for i, a := range j.actions {
		out[i] = a.info()
	}
	return out
}

// SetCommitNotify installs the commit observer. A nil fn removes it.
func (j *Journal) SetCommitNotify(fn CommitNotifyFunc, ud any) {
	j.commitNotify, j.commitUD = fn, ud
}

// SetMethodNotify installs the method-call observer. A nil fn removes it.
func (j *Journal) SetMethodNotify(fn MethodNotifyFunc, ud any) {
	j.methodNotify, j.methodUD = fn, ud
}

// SetPropertyNotify installs the property-write observer. A nil fn removes it.
func (j *Journal) SetPropertyNotify(fn PropertyNotifyFunc, ud any) {
	j.propertyNotify, j.propertyUD = fn, ud
}

// SetDiagnosticHandler replaces the default diagnostic handler, which logs
// at Warn. A nil fn restores the default.
func (j *Journal) SetDiagnosticHandler(fn func(Diagnostic)) {
	j.onDiagnostic = fn
}

// Subscribe registers a bus listener and returns its cancel func.
func (j *Journal) Subscribe(fn Listener) (cancel func()) {
	return j.bus.subscribe(fn)
}

// Annotate publishes a host event, such as an object destruction, on the bus
// with the next sequence number and the current journal state.
func (j *Journal) Annotate(kind ir.EventKind, detail ir.IRObject) {
	j.emit(kind, "", detail)
}

func (j *Journal) emit(kind ir.EventKind, actionName string, detail ir.IRObject) {
	j.bus.publish(Event{
		Seq:        j.seq.Next(),
		Kind:       kind,
		Action:     actionName,
		Version:    j.version,
		Cursor:     j.cursor,
		HistoryLen: len(j.actions),
		Detail:     detail,
	})
}

// refuseReentry rejects op while dispatch is running. The cursor and the
// action being applied must not change under it.
func (j *Journal) refuseReentry(op string) error {
	if j.dispatching == 0 {
		return nil
	}
	return j.misuse(op, ErrCodeDispatching, "cannot change the history while an action is being applied")
}

// misuse reports a refused call on the error channel and returns it.
func (j *Journal) misuse(op string, code UsageErrorCode, msg string) error {
	err := &UsageError{Code: code, Op: op, Message: msg}
	j.logger.Error("journal call refused",
		"op", op,
		"code", string(code),
		"error", msg,
		"depth", j.depth,
		"cursor", j.cursor,
	)
	return err
}
