package journal

import (
	"slices"

	"github.com/roach88/rewind/internal/ir"
)

// action is one history entry. The journal owns it exclusively.
type action struct {
	name        string
	doOps       []Operation
	undoOps     []Operation
	lastTouched uint64

	// undoAt is where the next undo-side op goes; -1 appends. A MergeAll
	// re-open inserts its undo ops ahead of the earlier ones, so undoing the
	// merged action reverts the latest edit first.
	undoAt int
}

func newAction(name string, now uint64) *action {
	return &action{name: name, lastTouched: now, undoAt: -1}
}

// reopen prepares a merged action for another round of appends.
func (a *action) reopen(mode ir.MergeMode, now uint64, objects ObjectTable) {
	switch mode {
	case ir.MergeEnds:
		a.clearDo(objects)
		a.undoAt = -1
	case ir.MergeAll:
		a.undoAt = 0
	}
	a.lastTouched = now
}

func (a *action) pushDo(op Operation, now uint64) {
	a.doOps = append(a.doOps, op)
	a.lastTouched = now
}

func (a *action) pushUndo(op Operation, now uint64) {
	if a.undoAt < 0 {
		a.undoOps = append(a.undoOps, op)
	} else {
		a.undoOps = slices.Insert(a.undoOps, a.undoAt, op)
		a.undoAt++
	}
	a.lastTouched = now
}

// clearDo discards the do-side. Used when a MergeEnds open rewrites it.
func (a *action) clearDo(objects ObjectTable) {
	for _, op := range a.doOps {
		discard(op, objects)
	}
	a.doOps = nil
}

// discardForward drops an action that is past the cursor and will never be
// redone. Objects only its do-side kept alive are collected.
func (a *action) discardForward(objects ObjectTable) {
	for _, op := range a.doOps {
		discard(op, objects)
	}
	for _, op := range a.undoOps {
		release(op)
	}
	a.doOps, a.undoOps = nil, nil
}

// discardTail drops an applied action from the old end of the history. It
// can never be undone, so objects only its undo-side kept alive are collected.
func (a *action) discardTail(objects ObjectTable) {
	for _, op := range a.undoOps {
		discard(op, objects)
	}
	for _, op := range a.doOps {
		release(op)
	}
	a.doOps, a.undoOps = nil, nil
}

// ActionInfo is a read-only snapshot of a history entry.
type ActionInfo struct {
	Name        string
	LastTouched uint64
	DoOps       []OperationInfo
	UndoOps     []OperationInfo
}

func (a *action) info() ActionInfo {
	info := ActionInfo{
		Name:        a.name,
		LastTouched: a.lastTouched,
		DoOps:       make([]OperationInfo, len(a.doOps)),
		UndoOps:     make([]OperationInfo, len(a.undoOps)),
	}
	for i, op := range a.doOps {
		info.DoOps[i] = describe(op)
	}
	for i, op := range a.undoOps {
		info.UndoOps[i] = describe(op)
	}
	return info
}
