// Package journal implements the undo/redo action journal.
//
// A Journal records user-visible actions. Each action is a named pair of
// operation lists: the do-side replays the change, the undo-side reverts it.
// Operations address live objects through an ObjectTable by identity, so an
// object that has been destroyed is skipped at dispatch time instead of
// failing the whole action.
//
// HISTORY MODEL:
//
// The history is a linear list with a cursor. cursor == -1 means nothing is
// applied; the action at cursor is the most recently applied one and the
// action at cursor+1, if any, is the next redo target. Opening a new action
// at depth zero truncates everything past the cursor.
//
// Action Lifecycle:
//  1. CreateAction opens an action (or re-opens the previous one on merge)
//  2. AddDo*/AddUndo* append operations to the open action
//  3. CommitAction closes it and applies the do-side through Redo
//  4. Undo/Redo walk the cursor; ClearHistory drops everything
//
// MERGING:
//
// An open with the same name as the previous action, inside the merge window
// (DefaultMergeWindow, 800ms), coalesces into that action. MergeAll
// accumulates both sides; MergeEnds replaces the do-side and keeps the
// original undo-side. A merged commit leaves Version unchanged.
//
// OWNERSHIP:
//
// Reference-counted targets are held through a StrongRef for as long as the
// action stays in the history. Other targets are held by identity only.
// Reference operations keep transient objects alive: discarding an action
// forward destroys the objects its do-side references, evicting it from the
// tail destroys the objects its undo-side references.
//
// A Journal is not safe for concurrent use. Dispatch runs user code on the
// caller's goroutine and that code may re-enter the journal to open nested
// actions.
package journal
