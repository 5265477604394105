package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/rewind/internal/ir"
)

// createTestStore creates a new store in a temp directory for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestSession creates a session with minimal required fields.
func createTestSession(id string) ir.Session {
	return ir.Session{
		ID:            id,
		Scenario:      "test-scenario",
		EngineVersion: ir.EngineVersion,
	}
}

// createTestEvent creates an event with a content-addressed ID.
func createTestEvent(sessionID string, seq int64, kind ir.EventKind) ir.JournalEvent {
	detail := ir.IRObject{"n": ir.IRInt(seq)}
	return ir.JournalEvent{
		ID:        ir.MustEventID(sessionID, seq, kind, detail),
		SessionID: sessionID,
		Seq:       seq,
		Kind:      kind,
		Action:    "Edit",
		Version:   uint64(seq),
		Cursor:    int(seq) - 1,
		Detail:    detail,
	}
}
