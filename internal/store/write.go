package store

import (
	"context"
	"fmt"

	"github.com/roach88/rewind/internal/ir"
)

// WriteSession inserts a session record. Rewriting an existing session ID is
// a no-op.
func (s *Store) WriteSession(ctx context.Context, sess ir.Session) error {
	engineVersion := sess.EngineVersion
	if engineVersion == "" {
		engineVersion = ir.EngineVersion
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions
		(id, scenario, classes_hash, started_at_seq, engine_version)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		sess.ID,
		sess.Scenario,
		sess.ClassesHash,
		sess.StartedAtSeq,
		engineVersion,
	)
	if err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

// WriteEvent inserts a journal event and reports whether a new row was
// written. Uses ON CONFLICT(id) DO NOTHING for idempotency; other constraint
// violations (an unknown session, say) still return errors.
//
// An empty ID is filled in with the content-addressed ir.EventID.
func (s *Store) WriteEvent(ctx context.Context, ev ir.JournalEvent) (bool, error) {
	detailJSON, err := marshalDetail(ev.Detail)
	if err != nil {
		return false, fmt.Errorf("write event: %w", err)
	}

	if ev.ID == "" {
		ev.ID, err = ir.EventID(ev.SessionID, ev.Seq, ev.Kind, ev.Detail)
		if err != nil {
			return false, fmt.Errorf("write event: %w", err)
		}
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO journal_events
		(id, session_id, seq, kind, action, version, cursor, history_len, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		ev.ID,
		ev.SessionID,
		ev.Seq,
		string(ev.Kind),
		ev.Action,
		int64(ev.Version),
		ev.Cursor,
		ev.HistoryLen,
		detailJSON,
	)
	if err != nil {
		return false, fmt.Errorf("write event: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("write event: rows affected: %w", err)
	}
	return n > 0, nil
}

// WriteEvents writes a batch in one transaction. It returns the number of
// rows actually inserted.
func (s *Store) WriteEvents(ctx context.Context, events []ir.JournalEvent) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("write events: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO journal_events
		(id, session_id, seq, kind, action, version, cursor, history_len, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`)
	if err != nil {
		return 0, fmt.Errorf("write events: prepare: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, ev := range events {
		detailJSON, err := marshalDetail(ev.Detail)
		if err != nil {
			return 0, fmt.Errorf("write events: seq %d: %w", ev.Seq, err)
		}
		if ev.ID == "" {
			if ev.ID, err = ir.EventID(ev.SessionID, ev.Seq, ev.Kind, ev.Detail); err != nil {
				return 0, fmt.Errorf("write events: seq %d: %w", ev.Seq, err)
			}
		}
		result, err := stmt.ExecContext(ctx,
			ev.ID, ev.SessionID, ev.Seq, string(ev.Kind), ev.Action,
			int64(ev.Version), ev.Cursor, ev.HistoryLen, detailJSON,
		)
		if err != nil {
			return 0, fmt.Errorf("write events: seq %d: %w", ev.Seq, err)
		}
		if n, _ := result.RowsAffected(); n > 0 {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("write events: commit: %w", err)
	}
	return inserted, nil
}
