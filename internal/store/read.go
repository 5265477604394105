package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/rewind/internal/ir"
)

const eventColumns = `id, session_id, seq, kind, action, version, cursor, history_len, detail`

// ReadSessionEvents returns every event of a session.
// Results are ordered deterministically: ORDER BY seq ASC, id ASC COLLATE BINARY.
//
// Returns an empty slice (not nil) if the session has no events.
func (s *Store) ReadSessionEvents(ctx context.Context, sessionID string) ([]ir.JournalEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM journal_events
		WHERE session_id = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	return collectEvents(rows)
}

// ReadSessionEventsByKind is ReadSessionEvents restricted to one kind.
func (s *Store) ReadSessionEventsByKind(ctx context.Context, sessionID string, kind ir.EventKind) ([]ir.JournalEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+eventColumns+`
		FROM journal_events
		WHERE session_id = ? AND kind = ?
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`, sessionID, string(kind))
	if err != nil {
		return nil, fmt.Errorf("query events by kind: %w", err)
	}
	return collectEvents(rows)
}

// ReadSession retrieves a single session by ID.
// Returns sql.ErrNoRows if not found.
func (s *Store) ReadSession(ctx context.Context, id string) (ir.Session, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, scenario, classes_hash, started_at_seq, engine_version
		FROM sessions
		WHERE id = ?
	`, id)

	var sess ir.Session
	if err := row.Scan(&sess.ID, &sess.Scenario, &sess.ClassesHash, &sess.StartedAtSeq, &sess.EngineVersion); err != nil {
		return ir.Session{}, err
	}
	return sess, nil
}

// ListSessions returns all sessions ordered by ID. UUIDv7 session IDs sort by
// creation time.
func (s *Store) ListSessions(ctx context.Context) ([]ir.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, scenario, classes_hash, started_at_seq, engine_version
		FROM sessions
		ORDER BY id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []ir.Session{}
	for rows.Next() {
		var sess ir.Session
		if err := rows.Scan(&sess.ID, &sess.Scenario, &sess.ClassesHash, &sess.StartedAtSeq, &sess.EngineVersion); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// CountSessionEvents returns the number of events recorded for a session.
func (s *Store) CountSessionEvents(ctx context.Context, sessionID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM journal_events WHERE session_id = ?`, sessionID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

func collectEvents(rows *sql.Rows) ([]ir.JournalEvent, error) {
	defer rows.Close()

	events := []ir.JournalEvent{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// scanEvent scans a row into a JournalEvent.
func scanEvent(rows *sql.Rows) (ir.JournalEvent, error) {
	var (
		ev         ir.JournalEvent
		kind       string
		version    int64
		detailJSON string
	)
	if err := rows.Scan(
		&ev.ID, &ev.SessionID, &ev.Seq, &kind, &ev.Action,
		&version, &ev.Cursor, &ev.HistoryLen, &detailJSON,
	); err != nil {
		return ir.JournalEvent{}, fmt.Errorf("scan event: %w", err)
	}
	ev.Kind = ir.EventKind(kind)
	ev.Version = uint64(version)

	detail, err := unmarshalDetail(detailJSON)
	if err != nil {
		return ir.JournalEvent{}, err
	}
	ev.Detail = detail
	return ev, nil
}
