package cli

import (
	"database/sql"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/rewind/internal/ir"
	"github.com/roach88/rewind/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	Session  string
	Kind     string // optional - filter to one event kind
	Action   string // optional - filter to one action name
}

// TraceEvent is a single event in the trace timeline.
type TraceEvent struct {
	Seq        int64          `json:"seq"`
	Kind       string         `json:"kind"`
	ID         string         `json:"id"`
	Action     string         `json:"action,omitempty"`
	Version    uint64         `json:"version"`
	Cursor     int            `json:"cursor"`
	HistoryLen int            `json:"history_len"`
	Detail     map[string]any `json:"detail,omitempty"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Session  ir.Session   `json:"session"`
	Timeline []TraceEvent `json:"timeline"`
	Stats    TraceStats   `json:"stats"`
}

// TraceStats summarizes the whole session, regardless of filters.
type TraceStats struct {
	TotalEvents  int            `json:"total_events"`
	ByKind       map[string]int `json:"by_kind"`
	FinalVersion uint64         `json:"final_version"`
}

// SessionList is the trace output when no session is selected.
type SessionList struct {
	Sessions []SessionSummary `json:"sessions"`
}

// SessionSummary is one recorded session and its size.
type SessionSummary struct {
	ir.Session
	Events int `json:"events"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Show the recorded events of a session",
		Long: `Show the journal events recorded for a session.

Without --session, lists the recorded sessions. With --session, prints
the session's timeline in sequence order, optionally filtered by event
kind or action name, and per-kind counts.

Examples:
  rewind trace --db ./rewind.db
  rewind trace --db ./rewind.db --session 0192f0c4-...
  rewind trace --db ./rewind.db --session test-session --kind undo
  rewind trace --db ./rewind.db --session test-session --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Session, "session", "", "session to trace (omit to list sessions)")
	cmd.Flags().StringVar(&opts.Kind, "kind", "", "filter to one event kind")
	cmd.Flags().StringVar(&opts.Action, "action", "", "filter to one action name")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()

	if opts.Kind != "" && !isEventKind(opts.Kind) {
		return NewExitError(ExitCommandError, fmt.Sprintf("unknown event kind %q", opts.Kind))
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	if opts.Session == "" {
		sessions, err := st.ListSessions(ctx)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to list sessions", err)
		}
		list := SessionList{Sessions: make([]SessionSummary, 0, len(sessions))}
		for _, sess := range sessions {
			n, err := st.CountSessionEvents(ctx, sess.ID)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to count events", err)
			}
			list.Sessions = append(list.Sessions, SessionSummary{Session: sess, Events: n})
		}
		if opts.Format == "json" {
			return (&OutputFormatter{Format: "json", Writer: cmd.OutOrStdout()}).encode(CLIResponse{Status: "ok", Data: list})
		}
		outputSessionList(cmd.OutOrStdout(), list)
		return nil
	}

	sess, err := st.ReadSession(ctx, opts.Session)
	if errors.Is(err, sql.ErrNoRows) {
		if opts.Format == "json" {
			return (&OutputFormatter{Format: "json", Writer: cmd.OutOrStdout()}).encode(CLIResponse{
				Status: "ok",
				Data:   TraceResult{Session: ir.Session{ID: opts.Session}, Timeline: []TraceEvent{}, Stats: TraceStats{ByKind: map[string]int{}}},
			})
		}
		fmt.Fprintf(cmd.OutOrStdout(), "No events found for session: %s\n", opts.Session)
		return nil
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read session", err)
	}

	events, err := st.ReadSessionEvents(ctx, opts.Session)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read events", err)
	}

	result := TraceResult{
		Session:  sess,
		Timeline: buildTimeline(events, opts.Kind, opts.Action),
		Stats:    buildStats(events),
	}

	if opts.Format == "json" {
		return (&OutputFormatter{Format: "json", Writer: cmd.OutOrStdout()}).encode(CLIResponse{
			Status:    "ok",
			Data:      result,
			SessionID: sess.ID,
		})
	}
	outputTraceText(cmd.OutOrStdout(), result, opts.Verbose)
	return nil
}

func isEventKind(kind string) bool {
	switch ir.EventKind(kind) {
	case ir.EventVersionChanged, ir.EventActionCommitted, ir.EventActionMerged,
		ir.EventUndo, ir.EventRedo, ir.EventHistoryCleared, ir.EventActionDiscarded,
		ir.EventActionEvicted, ir.EventDiagnostic, ir.EventMethod, ir.EventProperty,
		ir.EventDestroyed:
		return true
	}
	return false
}

// buildTimeline converts stored events to timeline entries, keeping those
// matching the kind and action filters when set.
func buildTimeline(events []ir.JournalEvent, kind, action string) []TraceEvent {
	timeline := []TraceEvent{}
	for _, ev := range events {
		if kind != "" && string(ev.Kind) != kind {
			continue
		}
		if action != "" && ev.Action != action {
			continue
		}
		te := TraceEvent{
			Seq:        ev.Seq,
			Kind:       string(ev.Kind),
			ID:         ev.ID,
			Action:     ev.Action,
			Version:    ev.Version,
			Cursor:     ev.Cursor,
			HistoryLen: ev.HistoryLen,
		}
		if len(ev.Detail) > 0 {
			te.Detail = ir.ToAny(ev.Detail).(map[string]any)
		}
		timeline = append(timeline, te)
	}
	return timeline
}

func buildStats(events []ir.JournalEvent) TraceStats {
	stats := TraceStats{
		TotalEvents: len(events),
		ByKind:      make(map[string]int),
	}
	for _, ev := range events {
		stats.ByKind[string(ev.Kind)]++
	}
	if len(events) > 0 {
		stats.FinalVersion = events[len(events)-1].Version
	}
	return stats
}

func outputSessionList(w io.Writer, list SessionList) {
	if len(list.Sessions) == 0 {
		fmt.Fprintln(w, "No sessions recorded.")
		return
	}
	fmt.Fprintln(w, "=== Sessions ===")
	for _, s := range list.Sessions {
		fmt.Fprintf(w, "  %s  %s (%d events)\n", s.ID, s.Scenario, s.Events)
	}
}

func outputTraceText(w io.Writer, result TraceResult, verbose bool) {
	fmt.Fprintf(w, "Trace for Session: %s\n", result.Session.ID)
	if result.Session.Scenario != "" {
		fmt.Fprintf(w, "Scenario: %s\n", result.Session.Scenario)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Timeline ===")
	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "  (no events)")
	}
	for _, ev := range result.Timeline {
		formatTimelineEvent(w, ev, verbose)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Total Events:  %d\n", result.Stats.TotalEvents)
	fmt.Fprintf(w, "  Final Version: %d\n", result.Stats.FinalVersion)
	for _, kind := range sortedKeys(result.Stats.ByKind) {
		fmt.Fprintf(w, "  %-16s %d\n", kind+":", result.Stats.ByKind[kind])
	}
}

func formatTimelineEvent(w io.Writer, ev TraceEvent, verbose bool) {
	line := fmt.Sprintf("  [%d] %s", ev.Seq, strings.ToUpper(ev.Kind))
	if ev.Action != "" {
		line += fmt.Sprintf(" %q", ev.Action)
	}
	fmt.Fprintf(w, "%s  v%d cursor=%d len=%d\n", line, ev.Version, ev.Cursor, ev.HistoryLen)
	if verbose && len(ev.Detail) > 0 {
		fmt.Fprintf(w, "       Detail: %s\n", formatValue(ev.Detail))
	}
	if verbose {
		fmt.Fprintf(w, "       ID: %s\n", truncateID(ev.ID))
	}
}

// formatValue formats a value for display with sorted keys.
func formatValue(v any) string {
	switch val := v.(type) {
	case map[string]any:
		parts := make([]string, 0, len(val))
		for _, k := range sortedKeys(val) {
			parts = append(parts, fmt.Sprintf("%s=%s", k, formatValue(val[k])))
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case []any:
		parts := make([]string, len(val))
		for i, elem := range val {
			parts[i] = formatValue(elem)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case nil:
		return "null"
	default:
		return fmt.Sprintf("%v", v)
	}
}

// truncateID truncates a long ID for display.
func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:8] + "..." + id[len(id)-8:]
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
