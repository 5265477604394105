package store

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/rewind/internal/ir"
	"github.com/roach88/rewind/internal/journal"
	"github.com/roach88/rewind/internal/objects"
	"github.com/roach88/rewind/internal/testutil"
)

func newRecordedJournal(t *testing.T) *journal.Journal {
	t.Helper()
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	return journal.New(objects.NewTable(nil, objects.WithLogger(quiet)),
		journal.WithClock(testutil.NewManualClock(0)),
		journal.WithLogger(quiet),
	)
}

func TestRecorder_FlushWritesSessionAndEvents(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	j := newRecordedJournal(t)

	rec := NewRecorder(s, ir.Session{ID: "s-1", Scenario: "recorder"})
	rec.Attach(j)

	j.CreateAction("A", ir.MergeDisable)
	require.NoError(t, j.CommitAction())
	_, err := j.Undo()
	require.NoError(t, err)
	assert.Equal(t, 4, rec.Pending())

	n, err := rec.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.Zero(t, rec.Pending())
	assert.Equal(t, 4, rec.Recorded())

	sess, err := s.ReadSession(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, "recorder", sess.Scenario)

	events, err := s.ReadSessionEvents(ctx, "s-1")
	require.NoError(t, err)
	var got []ir.EventKind
	for _, ev := range events {
		got = append(got, ev.Kind)
	}
	assert.Equal(t, []ir.EventKind{
		ir.EventVersionChanged, ir.EventActionCommitted,
		ir.EventUndo, ir.EventVersionChanged,
	}, got)
}

func TestRecorder_DetachStopsRecording(t *testing.T) {
	s := createTestStore(t)
	j := newRecordedJournal(t)
	rec := NewRecorder(s, createTestSession("s-1"))
	rec.Attach(j)

	require.NoError(t, j.ClearHistory(true))
	rec.Detach()
	require.NoError(t, j.ClearHistory(true))

	assert.Equal(t, 2, rec.Pending())
	require.NoError(t, rec.Close(context.Background()))
	n, err := s.CountSessionEvents(context.Background(), "s-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRecorder_FlushTwiceIsIncremental(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	j := newRecordedJournal(t)
	rec := NewRecorder(s, createTestSession("s-1"))
	rec.Attach(j)

	require.NoError(t, j.ClearHistory(true))
	n, err := rec.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.NoError(t, j.ClearHistory(false))
	n, err = rec.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 3, rec.Recorded())
}

func TestRecorder_FlushErrorKeepsBuffer(t *testing.T) {
	s := createTestStore(t)
	j := newRecordedJournal(t)
	rec := NewRecorder(s, createTestSession("s-1"))
	rec.Attach(j)
	require.NoError(t, j.ClearHistory(true))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := rec.Flush(ctx)
	require.Error(t, err)
	assert.Equal(t, 2, rec.Pending())

	n, err := rec.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

// opaqueValue satisfies ir.IRValue by embedding but has no canonical form.
type opaqueValue struct{ ir.IRString }

func TestRecorder_UnrecordableEventFailsFlush(t *testing.T) {
	s := createTestStore(t)
	rec := NewRecorder(s, createTestSession("s-1"))

	rec.Record(journal.Event{Seq: 1, Kind: ir.EventHistoryCleared})
	rec.Record(journal.Event{Seq: 2, Kind: ir.EventProperty, Detail: ir.IRObject{"value": opaqueValue{}}})
	assert.Equal(t, 1, rec.Pending())

	_, err := rec.Flush(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record property event 2")
	assert.Equal(t, 0, rec.Recorded())
}

func TestUUIDv7Generator(t *testing.T) {
	var gen SessionGenerator = UUIDv7Generator{}
	a, b := gen.Generate(), gen.Generate()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
	assert.Less(t, a, b, "UUIDv7 sorts by creation time")
}
