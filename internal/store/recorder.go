package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/rewind/internal/ir"
	"github.com/roach88/rewind/internal/journal"
)

// Recorder buffers a journal's bus events and writes them to a Store on Flush.
//
// Bus listeners run synchronously inside journal calls and have no context,
// so nothing touches the database until the caller flushes.
//
// Thread-safety: Recorder is safe for concurrent use.
type Recorder struct {
	store   *Store
	session ir.Session

	mu       sync.Mutex
	pending  []ir.JournalEvent
	wrote    bool
	recorded int
	cancel   func()

	// err is the first event that could not be recorded. Flush reports it.
	err error
}

// NewRecorder creates a recorder for one session.
func NewRecorder(s *Store, sess ir.Session) *Recorder {
	return &Recorder{store: s, session: sess}
}

// Attach subscribes the recorder to j. A recorder follows one journal at a
// time; attaching again detaches the previous one.
func (r *Recorder) Attach(j *journal.Journal) {
	r.Detach()
	cancel := j.Subscribe(r.Record)
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()
}

// Detach stops recording. Buffered events stay until Flush.
func (r *Recorder) Detach() {
	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Record buffers one event. It is the journal.Listener installed by Attach.
// An event that cannot be flattened is dropped and fails the next Flush.
func (r *Recorder) Record(e journal.Event) {
	rec, err := e.Record(r.session.ID)
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		if r.err == nil {
			r.err = err
		}
		return
	}
	r.pending = append(r.pending, rec)
}

// Pending returns the number of buffered events.
func (r *Recorder) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// Recorded returns the number of rows the recorder has inserted so far.
func (r *Recorder) Recorded() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recorded
}

// Flush writes the session row (once) and every buffered event in a single
// transaction. On error the buffer is kept, so Flush may be retried; event
// IDs are content-addressed and retries cannot duplicate rows.
func (r *Recorder) Flush(ctx context.Context) (int, error) {
	r.mu.Lock()
	batch := r.pending
	wrote := r.wrote
	recordErr := r.err
	r.mu.Unlock()

	if recordErr != nil {
		return 0, fmt.Errorf("flush session %s: %w", r.session.ID, recordErr)
	}

	if !wrote {
		if err := r.store.WriteSession(ctx, r.session); err != nil {
			return 0, fmt.Errorf("flush session %s: %w", r.session.ID, err)
		}
	}
	n, err := r.store.WriteEvents(ctx, batch)
	if err != nil {
		return 0, fmt.Errorf("flush session %s: %w", r.session.ID, err)
	}

	r.mu.Lock()
	r.wrote = true
	r.pending = r.pending[len(batch):]
	r.recorded += n
	r.mu.Unlock()
	return n, nil
}

// Close detaches and flushes.
func (r *Recorder) Close(ctx context.Context) error {
	r.Detach()
	_, err := r.Flush(ctx)
	return err
}
