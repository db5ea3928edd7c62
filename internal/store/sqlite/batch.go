package sqlite

import (
	"context"
	"sync"

	"github.com/armyletters/letters-server/internal/domain"
	domainerrors "github.com/armyletters/letters-server/internal/errors"
)

// BatchWriter imports letters one transaction at a time. SQLite handles
// durability itself, so this is a thin wrapper that tracks the count and
// notifies live subscribers on Flush.
type BatchWriter struct {
	store    *Store
	mu       sync.Mutex
	pending  []*domain.Letter
	total    int
	canceled bool
}

// NewBatchWriter creates a new batch writer. maxSize is accepted for parity
// with the Badger writer; each write is immediate.
func (s *Store) NewBatchWriter(_ int) *BatchWriter {
	return &BatchWriter{store: s}
}

// PutLetter imports a complete letter.
// Returns context.Canceled if the batch has been canceled.
func (bw *BatchWriter) PutLetter(ctx context.Context, letter *domain.Letter) error {
	bw.mu.Lock()
	if bw.canceled {
		bw.mu.Unlock()
		return context.Canceled
	}
	bw.mu.Unlock()

	if err := bw.store.ImportLetter(ctx, letter); err != nil {
		return err
	}

	bw.mu.Lock()
	bw.pending = append(bw.pending, letter)
	bw.total++
	bw.mu.Unlock()
	return nil
}

// Flush announces the imported letters to subscribers.
func (bw *BatchWriter) Flush() error {
	bw.mu.Lock()
	pending := bw.pending
	bw.pending = nil
	bw.mu.Unlock()

	for _, l := range pending {
		bw.store.afterWrite(context.Background(), l, true)
	}
	return nil
}

// Cancel marks the batch writer as canceled.
func (bw *BatchWriter) Cancel() {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	bw.canceled = true
}

// Count returns the number of letters written but not yet flushed.
func (bw *BatchWriter) Count() int {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return len(bw.pending)
}

// Total returns the number of letters written so far.
func (bw *BatchWriter) Total() int {
	bw.mu.Lock()
	defer bw.mu.Unlock()
	return bw.total
}

// ImportLetters writes complete letters, keeping their ids and timestamps.
func (s *Store) ImportLetters(ctx context.Context, letters []*domain.Letter) (int, error) {
	bw := s.NewBatchWriter(0)
	for _, l := range letters {
		if err := bw.PutLetter(ctx, l); err != nil {
			_ = bw.Flush()
			return bw.Total(), domainerrors.Write("import letter "+l.ID, err)
		}
	}
	return bw.Total(), bw.Flush()
}
