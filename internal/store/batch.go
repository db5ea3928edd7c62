package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"

	"github.com/armyletters/letters-server/internal/domain"
	domainerrors "github.com/armyletters/letters-server/internal/errors"
)

// BatchWriter provides efficient bulk imports using BadgerDB's WriteBatch.
// Imported letters keep their ids and timestamps; live subscriptions are not
// notified until Flush.
type BatchWriter struct {
	store     *Store
	batch     *badger.WriteBatch
	maxSize   int
	count     int
	total     int
	autoFlush bool
	pending   []*domain.Letter
}

// NewBatchWriter creates a new batch writer that will auto-flush when maxSize is reached
func (s *Store) NewBatchWriter(maxSize int) *BatchWriter {
	if maxSize <= 0 {
		maxSize = 500
	}
	return &BatchWriter{
		store:     s,
		batch:     s.db.NewWriteBatch(),
		maxSize:   maxSize,
		autoFlush: true,
	}
}

// PutLetter adds a complete letter to the batch. The letter must be new.
func (b *BatchWriter) PutLetter(_ context.Context, letter *domain.Letter) error {
	letter.Normalize()
	letter.Timestamp = letter.Timestamp.UTC()

	data, err := json.Marshal(letter)
	if err != nil {
		return fmt.Errorf("marshal letter: %w", err)
	}
	if err := b.batch.Set(letterKey(letter.ID), data); err != nil {
		return fmt.Errorf("batch set letter: %w", err)
	}
	for _, key := range letterIndexKeys(letter) {
		if err := b.batch.Set(key, []byte(letter.ID)); err != nil {
			return fmt.Errorf("batch set index: %w", err)
		}
	}

	b.count++
	b.pending = append(b.pending, letter)

	// Auto-flush if batch is full
	if b.autoFlush && b.count >= b.maxSize {
		if err := b.Flush(); err != nil {
			return fmt.Errorf("auto flush: %w", err)
		}
	}

	return nil
}

// Flush commits all pending writes in the batch
func (b *BatchWriter) Flush() error {
	if b.count == 0 {
		return nil // Nothing to flush
	}

	if err := b.batch.Flush(); err != nil {
		return fmt.Errorf("flush batch: %w", err)
	}

	b.store.logger.LogAttrs(context.Background(), slog.LevelInfo, "batch flushed",
		slog.Int("count", b.count),
	)

	for _, l := range b.pending {
		b.store.afterWrite(context.Background(), l, true)
	}

	// Reset for next batch
	b.total += b.count
	b.count = 0
	b.pending = nil
	b.batch = b.store.db.NewWriteBatch()

	return nil
}

// Cancel discards all pending writes in the batch
func (b *BatchWriter) Cancel() {
	b.batch.Cancel()
	b.count = 0
	b.pending = nil
}

// Count returns the number of operations in the current batch
func (b *BatchWriter) Count() int {
	return b.count
}

// Total returns the number of letters flushed so far.
func (b *BatchWriter) Total() int {
	return b.total
}

// ImportLetters writes complete letters, keeping their ids and timestamps.
func (s *Store) ImportLetters(ctx context.Context, letters []*domain.Letter) (int, error) {
	bw := s.NewBatchWriter(0)
	for _, l := range letters {
		if err := ctx.Err(); err != nil {
			bw.Cancel()
			return bw.Total(), err
		}
		if err := bw.PutLetter(ctx, l); err != nil {
			bw.Cancel()
			return bw.Total(), domainerrors.Write("import letter "+l.ID, err)
		}
	}
	if err := bw.Flush(); err != nil {
		return bw.Total(), domainerrors.Write("import letters", err)
	}
	return bw.Total(), nil
}
