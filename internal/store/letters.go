package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/armyletters/letters-server/internal/domain"
	domainerrors "github.com/armyletters/letters-server/internal/errors"
	"github.com/armyletters/letters-server/internal/id"
	"github.com/armyletters/letters-server/internal/sse"
)

// Like toggles on one letter are serialized in-process; these retries only
// cover conflicts with other writers such as backfill.
const (
	maxTxnRetries = 8
	retryBackoff  = 2 * time.Millisecond
)

// CreateLetter validates d and persists it as a new letter. The store assigns
// the id, timestamp, colour and an empty like set.
func (s *Store) CreateLetter(ctx context.Context, d domain.Draft) (*domain.Letter, error) {
	if err := s.validator.Validate(d); err != nil {
		return nil, err
	}

	letterID, err := id.Generate(id.PrefixLetter)
	if err != nil {
		return nil, domainerrors.Write("create letter", err)
	}

	letter := NewLetter(letterID, d, s.now())

	err = s.db.Update(func(txn *badger.Txn) error {
		return s.putLetter(txn, letter, nil)
	})
	if err != nil {
		return nil, domainerrors.Write("create letter", err)
	}

	s.logger.Info("letter created", "id", letter.ID, "member", letter.Member)
	s.afterWrite(ctx, letter, true)
	return letter.Clone(), nil
}

// NewLetter builds the stored form of a draft.
func NewLetter(letterID string, d domain.Draft, now time.Time) *domain.Letter {
	letter := &domain.Letter{
		ID:         letterID,
		Name:       strings.TrimSpace(d.Name),
		Member:     d.Member,
		Message:    strings.TrimSpace(d.Message),
		Country:    strings.TrimSpace(d.Country),
		Timestamp:  now.UTC(),
		ColorClass: domain.RandomColorClass(),
		Likes:      0,
		LikedBy:    []string{},
	}
	if d.Track != nil {
		t := *d.Track
		letter.Track = &t
	}
	return letter
}

// Create implements the feed adapter contract: it returns only the new id.
func (s *Store) Create(ctx context.Context, d domain.Draft) (string, error) {
	letter, err := s.CreateLetter(ctx, d)
	if err != nil {
		return "", err
	}
	return letter.ID, nil
}

// GetLetter retrieves a letter by id.
func (s *Store) GetLetter(_ context.Context, letterID string) (*domain.Letter, error) {
	var letter domain.Letter
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, letterKey(letterID), &letter)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrLetterNotFound
	}
	if err != nil {
		return nil, domainerrors.Read("get letter", err)
	}
	letter.Normalize()
	return &letter, nil
}

// LetterExists reports whether a letter with the id is stored.
func (s *Store) LetterExists(_ context.Context, letterID string) (bool, error) {
	return s.exists(letterKey(letterID))
}

// QueryPage returns one page of letters for q, starting after cursor.
func (s *Store) QueryPage(_ context.Context, q domain.Query, cursor string, limit int) (*domain.Page, error) {
	if q.Sort == "" {
		q.Sort = domain.SortNewest
	}
	limit = ClampLimit(limit, s.pageSize)
	prefix := queryIndexPrefix(q)

	startKey, err := CursorKey(cursor, q, string(prefix))
	if err != nil {
		return nil, err
	}

	page := &domain.Page{Items: []*domain.Letter{}}
	var lastKey string

	err = s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.Reverse = queryReverse(q)
		opts.PrefetchValues = false // index values are only the letter id

		it := txn.NewIterator(opts)
		defer it.Close()

		// Start from cursor or the edge of the range.
		switch {
		case startKey != "":
			it.Seek([]byte(startKey))
			// Skip the cursor key itself (we've already returned it)
			if it.ValidForPrefix(prefix) && string(it.Item().Key()) == startKey {
				it.Next()
			}
		case opts.Reverse:
			it.Seek(append(append([]byte{}, prefix...), 0xFF))
		default:
			it.Seek(prefix)
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()

			// One extra entry tells us whether another page exists.
			if len(page.Items) == limit {
				page.HasMore = true
				break
			}

			letterID, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}

			var letter domain.Letter
			if err := getJSON(txn, letterKey(string(letterID)), &letter); err != nil {
				if errors.Is(err, badger.ErrKeyNotFound) {
					s.logger.Warn("dangling letter index entry", "key", string(item.Key()))
					continue
				}
				return fmt.Errorf("load letter %s: %w", letterID, err)
			}
			letter.Normalize()

			page.Items = append(page.Items, &letter)
			lastKey = string(item.KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return nil, domainerrors.Read("query letters", err)
	}

	if page.HasMore {
		page.NextCursor = EncodeCursor(q.Sort, lastKey)
	}
	return page, nil
}

// ToggleLike flips identityID's like on a letter. currentlyLiked is the
// caller's view; the stored set decides the outcome, so repeating a toggle
// whose effect is already present changes nothing.
func (s *Store) ToggleLike(ctx context.Context, letterID, identityID string, currentlyLiked bool) (*domain.Letter, error) {
	return s.SetLike(ctx, letterID, identityID, !currentlyLiked)
}

// SetLike adds or removes identityID from the letter's like set in one
// transaction and keeps likes equal to the set size.
func (s *Store) SetLike(ctx context.Context, letterID, identityID string, liked bool) (*domain.Letter, error) {
	if strings.TrimSpace(identityID) == "" {
		return nil, domainerrors.Validation("identity_id is required")
	}

	unlock := s.letterLocks.lock(letterID)
	defer unlock()

	var updated *domain.Letter
	var changed bool

	var err error
	for attempt := range maxTxnRetries {
		err = s.db.Update(func(txn *badger.Txn) error {
			var letter domain.Letter
			if err := getJSON(txn, letterKey(letterID), &letter); err != nil {
				return err
			}
			letter.Normalize()
			prev := letter.Clone()

			changed = letter.ApplyLike(identityID, liked)
			updated = &letter
			if !changed {
				return nil
			}
			return s.putLetter(txn, &letter, prev)
		})
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
		s.logger.Debug("like toggle conflict, retrying", "letter_id", letterID, "attempt", attempt+1)
		select {
		case <-ctx.Done():
			return nil, domainerrors.Write("toggle like", ctx.Err())
		case <-time.After(retryBackoff << attempt):
		}
	}

	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
		return nil, ErrLetterNotFound
	case err != nil:
		return nil, domainerrors.Write("toggle like", err)
	}

	if changed {
		s.afterWrite(ctx, updated, false)
	}
	return updated.Clone(), nil
}

// ListAllLetters returns every stored letter, newest first.
func (s *Store) ListAllLetters(ctx context.Context) ([]*domain.Letter, error) {
	var letters []*domain.Letter
	err := s.EachLetter(ctx, func(l *domain.Letter) error {
		letters = append(letters, l)
		return nil
	})
	if err != nil {
		return nil, err
	}
	domain.SortNewest.Sort(letters)
	return letters, nil
}

// EachLetter calls fn for every stored letter in key order.
func (s *Store) EachLetter(_ context.Context, fn func(*domain.Letter) error) error {
	prefix := []byte(letterPrefix)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var letter domain.Letter
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &letter)
			})
			if err != nil {
				return err
			}
			if err := fn(&letter); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return domainerrors.Read("list letters", err)
	}
	return nil
}

// CountLetters returns the number of stored letters.
func (s *Store) CountLetters(_ context.Context) (int, error) {
	prefix := []byte(letterPrefix)
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, domainerrors.Read("count letters", err)
	}
	return count, nil
}

// BackfillResult summarises a backfill run.
type BackfillResult struct {
	Scanned  int `json:"scanned"`
	Repaired int `json:"repaired"`
}

// Backfill repairs letters written before the like set existed or whose
// count drifted from the set, rewriting their index entries.
func (s *Store) Backfill(ctx context.Context) (*BackfillResult, error) {
	result := &BackfillResult{}
	var drifted []string

	err := s.EachLetter(ctx, func(l *domain.Letter) error {
		result.Scanned++
		if l.Normalize() {
			drifted = append(drifted, l.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, letterID := range drifted {
		repaired, err := s.repairLetter(letterID)
		if err != nil {
			return result, domainerrors.Write("backfill letter "+letterID, err)
		}
		if repaired != nil {
			result.Repaired++
			s.afterWrite(ctx, repaired, false)
		}
	}

	s.logger.Info("letter backfill complete", "scanned", result.Scanned, "repaired", result.Repaired)
	return result, nil
}

// repairLetter re-reads a letter under its lock and rewrites it if it still
// needs normalizing. It returns nil when nothing changed.
func (s *Store) repairLetter(letterID string) (*domain.Letter, error) {
	unlock := s.letterLocks.lock(letterID)
	defer unlock()

	var repaired *domain.Letter
	err := s.db.Update(func(txn *badger.Txn) error {
		var letter domain.Letter
		if err := getJSON(txn, letterKey(letterID), &letter); err != nil {
			return err
		}
		prev := letter.Clone()
		if !letter.Normalize() {
			return nil
		}
		repaired = &letter
		return s.putLetter(txn, &letter, prev)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	return repaired, err
}

// Subscribe registers a live subscription for q. See Hub.Subscribe.
func (s *Store) Subscribe(ctx context.Context, q domain.Query, onChange func([]*domain.Letter)) (func(), error) {
	return s.hub.Subscribe(ctx, q, onChange)
}

// putLetter writes letter and its index entries, replacing prev's entries.
func (s *Store) putLetter(txn *badger.Txn, letter, prev *domain.Letter) error {
	if prev != nil {
		for _, key := range letterIndexKeys(prev) {
			if err := txn.Delete(key); err != nil {
				return fmt.Errorf("delete index: %w", err)
			}
		}
	}
	if err := setJSON(txn, letterKey(letter.ID), letter); err != nil {
		return err
	}
	for _, key := range letterIndexKeys(letter) {
		if err := txn.Set(key, []byte(letter.ID)); err != nil {
			return fmt.Errorf("set index: %w", err)
		}
	}
	return nil
}

// afterWrite fans a committed change out to live subscriptions, SSE clients
// and the search index.
func (s *Store) afterWrite(ctx context.Context, letter *domain.Letter, created bool) {
	s.hub.Notify(letter)

	if created {
		s.emitter.Emit(sse.NewLetterCreatedEvent(letter.Clone()))
	} else {
		s.emitter.Emit(sse.NewLetterUpdatedEvent(letter.Clone()))
	}

	if s.searchIndexer != nil {
		indexed := letter.Clone()
		go func() {
			if err := s.searchIndexer.IndexLetter(context.WithoutCancel(ctx), indexed); err != nil {
				s.logger.Warn("failed to index letter", "id", indexed.ID, "error", err)
			}
		}()
	}
}
