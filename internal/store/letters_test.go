package store

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/armyletters/letters-server/internal/domain"
	"github.com/armyletters/letters-server/internal/store/storetest"
)

func setupTestStore(t *testing.T, clock func() time.Time) *Store {
	t.Helper()

	s, err := New(filepath.Join(t.TempDir(), "letters.db"), nil, NewNoopEmitter(), Options{Clock: clock})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_Backend(t *testing.T) {
	storetest.Run(t, func(t *testing.T, clock func() time.Time) storetest.Backend {
		return setupTestStore(t, clock)
	})
}

type recordingEmitter struct {
	events chan any
}

func (r *recordingEmitter) Emit(event any) { r.events <- event }

func TestStore_EmitsLetterEvents(t *testing.T) {
	emitter := &recordingEmitter{events: make(chan any, 8)}
	s, err := New("", nil, emitter, Options{Clock: storetest.Clock()})
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	letterID, err := s.Create(ctx, storetest.Draft("Ann", domain.MemberV))
	require.NoError(t, err)
	_, err = s.ToggleLike(ctx, letterID, "u1", false)
	require.NoError(t, err)
	// No-op toggle emits nothing.
	_, err = s.ToggleLike(ctx, letterID, "u1", false)
	require.NoError(t, err)

	require.Len(t, emitter.events, 2)
}

func TestStore_BackfillRepairsLikeCounts(t *testing.T) {
	s := setupTestStore(t, storetest.Clock())
	ctx := context.Background()

	broken := &domain.Letter{
		ID:        "ltr-legacy",
		Name:      "Old",
		Member:    domain.MemberSuga,
		Message:   "from before likes existed",
		Timestamp: time.Date(2023, 3, 9, 0, 0, 0, 0, time.UTC),
		Likes:     5,
		LikedBy:   []string{"u1", "u1", "u2"},
	}
	require.NoError(t, s.db.Update(func(txn *badger.Txn) error {
		return s.putLetter(txn, broken, nil)
	}))
	_, err := s.Create(ctx, storetest.Draft("New", domain.MemberSuga))
	require.NoError(t, err)

	result, err := s.Backfill(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Scanned)
	assert.Equal(t, 1, result.Repaired)

	got, err := s.GetLetter(ctx, "ltr-legacy")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Likes)
	assert.Equal(t, []string{"u1", "u2"}, got.LikedBy)
	assert.Equal(t, "card-1", got.ColorClass)

	// The stale likes index entry is gone: the letter appears once.
	page, err := s.QueryPage(ctx, domain.Query{Sort: domain.SortMostLiked}, "", 10)
	require.NoError(t, err)
	assert.Len(t, page.Items, 2)
	assert.Equal(t, "ltr-legacy", page.Items[0].ID)

	again, err := s.Backfill(ctx)
	require.NoError(t, err)
	assert.Zero(t, again.Repaired)
}

func TestBatchWriter_ImportsLetters(t *testing.T) {
	s := setupTestStore(t, storetest.Clock())
	ctx := context.Background()

	batch := s.NewBatchWriter(2)
	base := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	for i, name := range []string{"a", "b", "c"} {
		require.NoError(t, batch.PutLetter(ctx, &domain.Letter{
			ID:         "ltr-" + name,
			Name:       name,
			Member:     domain.MemberJin,
			Message:    "hello",
			Timestamp:  base.Add(time.Duration(i) * time.Hour),
			ColorClass: "card-3",
		}))
	}
	assert.Equal(t, 1, batch.Count(), "auto flushed after two")
	require.NoError(t, batch.Flush())
	assert.Equal(t, 3, batch.Total())

	count, err := s.CountLetters(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	page, err := s.QueryPage(ctx, domain.Query{Filter: domain.FilterFor(domain.MemberJin)}, "", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"ltr-c", "ltr-b", "ltr-a"}, []string{page.Items[0].ID, page.Items[1].ID, page.Items[2].ID})
}

func TestHub_NoGoroutineLeaks(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	s, err := New("", nil, NewNoopEmitter(), Options{Clock: storetest.Clock(), LiveCap: 2})
	require.NoError(t, err)

	ctx := context.Background()
	heads := make(chan int, 32)
	var unsubscribes []func()
	for _, m := range []domain.Member{domain.MemberRM, domain.MemberV, ""} {
		unsub, err := s.Subscribe(ctx, domain.Query{Filter: domain.Filter{Member: m}}, func(letters []*domain.Letter) {
			heads <- len(letters)
		})
		require.NoError(t, err)
		unsubscribes = append(unsubscribes, unsub)
	}
	assert.Equal(t, 3, s.Hub().Len())

	for range 3 {
		_, err := s.Create(ctx, storetest.Draft("Ann", domain.MemberRM))
		require.NoError(t, err)
	}

	assert.Eventually(t, func() bool {
		for {
			select {
			case n := <-heads:
				if n == 2 {
					return true
				}
			default:
				return false
			}
		}
	}, 5*time.Second, 10*time.Millisecond, "head is capped at LiveCap")

	unsubscribes[0]()
	unsubscribes[0]() // idempotent
	assert.Eventually(t, func() bool { return s.Hub().Len() == 2 }, time.Second, 10*time.Millisecond)

	require.NoError(t, s.Close())

	_, err = s.Hub().Subscribe(ctx, domain.Query{}, func([]*domain.Letter) {})
	assert.ErrorIs(t, err, ErrHubClosed)
}

func TestStore_ConcurrentLikesInMemory(t *testing.T) {
	s, err := New("", nil, NewNoopEmitter(), Options{Clock: storetest.Clock()})
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()

	l, err := s.CreateLetter(ctx, storetest.Draft("Ann", domain.MemberJin))
	require.NoError(t, err)

	const n = 32
	var wg sync.WaitGroup
	var failed atomic.Int32
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.ToggleLike(ctx, l.ID, fmt.Sprintf("fan-%d", i), false); err != nil {
				failed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Zero(t, failed.Load())
	got, err := s.GetLetter(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, n, got.Likes)
	assert.Len(t, got.LikedBy, n)
}

func TestLetterLocks_SameLetterSameStripe(t *testing.T) {
	var locks letterLocks
	unlock := locks.lock("ltr-1")
	acquired := make(chan struct{})
	go func() {
		defer close(acquired)
		locks.lock("ltr-1")()
	}()

	select {
	case <-acquired:
		t.Fatal("second lock on the same letter did not wait")
	case <-time.After(20 * time.Millisecond):
	}
	unlock()
	<-acquired
}
