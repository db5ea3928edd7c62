// Package storetest holds the behaviour every letter store backend must
// share. Backends call Run from their own tests.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armyletters/letters-server/internal/domain"
	domainerrors "github.com/armyletters/letters-server/internal/errors"
)

// Backend is the store surface under test.
type Backend interface {
	Create(ctx context.Context, d domain.Draft) (string, error)
	GetLetter(ctx context.Context, letterID string) (*domain.Letter, error)
	QueryPage(ctx context.Context, q domain.Query, cursor string, limit int) (*domain.Page, error)
	ToggleLike(ctx context.Context, letterID, identityID string, currentlyLiked bool) (*domain.Letter, error)
	Subscribe(ctx context.Context, q domain.Query, onChange func([]*domain.Letter)) (func(), error)
}

// Factory opens an empty backend whose write timestamps come from clock.
// The backend must be closed by the factory via t.Cleanup.
type Factory func(t *testing.T, clock func() time.Time) Backend

// Clock returns strictly increasing times one millisecond apart.
func Clock() func() time.Time {
	var mu sync.Mutex
	now := time.Date(2024, 6, 13, 0, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Millisecond)
		return now
	}
}

// Draft returns a valid draft.
func Draft(name string, member domain.Member) domain.Draft {
	return domain.Draft{
		Name:    name,
		Member:  member,
		Message: "Thank you for the music, " + string(member) + "!",
		Country: "Chile",
	}
}

// Run executes the shared backend suite.
func Run(t *testing.T, open Factory) {
	t.Run("CreateAssignsServerFields", func(t *testing.T) { testCreate(t, open) })
	t.Run("CreateRejectsInvalidDrafts", func(t *testing.T) { testCreateInvalid(t, open) })
	t.Run("SortOrders", func(t *testing.T) { testSortOrders(t, open) })
	t.Run("PaginationCoversEveryLetterOnce", func(t *testing.T) { testPagination(t, open) })
	t.Run("MemberFilter", func(t *testing.T) { testMemberFilter(t, open) })
	t.Run("ForeignCursorRejected", func(t *testing.T) { testForeignCursor(t, open) })
	t.Run("ToggleLikeSetSemantics", func(t *testing.T) { testToggleLike(t, open) })
	t.Run("ToggleLikeMissingLetter", func(t *testing.T) { testToggleMissing(t, open) })
	t.Run("ConcurrentLikes", func(t *testing.T) { testConcurrentLikes(t, open) })
	t.Run("MostLikedReorders", func(t *testing.T) { testMostLikedReorders(t, open) })
	t.Run("SubscribePushesHead", func(t *testing.T) { testSubscribe(t, open) })
}

func create(t *testing.T, b Backend, name string, member domain.Member) string {
	t.Helper()
	letterID, err := b.Create(context.Background(), Draft(name, member))
	require.NoError(t, err)
	return letterID
}

func ids(letters []*domain.Letter) []string {
	out := make([]string, len(letters))
	for i, l := range letters {
		out[i] = l.ID
	}
	return out
}

func testCreate(t *testing.T, open Factory) {
	b := open(t, Clock())
	ctx := context.Background()

	d := Draft("  Ann  ", domain.MemberJin)
	d.Track = &domain.TrackSnapshot{ID: "trk", Name: "Epiphany", Artist: "BTS", AlbumCover: "https://i.scdn.co/x"}
	letterID, err := b.Create(ctx, d)
	require.NoError(t, err)
	assert.Regexp(t, `^ltr-`, letterID)

	got, err := b.GetLetter(ctx, letterID)
	require.NoError(t, err)
	assert.Equal(t, "Ann", got.Name)
	assert.Equal(t, domain.MemberJin, got.Member)
	assert.False(t, got.Timestamp.IsZero())
	assert.True(t, domain.ValidColorClass(got.ColorClass), got.ColorClass)
	assert.Zero(t, got.Likes)
	assert.Equal(t, []string{}, got.LikedBy)
	require.NotNil(t, got.Track)
	assert.Equal(t, "Epiphany", got.Track.Name)
}

func testCreateInvalid(t *testing.T, open Factory) {
	b := open(t, Clock())
	ctx := context.Background()

	tests := []struct {
		name  string
		draft domain.Draft
	}{
		{"missing name", domain.Draft{Member: domain.MemberV, Message: "hi"}},
		{"unknown member", domain.Draft{Name: "A", Member: "Nobody", Message: "hi"}},
		{"profane message", domain.Draft{Name: "A", Member: domain.MemberV, Message: "you are a pig"}},
	}
	for _, tt := range tests {
		_, err := b.Create(ctx, tt.draft)
		assert.ErrorIs(t, err, domainerrors.ErrValidation, tt.name)
	}

	page, err := b.QueryPage(ctx, domain.Query{}, "", 10)
	require.NoError(t, err)
	assert.Empty(t, page.Items, "rejected drafts must not be persisted")
}

func testSortOrders(t *testing.T, open Factory) {
	b := open(t, Clock())
	ctx := context.Background()

	a := create(t, b, "A", domain.MemberRM)
	bb := create(t, b, "B", domain.MemberRM)
	c := create(t, b, "C", domain.MemberRM)

	_, err := b.ToggleLike(ctx, a, "u1", false)
	require.NoError(t, err)
	_, err = b.ToggleLike(ctx, a, "u2", false)
	require.NoError(t, err)
	_, err = b.ToggleLike(ctx, c, "u1", false)
	require.NoError(t, err)

	tests := []struct {
		sort domain.SortOrder
		want []string
	}{
		{domain.SortNewest, []string{c, bb, a}},
		{domain.SortOldest, []string{a, bb, c}},
		{domain.SortMostLiked, []string{a, c, bb}},
	}
	for _, tt := range tests {
		page, err := b.QueryPage(ctx, domain.Query{Sort: tt.sort}, "", 10)
		require.NoError(t, err)
		if diff := cmp.Diff(tt.want, ids(page.Items)); diff != "" {
			t.Errorf("%s order mismatch (-want +got):\n%s", tt.sort, diff)
		}
		assert.False(t, page.HasMore)
		assert.Empty(t, page.NextCursor)
	}
}

func testPagination(t *testing.T, open Factory) {
	b := open(t, Clock())
	ctx := context.Background()

	var want []string
	for i := range 7 {
		want = append([]string{create(t, b, fmt.Sprintf("n%d", i), domain.MemberSuga)}, want...)
	}

	var got []string
	cursor := ""
	for pages := 0; ; pages++ {
		require.Less(t, pages, 10, "pagination did not terminate")
		page, err := b.QueryPage(ctx, domain.Query{Sort: domain.SortNewest}, cursor, 3)
		require.NoError(t, err)
		got = append(got, ids(page.Items)...)
		if !page.HasMore {
			assert.Empty(t, page.NextCursor)
			break
		}
		require.NotEmpty(t, page.NextCursor)
		cursor = page.NextCursor
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("paged ids mismatch (-want +got):\n%s", diff)
	}

	// A letter inserted at the head does not disturb the next page.
	first, err := b.QueryPage(ctx, domain.Query{}, "", 3)
	require.NoError(t, err)
	create(t, b, "late", domain.MemberSuga)
	second, err := b.QueryPage(ctx, domain.Query{}, first.NextCursor, 3)
	require.NoError(t, err)
	assert.Equal(t, want[3:6], ids(second.Items))
}

func testMemberFilter(t *testing.T, open Factory) {
	b := open(t, Clock())
	ctx := context.Background()

	v1 := create(t, b, "A", domain.MemberV)
	create(t, b, "B", domain.MemberJimin)
	v2 := create(t, b, "C", domain.MemberV)

	page, err := b.QueryPage(ctx, domain.Query{Filter: domain.FilterFor(domain.MemberV)}, "", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{v2, v1}, ids(page.Items))

	page, err = b.QueryPage(ctx, domain.Query{Filter: domain.FilterFor(domain.MemberJungkook)}, "", 10)
	require.NoError(t, err)
	assert.Empty(t, page.Items)

	page, err = b.QueryPage(ctx, domain.Query{}, "", 10)
	require.NoError(t, err)
	assert.Len(t, page.Items, 3)
}

func testForeignCursor(t *testing.T, open Factory) {
	b := open(t, Clock())
	ctx := context.Background()
	for i := range 3 {
		create(t, b, fmt.Sprintf("n%d", i), domain.MemberJHope)
	}

	page, err := b.QueryPage(ctx, domain.Query{Sort: domain.SortNewest}, "", 1)
	require.NoError(t, err)
	require.True(t, page.HasMore)

	_, err = b.QueryPage(ctx, domain.Query{Sort: domain.SortOldest}, page.NextCursor, 1)
	assert.ErrorIs(t, err, domainerrors.ErrValidation)

	_, err = b.QueryPage(ctx, domain.Query{Filter: domain.FilterFor(domain.MemberJHope)}, page.NextCursor, 1)
	assert.ErrorIs(t, err, domainerrors.ErrValidation)

	_, err = b.QueryPage(ctx, domain.Query{}, "%%%not-a-cursor", 1)
	assert.ErrorIs(t, err, domainerrors.ErrValidation)
}

func testToggleLike(t *testing.T, open Factory) {
	b := open(t, Clock())
	ctx := context.Background()
	letterID := create(t, b, "A", domain.MemberBTS)

	got, err := b.ToggleLike(ctx, letterID, "u1", false)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Likes)
	assert.Equal(t, []string{"u1"}, got.LikedBy)

	// Same toggle again: the stored set already contains u1.
	got, err = b.ToggleLike(ctx, letterID, "u1", false)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Likes)

	got, err = b.ToggleLike(ctx, letterID, "u1", true)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Likes)
	assert.Empty(t, got.LikedBy)

	got, err = b.ToggleLike(ctx, letterID, "u1", true)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Likes, "likes never go negative")

	stored, err := b.GetLetter(ctx, letterID)
	require.NoError(t, err)
	assert.Equal(t, stored.Likes, len(stored.LikedBy))
}

func testToggleMissing(t *testing.T, open Factory) {
	b := open(t, Clock())
	_, err := b.ToggleLike(context.Background(), "ltr-missing", "u1", false)
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)

	_, err = b.GetLetter(context.Background(), "ltr-missing")
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)
}

func testConcurrentLikes(t *testing.T, open Factory) {
	b := open(t, Clock())
	ctx := context.Background()
	letterID := create(t, b, "A", domain.MemberJungkook)

	const n = 16
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := b.ToggleLike(ctx, letterID, fmt.Sprintf("user-%d", i), false)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := b.GetLetter(ctx, letterID)
	require.NoError(t, err)
	assert.Equal(t, n, got.Likes)
	assert.Len(t, got.LikedBy, n)
}

func testMostLikedReorders(t *testing.T, open Factory) {
	b := open(t, Clock())
	ctx := context.Background()

	a := create(t, b, "A", domain.MemberJimin)
	c := create(t, b, "C", domain.MemberJimin)

	q := domain.Query{Filter: domain.FilterFor(domain.MemberJimin), Sort: domain.SortMostLiked}
	page, err := b.QueryPage(ctx, q, "", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{c, a}, ids(page.Items))

	_, err = b.ToggleLike(ctx, a, "u1", false)
	require.NoError(t, err)

	page, err = b.QueryPage(ctx, q, "", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{a, c}, ids(page.Items))
}

func testSubscribe(t *testing.T, open Factory) {
	b := open(t, Clock())
	ctx := context.Background()
	first := create(t, b, "A", domain.MemberRM)

	updates := make(chan []string, 16)
	unsubscribe, err := b.Subscribe(ctx, domain.Query{Filter: domain.FilterFor(domain.MemberRM)}, func(letters []*domain.Letter) {
		updates <- ids(letters)
	})
	require.NoError(t, err)
	defer unsubscribe()

	next := func() []string {
		select {
		case got := <-updates:
			return got
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for live update")
			return nil
		}
	}

	assert.Equal(t, []string{first}, next())

	second := create(t, b, "B", domain.MemberRM)
	assert.Equal(t, []string{second, first}, next())
}
