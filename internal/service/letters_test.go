package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armyletters/letters-server/internal/domain"
	domainerrors "github.com/armyletters/letters-server/internal/errors"
	"github.com/armyletters/letters-server/internal/media/card"
	"github.com/armyletters/letters-server/internal/search"
	"github.com/armyletters/letters-server/internal/share"
	"github.com/armyletters/letters-server/internal/store"
	"github.com/armyletters/letters-server/internal/store/storetest"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeCovers struct {
	hash  string
	err   error
	calls atomic.Int32
}

func (f *fakeCovers) BlurHash(_ context.Context, _ string) (string, error) {
	f.calls.Add(1)
	return f.hash, f.err
}

type fixture struct {
	store   *store.Store
	letters *LetterService
	covers  *fakeCovers
	cards   *card.Cache
	dir     string
}

func setup(t *testing.T) *fixture {
	t.Helper()

	st, err := store.New("", nil, nil, store.Options{Clock: storetest.Clock()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	dir := t.TempDir()
	cards, err := card.NewCache(dir)
	require.NoError(t, err)

	covers := &fakeCovers{hash: "LEHV6nWB2yk8pyo0adR*.7kCMdnj"}
	svc := NewLetterService(st, covers, cards, share.NewBuilder("https://letters.test", ""), nil, quietLogger())
	return &fixture{store: st, letters: svc, covers: covers, cards: cards, dir: dir}
}

func draft(name string, member domain.Member) domain.Draft {
	return storetest.Draft(name, member)
}

func TestLetterService_CreateComputesCoverPlaceholder(t *testing.T) {
	f := setup(t)
	d := draft("Anna", domain.MemberJin)
	d.Track = &domain.TrackSnapshot{ID: "trk-1", Name: "Epiphany", Artist: "Jin", AlbumCover: "https://img.test/1.jpg"}

	letter, err := f.letters.Create(context.Background(), d)
	require.NoError(t, err)
	require.NotNil(t, letter.Track)
	assert.Equal(t, f.covers.hash, letter.Track.CoverBlurHash)
	assert.Equal(t, int32(1), f.covers.calls.Load())
	assert.Empty(t, d.Track.CoverBlurHash)
}

func TestLetterService_CreateSurvivesCoverFailure(t *testing.T) {
	f := setup(t)
	f.covers.hash = ""
	f.covers.err = errors.New("timeout")

	d := draft("Anna", domain.MemberJin)
	d.Track = &domain.TrackSnapshot{ID: "trk-1", Name: "Epiphany", Artist: "Jin", AlbumCover: "https://img.test/1.jpg"}

	letter, err := f.letters.Create(context.Background(), d)
	require.NoError(t, err)
	assert.Empty(t, letter.Track.CoverBlurHash)
}

func TestLetterService_CreateValidation(t *testing.T) {
	f := setup(t)

	tests := []struct {
		name   string
		mutate func(*domain.Draft)
	}{
		{"profane message", func(d *domain.Draft) { d.Message = "you are a pig" }},
		{"song without id", func(d *domain.Draft) { d.Track = &domain.TrackSnapshot{Name: "x"} }},
		{"unknown member", func(d *domain.Draft) { d.Member = "Nobody" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := draft("Anna", domain.MemberRM)
			tt.mutate(&d)
			_, err := f.letters.Create(context.Background(), d)
			assert.ErrorIs(t, err, domainerrors.ErrValidation)
		})
	}

	count, err := f.store.CountLetters(context.Background())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestLetterService_ToggleLike(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	letter, err := f.letters.Create(ctx, draft("Anna", domain.MemberV))
	require.NoError(t, err)

	_, err = f.letters.ToggleLike(ctx, letter.ID, "  ", false)
	assert.ErrorIs(t, err, domainerrors.ErrValidation)

	updated, err := f.letters.ToggleLike(ctx, letter.ID, "u1", false)
	require.NoError(t, err)
	assert.Equal(t, 1, updated.Likes)

	updated, err = f.letters.ToggleLike(ctx, letter.ID, "u1", true)
	require.NoError(t, err)
	assert.Equal(t, 0, updated.Likes)

	_, err = f.letters.ToggleLike(ctx, "ltr-missing", "u1", false)
	assert.ErrorIs(t, err, domainerrors.ErrNotFound)
}

func TestLetterService_CardIsCached(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	letter, err := f.letters.Create(ctx, draft("Anna", domain.MemberSuga))
	require.NoError(t, err)

	first, got, err := f.letters.Card(ctx, letter.ID)
	require.NoError(t, err)
	assert.Equal(t, letter.ID, got.ID)
	assert.FileExists(t, filepath.Join(f.dir, "cards", letter.ID+".png"))

	second, _, err := f.letters.Card(ctx, letter.ID)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	_, _, err = f.letters.Card(ctx, "ltr-missing")
	assert.ErrorIs(t, err, store.ErrLetterNotFound)
}

func TestLetterService_Share(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	letter, err := f.letters.Create(ctx, draft("Anna", domain.MemberJungkook))
	require.NoError(t, err)

	res, err := f.letters.Share(ctx, letter.ID)
	require.NoError(t, err)
	assert.Equal(t, "https://letters.test/letter/"+letter.ID, res.Links.URL)
	assert.Equal(t, "Letter to Jungkook - "+share.DefaultSiteName, res.Meta.Title)
}

func TestLetterService_CheckText(t *testing.T) {
	f := setup(t)
	assert.True(t, f.letters.CheckText("what a PIG").HasMatch)
	assert.False(t, f.letters.CheckText("pigeon").HasMatch)
}

func TestSearchService(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	index, err := search.NewSearchIndex(search.Options{DataPath: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = index.Close() })
	svc := NewSearchService(index, f.store, quietLogger())

	anna, err := f.letters.Create(ctx, draft("Anna", domain.MemberJimin))
	require.NoError(t, err)
	_, err = f.letters.Create(ctx, draft("Bob", domain.MemberV))
	require.NoError(t, err)

	require.NoError(t, svc.EnsureIndexed(ctx))

	res, err := svc.Search(ctx, search.SearchParams{Query: "ann"})
	require.NoError(t, err)
	require.NotEmpty(t, res.Letters)
	assert.Equal(t, anna.ID, res.Letters[0].ID)
	assert.Equal(t, "Anna", res.Letters[0].Name)

	res, err = svc.Search(ctx, search.SearchParams{Member: domain.MemberV})
	require.NoError(t, err)
	require.Len(t, res.Letters, 1)
	assert.Equal(t, "Bob", res.Letters[0].Name)

	_, err = svc.Search(ctx, search.SearchParams{Member: "Nobody"})
	assert.ErrorIs(t, err, domainerrors.ErrValidation)

	n, err := svc.Reindex(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
