package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armyletters/letters-server/internal/domain"
	domainerrors "github.com/armyletters/letters-server/internal/errors"
)

type fakeSongs struct {
	tracks  []domain.Track
	err     error
	queries []string
}

func (f *fakeSongs) Search(_ context.Context, q string) ([]domain.Track, error) {
	f.queries = append(f.queries, q)
	return f.tracks, f.err
}

func TestSongService_Search(t *testing.T) {
	t.Run("blank query skips lookup", func(t *testing.T) {
		fake := &fakeSongs{}
		tracks, err := NewSongService(fake, quietLogger()).Search(context.Background(), "   ")
		require.NoError(t, err)
		assert.NotNil(t, tracks)
		assert.Empty(t, tracks)
		assert.Empty(t, fake.queries)
	})

	t.Run("trims and forwards", func(t *testing.T) {
		fake := &fakeSongs{tracks: []domain.Track{{ID: "1", Name: "Dynamite"}}}
		tracks, err := NewSongService(fake, quietLogger()).Search(context.Background(), "  dyna ")
		require.NoError(t, err)
		assert.Len(t, tracks, 1)
		assert.Equal(t, []string{"dyna"}, fake.queries)
	})

	t.Run("nil result becomes empty list", func(t *testing.T) {
		tracks, err := NewSongService(&fakeSongs{}, quietLogger()).Search(context.Background(), "x")
		require.NoError(t, err)
		assert.NotNil(t, tracks)
	})

	t.Run("overlong query", func(t *testing.T) {
		fake := &fakeSongs{}
		_, err := NewSongService(fake, quietLogger()).Search(context.Background(), strings.Repeat("a", 101))
		assert.ErrorIs(t, err, domainerrors.ErrValidation)
		assert.Empty(t, fake.queries)
	})

	t.Run("lookup failure passes through", func(t *testing.T) {
		fake := &fakeSongs{err: domainerrors.Lookup(assert.AnError)}
		_, err := NewSongService(fake, quietLogger()).Search(context.Background(), "x")
		assert.ErrorIs(t, err, domainerrors.ErrLookup)
	})
}
