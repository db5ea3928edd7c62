package card

import (
	"bytes"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armyletters/letters-server/internal/domain"
)

func testLetter() *domain.Letter {
	return &domain.Letter{
		ID:         "ltr-1",
		Name:       "Anna",
		Member:     domain.MemberJHope,
		Message:    "Thank you for the sunshine.\nSee you at the next concert!",
		Country:    "Chile",
		Timestamp:  time.Date(2024, 6, 13, 0, 0, 0, 0, time.UTC),
		ColorClass: "card-3",
		LikedBy:    []string{},
		Track:      &domain.TrackSnapshot{Name: "Hope World", Artist: "j-hope"},
	}
}

func TestRenderPNG(t *testing.T) {
	data, err := RenderPNG(testLetter())
	require.NoError(t, err)

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, Width, img.Bounds().Dx())
	assert.Equal(t, Height, img.Bounds().Dy())

	// The corner is outside every text and panel area.
	r, g, b, _ := img.At(1, 1).RGBA()
	want := Background("card-3")
	assert.Equal(t, uint32(want.R), r>>8)
	assert.Equal(t, uint32(want.G), g>>8)
	assert.Equal(t, uint32(want.B), b>>8)
}

func TestRender_DifferentClassesDiffer(t *testing.T) {
	a := testLetter()
	b := testLetter()
	b.ColorClass = "card-5"

	assert.NotEqual(t, Render(a).At(1, 1), Render(b).At(1, 1))
}

func TestBackground(t *testing.T) {
	seen := map[string]bool{}
	for _, class := range domain.ColorClasses {
		hex := Hex(class)
		assert.Len(t, hex, 7)
		assert.False(t, seen[hex], "duplicate colour for %s", class)
		seen[hex] = true
	}
	assert.Equal(t, Background("card-1"), Background("unknown"))
}

func TestWrap(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		width    int
		maxLines int
		want     []string
	}{
		{"fits", "hello world", 20, 3, []string{"hello world"}},
		{"breaks on words", "hello there world", 11, 3, []string{"hello there", "world"}},
		{"keeps paragraphs", "a\nb", 10, 3, []string{"a", "b"}},
		{"splits long words", "abcdefghij", 4, 5, []string{"abcd", "efgh", "ij"}},
		{"truncates", "one two three four", 5, 2, []string{"one", "tw..."}},
		{"counts characters", "ñañañaña ok", 8, 2, []string{"ñañañaña", "ok"}},
		{"zero width", "x", 0, 2, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Wrap(tt.text, tt.width, tt.maxLines))
		})
	}
}

func TestFilename(t *testing.T) {
	assert.Equal(t, "letter-to-j-hope.png", Filename(testLetter()))
}

func TestCache(t *testing.T) {
	dir := t.TempDir()
	c, err := NewCache(dir)
	require.NoError(t, err)

	_, err = c.Get("ltr-1")
	assert.ErrorIs(t, err, ErrNotCached)

	require.NoError(t, c.Save("ltr-1", []byte("png")))
	data, err := c.Get("ltr-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("png"), data)
	assert.Equal(t, filepath.Join(dir, "cards", "ltr-1.png"), c.Path("ltr-1"))

	entries, err := os.ReadDir(filepath.Join(dir, "cards"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	require.NoError(t, c.Delete("ltr-1"))
	require.NoError(t, c.Delete("ltr-1"))
	_, err = c.Get("ltr-1")
	assert.ErrorIs(t, err, ErrNotCached)

	assert.Error(t, c.Save("", []byte("x")))
	assert.Error(t, c.Save("ltr-2", nil))

	_, err = NewCache("")
	assert.Error(t, err)
}

func TestCache_Concurrent(t *testing.T) {
	c, err := NewCache(t.TempDir())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = c.Save("ltr-1", []byte(strings.Repeat("x", 64)))
		}()
		go func() {
			defer wg.Done()
			_, _ = c.Get("ltr-1")
		}()
	}
	wg.Wait()

	data, err := c.Get("ltr-1")
	require.NoError(t, err)
	assert.Len(t, data, 64)
}

func TestETag(t *testing.T) {
	assert.Equal(t, ETag([]byte("a")), ETag([]byte("a")))
	assert.NotEqual(t, ETag([]byte("a")), ETag([]byte("b")))
	assert.True(t, strings.HasPrefix(ETag([]byte("a")), `"`))
}
