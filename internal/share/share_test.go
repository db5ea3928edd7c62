package share

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/armyletters/letters-server/internal/domain"
)

func TestBuilder_Links(t *testing.T) {
	b := NewBuilder("https://loveforbts.com/", "")
	l := &domain.Letter{ID: "ltr-abc", Member: domain.MemberJimin, Message: "hi"}

	links := b.Links(l)
	assert.Equal(t, "https://loveforbts.com/letter/ltr-abc", links.URL)
	assert.Equal(t, "https://loveforbts.com/api/v1/letters/ltr-abc/card.png", links.Card)
	assert.Equal(t, "Read this love letter to Jimin from ARMY! 💜", links.Text)

	wa, err := url.Parse(links.WhatsApp)
	require.NoError(t, err)
	assert.Equal(t, "wa.me", wa.Host)
	assert.Equal(t, links.Text+"\n\n"+links.URL, wa.Query().Get("text"))

	tg, err := url.Parse(links.Telegram)
	require.NoError(t, err)
	assert.Equal(t, links.URL, tg.Query().Get("url"))
	assert.Equal(t, links.Text, tg.Query().Get("text"))

	fb, err := url.Parse(links.Facebook)
	require.NoError(t, err)
	assert.Equal(t, links.URL, fb.Query().Get("u"))

	x, err := url.Parse(links.X)
	require.NoError(t, err)
	assert.Equal(t, "/intent/tweet", x.Path)
	assert.True(t, strings.HasSuffix(x.Query().Get("text"), links.URL))
}

func TestBuilder_Meta(t *testing.T) {
	b := NewBuilder("https://example.test", "Letters")
	l := &domain.Letter{
		ID:      "ltr-1",
		Member:  domain.MemberBTS,
		Message: strings.Repeat("purple ", 40),
	}

	meta := b.Meta(l)
	assert.Equal(t, "Letter to BTS - Letters", meta.Title)
	assert.Equal(t, "Letters", meta.SiteName)
	assert.Equal(t, "https://example.test/letter/ltr-1", meta.URL)
	assert.Equal(t, "https://example.test/api/v1/letters/ltr-1/card.png", meta.Image)
	assert.LessOrEqual(t, len([]rune(meta.Description)), descriptionLength)
	assert.True(t, strings.HasSuffix(meta.Description, "..."))
}

func TestExcerpt(t *testing.T) {
	assert.Equal(t, "a b", excerpt("  a \n\n b ", 10))
	assert.Equal(t, "ñññ...", excerpt("ññññññññ", 6))
}
