// Package share builds public links and Open Graph metadata for letters.
package share

import (
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/armyletters/letters-server/internal/domain"
)

// DefaultSiteName is used when no site name is configured.
const DefaultSiteName = "Love for BTS"

const descriptionLength = 160

// Links are the public URL of a letter and its social share intents.
type Links struct {
	URL      string `json:"url"`
	Text     string `json:"text"`
	WhatsApp string `json:"whatsapp"`
	Telegram string `json:"telegram"`
	Facebook string `json:"facebook"`
	X        string `json:"x"`
	Card     string `json:"card"`
}

// Meta is the Open Graph description of a letter page.
type Meta struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
	Image       string `json:"image"`
	SiteName    string `json:"site_name"`
}

// Builder derives links from the public base URL.
type Builder struct {
	baseURL  string
	siteName string
}

// NewBuilder creates a Builder. The base URL may carry a trailing slash.
func NewBuilder(baseURL, siteName string) *Builder {
	if siteName == "" {
		siteName = DefaultSiteName
	}
	return &Builder{
		baseURL:  strings.TrimRight(baseURL, "/"),
		siteName: siteName,
	}
}

// LetterURL is the public page of a letter.
func (b *Builder) LetterURL(id string) string {
	return b.baseURL + "/letter/" + url.PathEscape(id)
}

// CardURL is the rendered card image of a letter.
func (b *Builder) CardURL(id string) string {
	return b.baseURL + "/api/v1/letters/" + url.PathEscape(id) + "/card.png"
}

// Text is the message that accompanies a shared link.
func Text(l *domain.Letter) string {
	return "Read this love letter to " + string(l.Member) + " from ARMY! 💜"
}

// Links returns the share intents for l.
func (b *Builder) Links(l *domain.Letter) Links {
	page := b.LetterURL(l.ID)
	text := Text(l)
	withURL := text + "\n\n" + page

	return Links{
		URL:      page,
		Text:     text,
		WhatsApp: "https://wa.me/?text=" + url.QueryEscape(withURL),
		Telegram: "https://t.me/share/url?url=" + url.QueryEscape(page) + "&text=" + url.QueryEscape(text),
		Facebook: "https://www.facebook.com/sharer/sharer.php?u=" + url.QueryEscape(page),
		X:        "https://twitter.com/intent/tweet?text=" + url.QueryEscape(withURL),
		Card:     b.CardURL(l.ID),
	}
}

// Meta returns the Open Graph fields for l's page.
func (b *Builder) Meta(l *domain.Letter) Meta {
	return Meta{
		Title:       "Letter to " + string(l.Member) + " - " + b.siteName,
		Description: excerpt(l.Message, descriptionLength),
		URL:         b.LetterURL(l.ID),
		Image:       b.CardURL(l.ID),
		SiteName:    b.siteName,
	}
}

// excerpt collapses whitespace and cuts s to n characters.
func excerpt(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n-3])) + "..."
}
