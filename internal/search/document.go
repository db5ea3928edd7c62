// Package search provides full-text search over letters using Bleve.
// Names match on prefixes and small typos; messages match on stemmed words.
package search

import (
	"github.com/armyletters/letters-server/internal/domain"
)

// LetterDocument is the indexed form of a letter.
// Like counts and timestamps are stored for sorting only.
type LetterDocument struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Message   string `json:"message"`
	Member    string `json:"member"`
	Country   string `json:"country,omitempty"`
	Song      string `json:"song,omitempty"`
	Timestamp int64  `json:"timestamp"` // Unix milliseconds
	Likes     int    `json:"likes"`
}

// LetterToDocument converts a letter to its search document.
func LetterToDocument(l *domain.Letter) *LetterDocument {
	doc := &LetterDocument{
		ID:        l.ID,
		Name:      l.Name,
		Message:   l.Message,
		Member:    string(l.Member),
		Country:   l.Country,
		Timestamp: l.Timestamp.UnixMilli(),
		Likes:     l.Likes,
	}
	if l.Track != nil {
		doc.Song = l.Track.Name + " " + l.Track.Artist
	}
	return doc
}

// ToMap converts the document to a map whose keys match the index mapping.
func (d *LetterDocument) ToMap() map[string]any {
	m := map[string]any{
		"id":        d.ID,
		"name":      d.Name,
		"message":   d.Message,
		"member":    d.Member,
		"timestamp": float64(d.Timestamp),
		"likes":     float64(d.Likes),
	}
	if d.Country != "" {
		m["country"] = d.Country
	}
	if d.Song != "" {
		m["song"] = d.Song
	}
	return m
}
