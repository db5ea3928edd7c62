package spotify

import (
	"strings"

	"github.com/armyletters/letters-server/internal/domain"
)

// DefaultRoster is the set of artist names accepted in results, including the
// solo and stylized credits the catalog uses.
var DefaultRoster = []string{
	"BTS", "Jung Kook", "Jungkook", "V", "Jin", "Agust D", "SUGA",
	"j-hope", "j hope", "jhope", "RM", "Jimin", "JIN", "방탄소년단",
}

// Roster matches artist credits against the accepted names.
type Roster struct {
	names []string
}

// NewRoster builds a roster; names are compared case-insensitively.
func NewRoster(names []string) *Roster {
	r := &Roster{}
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n != "" {
			r.names = append(r.names, n)
		}
	}
	return r
}

// MatchesArtist accepts a credit when it contains a roster name or a roster
// name contains it, so "BTS (방탄소년단)" and "Jung Kook" both pass.
func (r *Roster) MatchesArtist(artist string) bool {
	a := strings.ToLower(strings.TrimSpace(artist))
	if a == "" {
		return false
	}
	for _, n := range r.names {
		if strings.Contains(a, n) || strings.Contains(n, a) {
			return true
		}
	}
	return false
}

// Matches accepts a track when any credited artist matches.
func (r *Roster) Matches(t *domain.Track) bool {
	for _, a := range t.Artists {
		if r.MatchesArtist(a.Name) {
			return true
		}
	}
	return false
}

// Filter keeps only roster tracks, preserving order.
func (r *Roster) Filter(tracks []domain.Track) []domain.Track {
	out := make([]domain.Track, 0, len(tracks))
	for i := range tracks {
		if r.Matches(&tracks[i]) {
			out = append(out, tracks[i])
		}
	}
	return out
}
