package feed

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/armyletters/letters-server/internal/domain"
)

// merge folds received letters into held, keyed by id. The received copy
// always replaces the held one; nothing already held is removed. Letters
// outside filter are ignored.
func merge(held map[string]*domain.Letter, filter domain.Filter, received []*domain.Letter) int {
	added := 0
	for _, l := range received {
		if l == nil || l.ID == "" || !filter.Matches(l) {
			continue
		}
		if _, ok := held[l.ID]; !ok {
			added++
		}
		c := l.Clone()
		c.Normalize()
		held[l.ID] = c
	}
	return added
}

// matchesName reports whether name contains search, ignoring case.
// An empty search matches everything.
func matchesName(name, search string) bool {
	if search == "" {
		return true
	}
	return strings.Contains(cases.Fold().String(name), cases.Fold().String(search))
}

// withPending returns l as it looks once a pending toggle to target lands.
// The server copy's likedBy decides whether the toggle is already counted.
func withPending(l *domain.Letter, identityID string, target bool) *domain.Letter {
	if l.HasLiked(identityID) == target {
		return l
	}
	c := l.Clone()
	c.ApplyLike(identityID, target)
	return c
}
