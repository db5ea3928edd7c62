package store

import (
	"fmt"

	"github.com/armyletters/letters-server/internal/domain"
)

const (
	letterPrefix = "letter:"

	// idx:letters:ts:{scope}:{timestamp}:{id}
	letterTSIndexPrefix = "idx:letters:ts:"
	// idx:letters:likes:{scope}:{likes}:{timestamp}:{id}
	letterLikesIndexPrefix = "idx:letters:likes:"

	scopeAll = "all"
)

func letterKey(id string) []byte {
	return []byte(letterPrefix + id)
}

// letterScopes lists the index scopes a letter appears in: the unfiltered
// feed and its addressee's feed.
func letterScopes(l *domain.Letter) []string {
	return []string{scopeAll, string(l.Member)}
}

func scopeFor(f domain.Filter) string {
	if f.IsAll() {
		return scopeAll
	}
	return string(f.Member)
}

func tsIndexKey(scope string, l *domain.Letter) []byte {
	return formatTimestampIndexKey(letterTSIndexPrefix+scope+":", l.Timestamp, l.ID)
}

// likesIndexKey zero-pads the count so lexicographic order is numeric order.
func likesIndexKey(scope string, l *domain.Letter) []byte {
	return fmt.Appendf(nil, "%s%s:%010d:%s:%s", letterLikesIndexPrefix, scope, l.Likes, formatTimestamp(l.Timestamp), l.ID)
}

// letterIndexKeys returns every index entry for l.
func letterIndexKeys(l *domain.Letter) [][]byte {
	var keys [][]byte
	for _, scope := range letterScopes(l) {
		keys = append(keys, tsIndexKey(scope, l), likesIndexKey(scope, l))
	}
	return keys
}

// queryIndexPrefix is the index range a query iterates.
func queryIndexPrefix(q domain.Query) []byte {
	scope := scopeFor(q.Filter)
	if q.Sort == domain.SortMostLiked {
		return []byte(letterLikesIndexPrefix + scope + ":")
	}
	return []byte(letterTSIndexPrefix + scope + ":")
}

// queryReverse reports whether the query walks its index backwards.
func queryReverse(q domain.Query) bool {
	return q.Sort != domain.SortOldest
}
