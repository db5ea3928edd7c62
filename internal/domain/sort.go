package domain

import (
	"cmp"
	"slices"
	"strings"
)

// SortOrder is the ordering of a feed.
type SortOrder string

// Supported orderings.
const (
	SortNewest    SortOrder = "newest"
	SortOldest    SortOrder = "oldest"
	SortMostLiked SortOrder = "most-liked"
)

// SortOrders lists the orderings in the order a picker shows them.
var SortOrders = []SortOrder{SortNewest, SortOldest, SortMostLiked}

// ParseSortOrder accepts the canonical names plus the legacy "mostLoved" alias.
// An empty string means newest.
func ParseSortOrder(s string) (SortOrder, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "newest":
		return SortNewest, true
	case "oldest":
		return SortOldest, true
	case "most-liked", "mostliked", "mostloved", "most_liked":
		return SortMostLiked, true
	default:
		return "", false
	}
}

// Compare orders two letters under s. Ties fall back to id so the
// order is total and stable across pages.
func (s SortOrder) Compare(a, b *Letter) int {
	switch s {
	case SortOldest:
		if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	case SortMostLiked:
		if c := cmp.Compare(b.Likes, a.Likes); c != 0 {
			return c
		}
		if c := b.Timestamp.Compare(a.Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	default:
		if c := b.Timestamp.Compare(a.Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	}
}

// Sort orders letters in place.
func (s SortOrder) Sort(letters []*Letter) {
	slices.SortStableFunc(letters, s.Compare)
}

// Query is the filter and sort a feed or subscription is bound to.
type Query struct {
	Filter Filter
	Sort   SortOrder
}

// String renders the query as "filter/sort" for logs and cursor scoping.
func (q Query) String() string {
	sort := q.Sort
	if sort == "" {
		sort = SortNewest
	}
	return q.Filter.String() + "/" + string(sort)
}
