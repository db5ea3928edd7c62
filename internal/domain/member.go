package domain

import "strings"

// Member is the addressee of a letter: the group as a whole or one of its members.
type Member string

// Addressees accepted on a letter.
const (
	MemberBTS      Member = "BTS"
	MemberRM       Member = "RM"
	MemberJin      Member = "Jin"
	MemberSuga     Member = "Suga"
	MemberJHope    Member = "J-Hope"
	MemberJimin    Member = "Jimin"
	MemberV        Member = "V"
	MemberJungkook Member = "Jungkook"
)

// Members lists every addressee in display order.
var Members = []Member{
	MemberBTS,
	MemberRM,
	MemberJin,
	MemberSuga,
	MemberJHope,
	MemberJimin,
	MemberV,
	MemberJungkook,
}

// Valid reports whether m is one of the known addressees.
func (m Member) Valid() bool {
	for _, known := range Members {
		if m == known {
			return true
		}
	}
	return false
}

// ParseMember resolves a member name case-insensitively.
func ParseMember(s string) (Member, bool) {
	s = strings.TrimSpace(s)
	for _, known := range Members {
		if strings.EqualFold(s, string(known)) {
			return known, true
		}
	}
	return "", false
}

// Filter selects which letters a feed shows: every letter, or those to one member.
// The zero value means all letters.
type Filter struct {
	Member Member
}

// FilterAll matches every letter.
var FilterAll = Filter{}

// FilterFor matches letters addressed to m.
func FilterFor(m Member) Filter {
	return Filter{Member: m}
}

// IsAll reports whether the filter matches every letter.
func (f Filter) IsAll() bool {
	return f.Member == ""
}

// Matches reports whether l passes the filter.
func (f Filter) Matches(l *Letter) bool {
	return f.IsAll() || l.Member == f.Member
}

// String returns "all" or the member name.
func (f Filter) String() string {
	if f.IsAll() {
		return "all"
	}
	return string(f.Member)
}

// ParseFilter accepts "all", the empty string, or a member name.
func ParseFilter(s string) (Filter, bool) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "all") {
		return FilterAll, true
	}
	m, ok := ParseMember(s)
	if !ok {
		return Filter{}, false
	}
	return FilterFor(m), true
}
