// Package domain contains the core types of the letters service.
package domain

import (
	"slices"
	"time"
	"unicode/utf8"
)

// Field limits, counted in characters.
const (
	MaxNameLength    = 20
	MaxMessageLength = 1000
	MaxCountryLength = 15
)

// Letter is a submitted fan letter.
//
// Likes always equals len(LikedBy); both change together in one store operation.
type Letter struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Member     Member         `json:"member"`
	Message    string         `json:"message"`
	Country    string         `json:"country,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	ColorClass string         `json:"color_class"`
	Likes      int            `json:"likes"`
	LikedBy    []string       `json:"liked_by"`
	Track      *TrackSnapshot `json:"spotify_track,omitempty"`
}

// HasLiked reports whether identityID is in LikedBy.
func (l *Letter) HasLiked(identityID string) bool {
	return slices.Contains(l.LikedBy, identityID)
}

// ApplyLike adds or removes identityID with set semantics and keeps Likes in
// step. It returns false when the letter was already in the requested state.
func (l *Letter) ApplyLike(identityID string, liked bool) bool {
	has := l.HasLiked(identityID)
	switch {
	case liked && !has:
		l.LikedBy = append(l.LikedBy, identityID)
	case !liked && has:
		l.LikedBy = slices.DeleteFunc(l.LikedBy, func(id string) bool { return id == identityID })
	default:
		return false
	}
	l.Likes = len(l.LikedBy)
	return true
}

// Normalize repairs a letter read from older data: missing likedBy, duplicate
// ids and a likes counter that drifted from the set. Reports whether anything changed.
func (l *Letter) Normalize() bool {
	changed := false
	if l.LikedBy == nil {
		l.LikedBy = []string{}
		changed = true
	}
	seen := make(map[string]struct{}, len(l.LikedBy))
	deduped := l.LikedBy[:0]
	for _, id := range l.LikedBy {
		if _, dup := seen[id]; dup || id == "" {
			changed = true
			continue
		}
		seen[id] = struct{}{}
		deduped = append(deduped, id)
	}
	l.LikedBy = deduped
	if l.Likes != len(l.LikedBy) {
		l.Likes = len(l.LikedBy)
		changed = true
	}
	if !ValidColorClass(l.ColorClass) {
		l.ColorClass = ColorClasses[0]
		changed = true
	}
	return changed
}

// Clone returns a deep copy safe to hand to another goroutine.
func (l *Letter) Clone() *Letter {
	if l == nil {
		return nil
	}
	c := *l
	c.LikedBy = slices.Clone(l.LikedBy)
	if l.Track != nil {
		t := *l.Track
		c.Track = &t
	}
	return &c
}

// Draft is a letter being composed, before the store assigns id, time and color.
type Draft struct {
	Name    string         `json:"name" validate:"required,notblank,max=20"`
	Member  Member         `json:"member" validate:"required,member"`
	Message string         `json:"message" validate:"required,notblank,max=1000,clean"`
	Country string         `json:"country,omitempty" validate:"max=15"`
	Track   *TrackSnapshot `json:"spotify_track,omitempty"`
}

// CharCount counts characters the way the length limits do.
func CharCount(s string) int {
	return utf8.RuneCountInString(s)
}

// Page is one slice of a feed plus the continuation cursor.
type Page struct {
	Items      []*Letter `json:"items"`
	NextCursor string    `json:"next_cursor,omitempty"`
	HasMore    bool      `json:"has_more"`
}
