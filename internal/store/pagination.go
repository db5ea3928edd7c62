package store

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/armyletters/letters-server/internal/domain"
)

// Page size bounds.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// ClampLimit applies the default and maximum page size.
func ClampLimit(limit, fallback int) int {
	if limit <= 0 {
		limit = fallback
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	return limit
}

// EncodeCursor creates an opaque cursor from the sort order and the last
// returned item's position key.
func EncodeCursor(sort domain.SortOrder, key string) string {
	if key == "" {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString([]byte(string(sort) + "|" + key))
}

// DecodeCursor decodes a cursor back to its sort order and key.
func DecodeCursor(cursor string) (domain.SortOrder, string, error) {
	if cursor == "" {
		return "", "", nil
	}

	decoded, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return "", "", fmt.Errorf("invalid cursor: %w", err)
	}

	sort, key, ok := strings.Cut(string(decoded), "|")
	if !ok || key == "" {
		return "", "", fmt.Errorf("invalid cursor: missing position")
	}
	return domain.SortOrder(sort), key, nil
}

// CursorKey returns the position key of cursor after checking it was minted
// for q and starts with prefix. An empty cursor yields an empty key.
func CursorKey(cursor string, q domain.Query, prefix string) (string, error) {
	sort, key, err := DecodeCursor(cursor)
	if err != nil {
		return "", ErrInvalidCursor.WithCause(err)
	}
	if cursor == "" {
		return "", nil
	}
	if sort != q.Sort || !strings.HasPrefix(key, prefix) {
		return "", ErrInvalidCursor
	}
	return key, nil
}
