package store

import (
	"fmt"
	"time"
)

// formatTimestamp renders t with fixed-width nanoseconds so lexicographic
// order matches chronological order.
func formatTimestamp(t time.Time) string {
	t = t.UTC()
	return t.Format("2006-01-02T15:04:05") + fmt.Sprintf(".%09d", t.Nanosecond()) + "Z"
}

// formatTimestampIndexKey creates a timestamp index key.
// Format: {prefix}{YYYY-MM-DDTHH:MM:SS.NNNNNNNNNZ}:{entityID}.
// Example: idx:letters:ts:all:2024-01-15T10:30:00.123456789Z:ltr-abc.
func formatTimestampIndexKey(prefix string, timestamp time.Time, entityID string) []byte {
	return fmt.Appendf(nil, "%s%s:%s", prefix, formatTimestamp(timestamp), entityID)
}
