package policy

import (
	"fmt"
	"time"
)

// InQuietHours reports whether the wall-clock time of now falls inside
// the [start, end] window, both "HH:MM" 24h strings. When start > end the
// window wraps midnight (e.g. 22:00–07:00). Comparison is lexicographic,
// which is correct for zero-padded 24h times. Boundaries are inclusive.
func InQuietHours(start, end string, now time.Time) bool {
	if start == "" || end == "" {
		return false
	}

	current := fmt.Sprintf("%02d:%02d", now.Hour(), now.Minute())

	if start > end {
		return current >= start || current <= end
	}
	return current >= start && current <= end
}
