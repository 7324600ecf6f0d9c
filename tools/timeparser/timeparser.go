package timeparser

import (
	"fmt"
	"strconv"
	"time"
)

// ParseDeviceTimestamp attempts to parse a device-supplied timestamp.
// Firmware versions have reported time as RFC3339, as a bare datetime, or
// as unix epoch seconds; all three are accepted.
func ParseDeviceTimestamp(raw string) (time.Time, error) {
	formats := []string{
		time.RFC3339,
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
	}

	var lastErr error
	for _, format := range formats {
		t, err := time.Parse(format, raw)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}

	// Epoch seconds, the oldest firmware format.
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil && secs > 0 {
		return time.Unix(secs, 0).UTC(), nil
	}

	return time.Time{}, fmt.Errorf("failed to parse timestamp '%s': %w", raw, lastErr)
}
