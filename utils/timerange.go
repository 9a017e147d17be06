// utils/timerange.go
package utils

import (
	"os"
	"time"
)

// Statistics never reach back before the service went live.
var defaultServiceEpoch = time.Date(2025, time.April, 27, 0, 0, 0, 0, time.UTC)

// ServiceEpoch is the earliest instant any statistics query may cover.
// Overridable with INITIAL_DATE (RFC3339 or YYYY-MM-DD).
func ServiceEpoch() time.Time {
	v := os.Getenv("INITIAL_DATE")
	if v == "" {
		return defaultServiceEpoch
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02", v); err == nil {
		return t
	}
	return defaultServiceEpoch
}

// ParseTimeRange turns the raw start/end query parameters into a clamped
// range: start defaults to the service epoch and is pulled forward if
// earlier; end defaults to now and is pulled back if in the future.
// Unparseable values fall back to the defaults.
func ParseTimeRange(startRaw, endRaw string) (time.Time, time.Time) {
	epoch := ServiceEpoch()
	now := time.Now()

	start := parseTimestamp(startRaw, epoch)
	if start.Before(epoch) {
		start = epoch
	}

	end := parseTimestamp(endRaw, now)
	if end.After(now) {
		end = now
	}

	return start, end
}

func parseTimestamp(raw string, fallback time.Time) time.Time {
	if raw == "" {
		return fallback
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t
	}
	return fallback
}
