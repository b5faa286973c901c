package utils

import (
	"time"
)

// FormatUnix renders an event timestamp (unix seconds) as RFC3339 UTC.
func FormatUnix(ts int64) string {
	return time.Unix(ts, 0).UTC().Format(time.RFC3339)
}

// SpanSeconds returns the absolute distance between two event timestamps.
func SpanSeconds(a, b int64) int64 {
	if a > b {
		return a - b
	}
	return b - a
}
