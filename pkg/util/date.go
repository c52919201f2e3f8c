package util

import (
	"strconv"
	"time"
)

// ParseTime accepts RFC3339 (with or without fraction), unix seconds and
// unix milliseconds. Integers above 1e12 are treated as milliseconds.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	ts, err := strconv.ParseInt(s, 10, 64)
	if err != nil || ts <= 0 {
		return time.Time{}, false
	}
	if ts > 1e12 {
		return time.UnixMilli(ts), true
	}
	return time.Unix(ts, 0), true
}
