package util

import (
	"strconv"
	"strings"
	"time"
)

const DayLayout = "2006-01-02"

// ParseDay accepts YYYY-MM-DD, RFC3339 or unix seconds and truncates the
// result to a UTC calendar day.
func ParseDay(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(DayLayout, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return TruncateDay(t), true
	}
	if ts, err := strconv.ParseInt(s, 10, 64); err == nil && ts > 0 {
		return TruncateDay(time.Unix(ts, 0)), true
	}
	return time.Time{}, false
}

// TruncateDay drops the clock, keeping the UTC calendar day.
func TruncateDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
