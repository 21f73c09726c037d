package service

import (
	"fmt"
	"strings"
	"time"
)

// Zone-less layouts are read as UTC.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTime accepts RFC 3339 and the common zone-less forms browsers and
// devices send, returning the instant in UTC.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised time %q", s)
}

// truncate drops sub-millisecond precision so the stored and returned timestamps agree.
func truncate(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}
