// Package timebucket provides the interval arithmetic shared by archiving,
// staleness checks and archive naming.
//
// Buckets are computed on the wall-clock reading of a timestamp, in its own
// location, counted from 0001-01-01 00:00:00. A daily bucket therefore always
// starts at local midnight, whatever the UTC offset.
package timebucket

import (
	"time"
)

const (
	// DateLayout is the coarse form used for containers and whole-day buckets.
	DateLayout = "2006-01-02"

	// DateTimeLayout is the fine form used for buckets that do not start at midnight.
	DateTimeLayout = "2006-01-02_15-04"
)

// RoundDown truncates t to the largest multiple of interval since
// 0001-01-01 00:00:00 wall-clock time. The result is in t's location.
// A non-positive interval returns t unchanged.
func RoundDown(t time.Time, interval time.Duration) time.Time {
	if interval <= 0 {
		return t
	}
	return inLocation(wall(t).Truncate(interval), t.Location())
}

// Shift adds d to the wall-clock reading of t, ignoring offset changes
// between the two instants. Stepping a midnight bucket by 24h stays on midnight.
func Shift(t time.Time, d time.Duration) time.Time {
	return inLocation(wall(t).Add(d), t.Location())
}

// IsMidnight reports whether t falls exactly on the start of its calendar day.
func IsMidnight(t time.Time) bool {
	return t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0
}

// FormatBucket formats a bucket start. Buckets starting at midnight use the
// date-only form so daily archives keep stable names; anything else carries
// the time of day.
func FormatBucket(t time.Time) string {
	if IsMidnight(t) {
		return t.Format(DateLayout)
	}
	return t.Format(DateTimeLayout)
}

// FormatDate formats the calendar date of t.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseBucket parses either form produced by FormatBucket in loc.
func ParseBucket(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	if t, err := time.ParseInLocation(DateTimeLayout, s, loc); err == nil {
		return t, nil
	}
	return time.ParseInLocation(DateLayout, s, loc)
}

// wall reinterprets the wall-clock fields of t as UTC so that Truncate and Add
// operate on the presentation form instead of the absolute instant.
func wall(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.UTC)
}

func inLocation(w time.Time, loc *time.Location) time.Time {
	return time.Date(w.Year(), w.Month(), w.Day(), w.Hour(), w.Minute(), w.Second(), w.Nanosecond(), loc)
}
