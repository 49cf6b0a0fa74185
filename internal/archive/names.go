package archive

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/jbatonnet/Rboard/internal/timebucket"
)

const (
	containerPrefix = "Archive_"
	containerExt    = ".zip"
	entryExt        = ".html"
)

var (
	containerPattern = regexp.MustCompile(`^Archive_(\d{4}-\d{2}-\d{2})\.zip$`)
	entryPattern     = regexp.MustCompile(`^(.+)_(\d{4}-\d{2}-\d{2}(?:_\d{2}-\d{2})?)\.html$`)
)

// Container is an archive file found in the archives directory.
type Container struct {
	Name string
	Date time.Time
}

// ContainerName returns the container holding every bucket that starts on date's day.
func ContainerName(date time.Time) string {
	return containerPrefix + timebucket.FormatDate(date) + containerExt
}

// ParseContainerName extracts the date of a container name. ok is false for
// names that are not containers.
func ParseContainerName(name string, loc *time.Location) (time.Time, bool) {
	m := containerPattern.FindStringSubmatch(name)
	if m == nil {
		return time.Time{}, false
	}
	date, err := timebucket.ParseBucket(m[1], loc)
	if err != nil {
		return time.Time{}, false
	}
	return date, true
}

// EntryName builds the entry name of a document stem archived for bucket.
func EntryName(stem string, bucket time.Time) string {
	return fmt.Sprintf("%s_%s%s", stem, timebucket.FormatBucket(bucket), entryExt)
}

// ParseEntryName splits an entry name into document stem and bucket start.
func ParseEntryName(entry string, loc *time.Location) (stem string, bucket time.Time, ok bool) {
	m := entryPattern.FindStringSubmatch(entry)
	if m == nil {
		return "", time.Time{}, false
	}
	bucket, err := timebucket.ParseBucket(m[2], loc)
	if err != nil {
		return "", time.Time{}, false
	}
	return m[1], bucket, true
}

// IsEntryOf reports whether entry belongs to the document with stem,
// comparing stems case-insensitively.
func IsEntryOf(entry, stem string, loc *time.Location) bool {
	s, _, ok := ParseEntryName(entry, loc)
	return ok && strings.EqualFold(s, stem)
}
