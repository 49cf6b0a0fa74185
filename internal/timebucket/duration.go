package timebucket

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	Day   = 24 * time.Hour
	Week  = 7 * Day
	Month = 30 * Day
	Year  = 365 * Day
)

// ErrFormat is matched by every *FormatError.
var ErrFormat = errors.New("invalid duration expression")

// FormatError reports a duration expression that could not be parsed.
type FormatError struct {
	Input string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("could not parse %q as a valid time span", e.Input)
}

// Is lets errors.Is(err, ErrFormat) match any FormatError.
func (e *FormatError) Is(target error) bool {
	return target == ErrFormat
}

var units = map[string]time.Duration{
	"second": time.Second,
	"minute": time.Minute,
	"hour":   time.Hour,
	"day":    Day,
	"week":   Week,
	"month":  Month,
	"year":   Year,
}

// ParseDuration parses expressions such as "1 hour", "2 weeks" or "30 days".
// Months are 30 days and years 365 days.
func ParseDuration(s string) (time.Duration, error) {
	expr := strings.TrimRight(strings.TrimSpace(s), "s")

	parts := strings.Split(expr, " ")
	if len(parts) != 2 {
		return 0, &FormatError{Input: s}
	}

	count, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, &FormatError{Input: s}
	}

	unit, ok := units[strings.ToLower(parts[1])]
	if !ok {
		return 0, &FormatError{Input: s}
	}

	return time.Duration(count) * unit, nil
}
