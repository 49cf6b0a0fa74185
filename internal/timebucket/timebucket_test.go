package timebucket

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundDown_Daily(t *testing.T) {
	ts := time.Date(2024, 3, 14, 15, 9, 26, 535, time.UTC)

	got := RoundDown(ts, Day)

	assert.Equal(t, time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC), got)
}

func TestRoundDown_Hourly(t *testing.T) {
	ts := time.Date(2024, 3, 14, 15, 9, 26, 0, time.UTC)

	assert.Equal(t, time.Date(2024, 3, 14, 15, 0, 0, 0, time.UTC), RoundDown(ts, time.Hour))
	assert.Equal(t, time.Date(2024, 3, 14, 12, 0, 0, 0, time.UTC), RoundDown(ts, 6*time.Hour))
}

func TestRoundDown_WeeksCountFromYearOne(t *testing.T) {
	// 0001-01-01 was a Monday, so weekly buckets start on Mondays.
	ts := time.Date(2024, 3, 14, 15, 0, 0, 0, time.UTC) // Thursday

	got := RoundDown(ts, Week)

	assert.Equal(t, time.Monday, got.Weekday())
	assert.Equal(t, time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC), got)
}

func TestRoundDown_UsesWallClock(t *testing.T) {
	loc := time.FixedZone("UTC+5", 5*3600)
	ts := time.Date(2024, 3, 14, 2, 30, 0, 0, loc)

	got := RoundDown(ts, Day)

	assert.Equal(t, time.Date(2024, 3, 14, 0, 0, 0, 0, loc), got)
	assert.Equal(t, loc, got.Location())
}

func TestRoundDown_NonPositiveInterval(t *testing.T) {
	ts := time.Date(2024, 3, 14, 2, 30, 0, 0, time.UTC)
	assert.Equal(t, ts, RoundDown(ts, 0))
	assert.Equal(t, ts, RoundDown(ts, -time.Hour))
}

func TestRoundDown_Idempotent(t *testing.T) {
	intervals := []time.Duration{
		time.Second, 7 * time.Second, time.Minute, 15 * time.Minute, time.Hour,
		5 * time.Hour, Day, 3 * Day, Week, Month, Year, 1500 * time.Millisecond,
	}
	r := rand.New(rand.NewSource(42))
	base := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 500; i++ {
		ts := base.Add(time.Duration(r.Int63n(int64(40 * Year))))
		for _, iv := range intervals {
			once := RoundDown(ts, iv)
			assert.True(t, once.Equal(RoundDown(once, iv)), "interval %s, time %s", iv, ts)
			assert.False(t, once.After(ts))
		}
	}
}

func TestShift_KeepsWallClock(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Paris")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	// DST starts on 2024-03-31 in Paris: that day is 23 hours long.
	midnight := time.Date(2024, 4, 1, 0, 0, 0, 0, loc)

	prev := Shift(midnight, -Day)

	assert.Equal(t, time.Date(2024, 3, 31, 0, 0, 0, 0, loc), prev)
	assert.True(t, IsMidnight(prev))
}

func TestFormatBucket(t *testing.T) {
	assert.Equal(t, "2024-03-14", FormatBucket(time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "2024-03-14_06-30", FormatBucket(time.Date(2024, 3, 14, 6, 30, 0, 0, time.UTC)))
	assert.Equal(t, "2024-03-14", FormatDate(time.Date(2024, 3, 14, 6, 30, 0, 0, time.UTC)))
}

func TestParseBucket_RoundTrip(t *testing.T) {
	for _, ts := range []time.Time{
		time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 3, 14, 18, 45, 0, 0, time.UTC),
	} {
		got, err := ParseBucket(FormatBucket(ts), time.UTC)
		require.NoError(t, err)
		assert.True(t, ts.Equal(got))
	}

	_, err := ParseBucket("yesterday", time.UTC)
	assert.Error(t, err)
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"1 second", time.Second},
		{"30 seconds", 30 * time.Second},
		{"5 minutes", 5 * time.Minute},
		{"1 hour", time.Hour},
		{"2 days", 2 * Day},
		{"2 weeks", 14 * Day},
		{"1 month", 30 * Day},
		{"1 year", 365 * Day},
		{"  3 Hours ", 3 * time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDuration(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDuration_Errors(t *testing.T) {
	for _, in := range []string{"2 fortnights", "", "hour", "1.5 hours", "one hour", "1  hour", "1 hour ago"} {
		t.Run(in, func(t *testing.T) {
			_, err := ParseDuration(in)
			require.Error(t, err)

			var fe *FormatError
			assert.True(t, errors.As(err, &fe))
			assert.Equal(t, in, fe.Input)
			assert.ErrorIs(t, err, ErrFormat)
		})
	}
}
