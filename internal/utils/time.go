package contextutils

import (
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// ParseDateBound parses a filter bound given either as RFC3339 or as a plain
// YYYY-MM-DD date. Plain dates are interpreted in UTC; when endOfDay is set a
// plain date covers the whole day, so the returned bound is the start of the
// following day and callers compare with "<".
// The boolean result reports whether the bound is exclusive.
func ParseDateBound(value string, endOfDay bool) (time.Time, bool, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, false, nil
	}

	date, err := time.ParseInLocation(dateLayout, value, time.UTC)
	if err != nil {
		return time.Time{}, false, WrapError(err, "invalid date format")
	}
	if endOfDay {
		return date.AddDate(0, 0, 1), true, nil
	}
	return date, false, nil
}

// StartOfDayUTC returns midnight UTC of the day containing t
func StartOfDayUTC(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
