// Package util provides small time and text helpers shared across components.
package util

import (
	"fmt"
	"time"
)

// UTCNow returns the current instant in UTC.
func UTCNow() time.Time {
	return time.Now().UTC()
}

// LocalNow returns the current instant in the given location.
func LocalNow(loc *time.Location) time.Time {
	return time.Now().In(loc)
}

// LocalDate returns the calendar date of t as YYYY-MM-DD.
func LocalDate(t time.Time) string {
	return t.Format("2006-01-02")
}

// ParseHHMM parses a "HH:MM" time-of-day string into minutes past midnight.
func ParseHHMM(value string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(value, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid time of day %q: %w", value, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("time of day out of range: %q", value)
	}
	return h*60 + m, nil
}

// ClampText truncates value to at most maxChars characters, appending an
// ellipsis when truncation occurs.
func ClampText(value string, maxChars int) string {
	runes := []rune(value)
	if len(runes) <= maxChars {
		return value
	}
	if maxChars <= 3 {
		return string(runes[:maxChars])
	}
	return string(runes[:maxChars-3]) + "..."
}

// EnsureMinDelay bumps t forward to base+minDelay if it is earlier than that.
func EnsureMinDelay(t, base time.Time, minDelay time.Duration) time.Time {
	if t.Before(base.Add(minDelay)) {
		return base.Add(minDelay)
	}
	return t
}
