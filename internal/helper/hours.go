package helper

import (
	"fmt"
	"strings"
	"time"
)

// IsQueueOpen reports whether now falls inside [openAt, closeAt) on the wall clock of now's location.
// Both empty means always open. A close time before the open time wraps past midnight.
func IsQueueOpen(openAt, closeAt string, now time.Time) bool {
	if openAt == "" && closeAt == "" {
		return true
	}

	openClock, err := ParseClock(openAt)
	if err != nil {
		return false
	}
	closeClock, err := ParseClock(closeAt)
	if err != nil {
		return false
	}

	loc := now.Location()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)
	openTime := midnight.Add(openClock)
	closeTime := midnight.Add(closeClock)

	if closeTime.Before(openTime) {
		// 22:00-02:00: before opening time we are still in yesterday's window.
		closeTime = closeTime.Add(24 * time.Hour)
		if now.Before(openTime) {
			openTime = openTime.Add(-24 * time.Hour)
			closeTime = closeTime.Add(-24 * time.Hour)
		}
	}

	return !now.Before(openTime) && now.Before(closeTime)
}

// ParseClock parses HH:MM or HH:MM:SS into an offset from midnight.
func ParseClock(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if strings.Count(s, ":") == 1 {
		s += ":00"
	}
	t, err := time.Parse("15:04:05", s)
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q: %w", s, err)
	}
	return time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second, nil
}

// ValidateHours checks the opening window configuration: both empty or both parseable.
func ValidateHours(openAt, closeAt string) error {
	if openAt == "" && closeAt == "" {
		return nil
	}
	if openAt == "" || closeAt == "" {
		return fmt.Errorf("opening hours need both open and close times")
	}
	if _, err := ParseClock(openAt); err != nil {
		return err
	}
	_, err := ParseClock(closeAt)
	return err
}
