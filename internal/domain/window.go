package domain

import (
	"fmt"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// DateWindow bounds receipts by creation time. A nil bound is open on that side.
// Both bounds are inclusive.
type DateWindow struct {
	From *time.Time
	To   *time.Time
}

// Contains reports whether t lies inside the window.
func (w DateWindow) Contains(t time.Time) bool {
	t = t.UTC()
	if w.From != nil && t.Before(*w.From) {
		return false
	}
	if w.To != nil && t.After(*w.To) {
		return false
	}
	return true
}

func (w DateWindow) String() string {
	return fmt.Sprintf("[%s, %s]", formatBound(w.From), formatBound(w.To))
}

func formatBound(t *time.Time) string {
	if t == nil {
		return "*"
	}
	return t.Format(time.RFC3339)
}

// ParseWindow builds a window from user supplied bounds. Empty strings leave
// the side open. A date-only upper bound covers that whole day.
func ParseWindow(from, to string) (DateWindow, error) {
	var w DateWindow

	if from = strings.TrimSpace(from); from != "" {
		t, _, err := parseBound(from)
		if err != nil {
			return DateWindow{}, fmt.Errorf("parse from bound: %w", err)
		}
		w.From = &t
	}

	if to = strings.TrimSpace(to); to != "" {
		t, dateOnly, err := parseBound(to)
		if err != nil {
			return DateWindow{}, fmt.Errorf("parse to bound: %w", err)
		}
		if dateOnly {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		w.To = &t
	}

	if w.From != nil && w.To != nil && w.From.After(*w.To) {
		return DateWindow{}, fmt.Errorf("from %s is after to %s", from, to)
	}
	return w, nil
}

func parseBound(s string) (time.Time, bool, error) {
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t.UTC(), true, nil
	}
	t, err := parseTimestamp(s)
	if err != nil {
		return time.Time{}, false, err
	}
	return t, false, nil
}
