// Package timeparse parses the compact send-time grammar used by /schedule.
//
// Accepted forms:
//   - "5m", "30m": minutes from now
//   - "2h", "12h": hours from now
//   - "15:30": today at HH:MM (tomorrow if already passed)
//   - "tomorrow 10:00": tomorrow at HH:MM
//   - "tomorrow": same wall-clock time tomorrow
package timeparse

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var ErrBadFormat = errors.New("unrecognized time format")

// At resolves a schedule expression relative to now. The returned time is in
// now's location; callers persist it as UTC.
func At(now time.Time, s string) (time.Time, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return time.Time{}, ErrBadFormat
	}

	switch {
	case strings.HasSuffix(s, "m") && !strings.Contains(s, " "):
		n, err := strconv.Atoi(strings.TrimSuffix(s, "m"))
		if err != nil || n <= 0 {
			return time.Time{}, fmt.Errorf("%w: %q", ErrBadFormat, s)
		}
		return now.Add(time.Duration(n) * time.Minute), nil

	case strings.HasSuffix(s, "h") && !strings.Contains(s, " "):
		n, err := strconv.Atoi(strings.TrimSuffix(s, "h"))
		if err != nil || n <= 0 {
			return time.Time{}, fmt.Errorf("%w: %q", ErrBadFormat, s)
		}
		return now.Add(time.Duration(n) * time.Hour), nil

	case strings.HasPrefix(s, "tomorrow"):
		rest := strings.TrimSpace(strings.TrimPrefix(s, "tomorrow"))
		day := now.AddDate(0, 0, 1)
		if rest == "" {
			return day, nil
		}
		h, m, err := parseHHMM(rest)
		if err != nil {
			return time.Time{}, err
		}
		return time.Date(day.Year(), day.Month(), day.Day(), h, m, 0, 0, now.Location()), nil

	case strings.Contains(s, ":"):
		h, m, err := parseHHMM(s)
		if err != nil {
			return time.Time{}, err
		}
		at := time.Date(now.Year(), now.Month(), now.Day(), h, m, 0, 0, now.Location())
		if !at.After(now) {
			at = at.AddDate(0, 0, 1)
		}
		return at, nil
	}

	return time.Time{}, fmt.Errorf("%w: %q", ErrBadFormat, s)
}

func parseHHMM(s string) (int, int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: %q", ErrBadFormat, s)
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, 0, fmt.Errorf("%w: %q", ErrBadFormat, s)
	}
	return h, m, nil
}
