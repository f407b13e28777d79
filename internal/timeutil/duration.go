// Package timeutil parses human-readable exam durations and formats
// countdown clocks.
package timeutil

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// DefaultDurationSeconds is used when a duration string cannot be parsed.
// Falling back to one hour instead of failing keeps a malformed exam
// definition from blocking a student's attempt.
const DefaultDurationSeconds = 3600

var (
	hourMinuteRe = regexp.MustCompile(`^(\d+)h(\d+)?$`)
	minuteRe     = regexp.MustCompile(`^(\d+)m$`)
)

// ParseDuration converts a duration string into seconds.
//
// Accepted formats:
//
//	"2h30"  → 2 hours 30 minutes
//	"2h"    → 2 hours
//	"45m"   → 45 minutes
//	"3600"  → already in seconds
//
// Anything else yields DefaultDurationSeconds.
func ParseDuration(input string) int {
	s := strings.ToLower(strings.TrimSpace(input))
	if s == "" {
		return DefaultDurationSeconds
	}

	if m := hourMinuteRe.FindStringSubmatch(s); m != nil {
		hours, _ := strconv.Atoi(m[1])
		minutes := 0
		if m[2] != "" {
			minutes, _ = strconv.Atoi(m[2])
		}
		return hours*3600 + minutes*60
	}

	if m := minuteRe.FindStringSubmatch(s); m != nil {
		minutes, _ := strconv.Atoi(m[1])
		return minutes * 60
	}

	if seconds, err := strconv.Atoi(s); err == nil && seconds > 0 {
		return seconds
	}

	return DefaultDurationSeconds
}

// FormatSeconds renders a second count as a zero-padded "HH:MM:SS" clock.
// Negative input renders as "00:00:00" rather than producing garbage.
func FormatSeconds(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
