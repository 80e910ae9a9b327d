package types

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// All scheduling times are minutes since midnight. Batches only ever start
// on a 20 minute grid; the helpers below are the only grid math in the
// codebase so the rounding rules live in one place.
const GridMinutes = 20

// CeilToGrid rounds m up to the next grid line (already-aligned values are
// returned unchanged). Negative inputs clamp to zero.
func CeilToGrid(m int) int {
	if m <= 0 {
		return 0
	}
	return ((m + GridMinutes - 1) / GridMinutes) * GridMinutes
}

// FloorToGrid rounds m down to the previous grid line.
func FloorToGrid(m int) int {
	if m <= 0 {
		return 0
	}
	return (m / GridMinutes) * GridMinutes
}

// RoundToGrid rounds m to the nearest grid line, halves rounding up.
func RoundToGrid(m int) int {
	if m <= 0 {
		return 0
	}
	return ((m + GridMinutes/2) / GridMinutes) * GridMinutes
}

// OnGrid reports whether m sits exactly on a grid line.
func OnGrid(m int) bool {
	return m >= 0 && m%GridMinutes == 0
}

// FormatClock renders minutes since midnight as HH:MM. Values outside a
// single day wrap, matching how schedules only ever cover one date.
func FormatClock(m int) string {
	if m < 0 {
		m = 0
	}
	m = m % (24 * 60)
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// FormatClockF renders fractional simulation minutes as HH:MM, truncating
// the sub-minute remainder.
func FormatClockF(m float64) string {
	if m < 0 {
		m = 0
	}
	return FormatClock(int(math.Floor(m)))
}

// ParseClock parses HH:MM into minutes since midnight.
func ParseClock(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, NewInvalidInput("invalid clock time %q, expected HH:MM", s)
	}
	hours, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, NewInvalidInput("invalid clock time %q, expected HH:MM", s)
	}
	mins, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, NewInvalidInput("invalid clock time %q, expected HH:MM", s)
	}
	if hours < 0 || hours > 23 || mins < 0 || mins > 59 {
		return 0, NewInvalidInput("clock time %q out of range", s)
	}
	return hours*60 + mins, nil
}
