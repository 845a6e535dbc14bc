package core

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ParseISO8601Duration parses a time-only ISO 8601 duration (PT1S, PT5M,
// PT1H30M). Components must appear in H, M, S order; only the seconds
// component may be fractional.
func ParseISO8601Duration(s string) (time.Duration, error) {
	rest, ok := strings.CutPrefix(s, "PT")
	if !ok || rest == "" {
		return 0, fmt.Errorf("invalid ISO 8601 duration: %q", s)
	}

	var d time.Duration
	components := []struct {
		unit  byte
		scale time.Duration
	}{
		{'H', time.Hour},
		{'M', time.Minute},
		{'S', time.Second},
	}
	for _, comp := range components {
		i := strings.IndexByte(rest, comp.unit)
		if i < 0 {
			continue
		}
		value, err := strconv.ParseFloat(rest[:i], 64)
		if err != nil || value < 0 {
			return 0, fmt.Errorf("invalid ISO 8601 duration: %q", s)
		}
		if comp.unit != 'S' && value != math.Trunc(value) {
			return 0, fmt.Errorf("invalid ISO 8601 duration: %q", s)
		}
		d += time.Duration(value * float64(comp.scale))
		rest = rest[i+1:]
	}

	// Leftover text means out-of-order or unknown components.
	if rest != "" || d == 0 {
		return 0, fmt.Errorf("invalid ISO 8601 duration: %q", s)
	}
	return d, nil
}

// FormatISO8601Duration renders d as a time-only ISO 8601 duration string.
func FormatISO8601Duration(d time.Duration) string {
	if d == 0 {
		return "PT0S"
	}

	var b strings.Builder
	b.WriteString("PT")
	if h := d / time.Hour; h > 0 {
		fmt.Fprintf(&b, "%dH", h)
		d -= h * time.Hour
	}
	if m := d / time.Minute; m > 0 {
		fmt.Fprintf(&b, "%dM", m)
		d -= m * time.Minute
	}
	if d > 0 {
		secs := d.Seconds()
		if secs == math.Trunc(secs) {
			fmt.Fprintf(&b, "%dS", int64(secs))
		} else {
			fmt.Fprintf(&b, "%.3fS", secs)
		}
	}
	return b.String()
}

// FormatTime renders t in the wire timestamp format (RFC 3339, millisecond
// precision, UTC).
func FormatTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// NowFormatted returns the current time in wire format.
func NowFormatted() string {
	return FormatTime(time.Now())
}
