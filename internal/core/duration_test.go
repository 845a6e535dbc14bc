package core

import (
	"testing"
	"time"
)

func TestParseISO8601Duration(t *testing.T) {
	tests := []struct {
		input string
		want  time.Duration
	}{
		{"PT1S", 1 * time.Second},
		{"PT30S", 30 * time.Second},
		{"PT0.5S", 500 * time.Millisecond},
		{"PT5M", 5 * time.Minute},
		{"PT1H", 1 * time.Hour},
		{"PT1H30M", 90 * time.Minute},
		{"PT2H15M30S", 2*time.Hour + 15*time.Minute + 30*time.Second},
	}

	for _, tt := range tests {
		got, err := ParseISO8601Duration(tt.input)
		if err != nil {
			t.Errorf("ParseISO8601Duration(%q) error: %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseISO8601Duration(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestParseISO8601Duration_Invalid(t *testing.T) {
	for _, input := range []string{"", "PT", "P1D", "5s", "PT-1S", "1 second", "PT30S5M", "PT1.5H"} {
		if _, err := ParseISO8601Duration(input); err == nil {
			t.Errorf("ParseISO8601Duration(%q) succeeded, want error", input)
		}
	}
}

func TestFormatISO8601Duration(t *testing.T) {
	tests := []struct {
		input time.Duration
		want  string
	}{
		{0, "PT0S"},
		{1 * time.Second, "PT1S"},
		{500 * time.Millisecond, "PT0.500S"},
		{5 * time.Minute, "PT5M"},
		{90 * time.Minute, "PT1H30M"},
		{2*time.Hour + 15*time.Minute + 30*time.Second, "PT2H15M30S"},
	}

	for _, tt := range tests {
		if got := FormatISO8601Duration(tt.input); got != tt.want {
			t.Errorf("FormatISO8601Duration(%v) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestFormatTime(t *testing.T) {
	ts := time.Date(2026, 3, 14, 9, 26, 53, 589_000_000, time.UTC)
	if got := FormatTime(ts); got != "2026-03-14T09:26:53.589Z" {
		t.Errorf("FormatTime = %q, want 2026-03-14T09:26:53.589Z", got)
	}

	// Non-UTC inputs are normalized.
	loc := time.FixedZone("UTC+2", 2*3600)
	if got := FormatTime(ts.In(loc)); got != "2026-03-14T09:26:53.589Z" {
		t.Errorf("FormatTime(non-UTC) = %q, want 2026-03-14T09:26:53.589Z", got)
	}
}
