package metrics

import (
	"math"
	"testing"
)

func TestToCount(t *testing.T) {
	tests := []struct {
		name     string
		input    float64
		expected int64
	}{
		{"negative is no signal", -5, 0},
		{"zero is no signal", 0, 0},
		{"rounds up", 3.7, 4},
		{"rounds down", 3.2, 3},
		{"NaN is no signal", math.NaN(), 0},
		{"infinity is no signal", math.Inf(1), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ToCount(tt.input); got != tt.expected {
				t.Errorf("ToCount(%v) = %d, want %d", tt.input, got, tt.expected)
			}
		})
	}
}

func TestToOptionalCount(t *testing.T) {
	if got := ToOptionalCount(-1); got != nil {
		t.Errorf("ToOptionalCount(-1) = %v, want nil", *got)
	}
	if got := ToOptionalCount(math.NaN()); got != nil {
		t.Errorf("ToOptionalCount(NaN) = %v, want nil", *got)
	}
	if got := ToOptionalCount(0); got == nil || *got != 0 {
		t.Errorf("ToOptionalCount(0) = %v, want 0", got)
	}
	if got := ToOptionalCount(12.6); got == nil || *got != 13 {
		t.Errorf("ToOptionalCount(12.6) = %v, want 13", got)
	}
}

func TestToPercent(t *testing.T) {
	tests := []struct {
		name     string
		input    float64
		expected float64
	}{
		{"fraction scales to percent", 0.5, 50},
		{"already a percent", 50, 50},
		{"clamped above", 150, 100},
		{"clamped below", -5, 0},
		{"one is a full fraction", 1, 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ToPercent(tt.input)
			if got == nil {
				t.Fatalf("ToPercent(%v) = nil, want %v", tt.input, tt.expected)
			}
			if *got != tt.expected {
				t.Errorf("ToPercent(%v) = %v, want %v", tt.input, *got, tt.expected)
			}
		})
	}

	if got := ToPercent(math.NaN()); got != nil {
		t.Errorf("ToPercent(NaN) = %v, want nil", *got)
	}
}

func TestToWatchSeconds(t *testing.T) {
	if got := ToWatchSeconds(8000); got == nil || *got != 8.0 {
		t.Errorf("ToWatchSeconds(8000) = %v, want 8.0 (ms heuristic)", got)
	}
	if got := ToWatchSeconds(7.8); got == nil || *got != 7.8 {
		t.Errorf("ToWatchSeconds(7.8) = %v, want 7.8", got)
	}
	if got := ToWatchSeconds(7.836); got == nil || *got != 7.84 {
		t.Errorf("ToWatchSeconds(7.836) = %v, want 7.84", got)
	}
	if got := ToWatchSeconds(-1); got != nil {
		t.Errorf("ToWatchSeconds(-1) = %v, want nil", *got)
	}
	if got := ToWatchSeconds(math.NaN()); got != nil {
		t.Errorf("ToWatchSeconds(NaN) = %v, want nil", *got)
	}
	// 600 is the boundary; exactly 600 stays seconds
	if got := ToWatchSeconds(600); got == nil || *got != 600 {
		t.Errorf("ToWatchSeconds(600) = %v, want 600", got)
	}
}

func TestParsePastedMetric(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		percent  bool
		expected float64
	}{
		{"thousands separators", "1,234,567", false, 1234567},
		{"trailing percent", "42%", true, 42},
		{"fractional percent", "0.35", true, 35},
		{"seconds suffix", "12.5 seconds", false, 12.5},
		{"secs suffix", "8 secs", false, 8},
		{"bare s suffix", "7.8s", false, 7.8},
		{"negative floors at zero", "-12", false, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePastedMetric(tt.input, tt.percent)
			if err != nil {
				t.Fatalf("ParsePastedMetric(%q) error: %v", tt.input, err)
			}
			if got != tt.expected {
				t.Errorf("ParsePastedMetric(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}

	if _, err := ParsePastedMetric("not a number", false); err == nil {
		t.Error("expected error for unparseable input")
	}
	if _, err := ParsePastedMetric("", false); err == nil {
		t.Error("expected error for empty input")
	}
}

func TestCanonicalizeReelURL(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"lowercases host and strips www", "https://WWW.Example.com/x/", "https://example.com/x"},
		{"strips query", "https://instagram.com/reel/abc?igsh=123", "https://instagram.com/reel/abc"},
		{"strips fragment", "https://instagram.com/reel/abc#top", "https://instagram.com/reel/abc"},
		{"bare host keeps root path", "https://instagram.com", "https://instagram.com/"},
		{"unparseable falls back to suffix strip", "not a url/path/?q=1", "not a url/path"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanonicalizeReelURL(tt.input); got != tt.expected {
				t.Errorf("CanonicalizeReelURL(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestCanonicalizeReelURLIdempotence(t *testing.T) {
	inputs := []string{
		"https://WWW.Example.com/x/",
		"https://www.instagram.com/reel/ABC123/?utm_source=share",
		"https://instagram.com",
		"plain-text#fragment",
		"",
	}

	for _, input := range inputs {
		once := CanonicalizeReelURL(input)
		twice := CanonicalizeReelURL(once)
		if once != twice {
			t.Errorf("CanonicalizeReelURL not idempotent for %q: %q != %q", input, once, twice)
		}
	}
}
