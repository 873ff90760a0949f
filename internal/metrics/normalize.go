// Package metrics contains pure helpers that coerce raw, untrusted
// metric values into canonical domain values. Counts are rounded
// non-negative integers, percentages live on a 0-100 scale and watch
// times are seconds with two-decimal precision.
package metrics

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
)

// ToCount converts a raw numeric value to a rounded non-negative count.
// Non-finite or non-positive readings are treated as "no signal" and map
// to zero, never to an error.
func ToCount(value float64) int64 {
	if math.IsNaN(value) || math.IsInf(value, 0) || value <= 0 {
		return 0
	}
	return int64(math.Round(value))
}

// ToOptionalCount converts a raw numeric value to a rounded count, or nil
// when the value is non-finite or negative. Used where "unknown" must stay
// distinguishable from zero (e.g. accounts reached).
func ToOptionalCount(value float64) *int64 {
	if math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		return nil
	}
	n := int64(math.Round(value))
	return &n
}

// ToPercent normalizes a percentage-shaped value to the 0-100 range.
// Values in (0, 1] are interpreted as fractions and scaled by 100; the
// result is clamped to [0, 100]. Non-finite input yields nil.
func ToPercent(value float64) *float64 {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return nil
	}
	normalized := value
	if value > 0 && value <= 1 {
		normalized = value * 100
	}
	normalized = math.Min(math.Max(normalized, 0), 100)
	return &normalized
}

// ToWatchSeconds normalizes an average-watch-time reading to seconds with
// two-decimal precision. Magnitudes above 600 are assumed to be
// milliseconds (real watch times rarely exceed ten minutes). Negative or
// non-finite input yields nil.
func ToWatchSeconds(value float64) *float64 {
	if math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		return nil
	}
	seconds := value
	if seconds > 600 {
		seconds = seconds / 1000
	}
	seconds = math.Round(seconds*100) / 100
	return &seconds
}

// ParsePastedMetric parses a metric value pasted by a user, tolerating
// thousands separators, a trailing percent sign and watch-time unit
// suffixes ("seconds", "secs", a bare trailing "s"). When percent is true
// the result is normalized through ToPercent, otherwise it is floored at
// zero.
func ParsePastedMetric(text string, percent bool) (float64, error) {
	cleaned := strings.TrimSpace(strings.ToLower(text))
	cleaned = strings.ReplaceAll(cleaned, ",", "")
	cleaned = strings.TrimSuffix(cleaned, "%")
	cleaned = strings.TrimSuffix(cleaned, "seconds")
	cleaned = strings.TrimSuffix(cleaned, "secs")
	cleaned = strings.TrimSuffix(cleaned, "s")
	cleaned = strings.TrimSpace(cleaned)

	if cleaned == "" {
		return 0, fmt.Errorf("empty metric value")
	}

	parsed, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("could not parse metric value %q", text)
	}

	if percent {
		normalized := ToPercent(parsed)
		if normalized == nil {
			return 0, fmt.Errorf("could not parse metric value %q", text)
		}
		return *normalized, nil
	}

	return math.Max(parsed, 0), nil
}

// CanonicalizeReelURL normalizes a content URL into the stable
// de-duplication key: lower-cased host without a leading "www.", no
// query or fragment, no trailing slashes. Parsing failures fall back to
// a best-effort strip of the raw string; this never fails.
func CanonicalizeReelURL(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}

	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		stripped := trimmed
		if idx := strings.IndexAny(stripped, "#?"); idx >= 0 {
			stripped = stripped[:idx]
		}
		return strings.TrimRight(stripped, "/")
	}

	host := strings.TrimPrefix(strings.ToLower(parsed.Hostname()), "www.")
	path := strings.TrimRight(parsed.EscapedPath(), "/")
	if path == "" {
		path = "/"
	}
	return fmt.Sprintf("%s://%s%s", parsed.Scheme, host, path)
}
