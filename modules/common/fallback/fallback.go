package fallback

import (
	"strconv"
	"strings"
)

// SafeString returns a trimmed string or the provided fallback.
func SafeString(value string, fallback string) string {
	if s := strings.TrimSpace(value); s != "" {
		return s
	}
	return fallback
}

// SafeInt parses a positive integer, accepting a trailing "s" unit ("8s"), with a fallback.
func SafeInt(value string, fallback int) int {
	s := strings.TrimSuffix(strings.TrimSpace(value), "s")
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return fallback
}

// SafeAspectRatio provides a sane default aspect ratio.
func SafeAspectRatio(value string) string {
	return SafeString(value, "16:9")
}

// SafeResolution provides a sane default output resolution.
func SafeResolution(value string) string {
	return strings.ToLower(SafeString(value, "720p"))
}

// SafeDuration provides a sane default clip length in seconds.
func SafeDuration(value string) int {
	return SafeInt(value, 8)
}
