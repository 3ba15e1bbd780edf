package utils

import (
	"fmt"
	"os"
)

// FormatDuration formats a duration in milliseconds as a human-readable
// string, e.g. "1h23m45s", "5m30s", "45s".
func FormatDuration(ms int64) string {
	if ms < 0 {
		ms = 0
	}
	seconds := ms / 1000
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	secs := seconds % 60

	switch {
	case hours > 0:
		return fmt.Sprintf("%dh%dm%ds", hours, minutes, secs)
	case minutes > 0:
		return fmt.Sprintf("%dm%ds", minutes, secs)
	default:
		return fmt.Sprintf("%ds", secs)
	}
}

// MaskEmail masks an email address for privacy in logs, e.g. "j***@example.com".
func MaskEmail(email string) string {
	at := -1
	for i, r := range email {
		if r == '@' {
			at = i
			break
		}
	}
	if at <= 0 {
		return "***"
	}
	local, domain := email[:at], email[at+1:]
	if len(local) <= 1 {
		return local + "***@" + domain
	}
	return string(local[0]) + "***@" + domain
}

// EnsureDir creates a directory (and parents) with the given mode if it
// doesn't already exist.
func EnsureDir(path string, mode os.FileMode) error {
	return os.MkdirAll(path, mode)
}

// FileExists reports whether a path exists.
func FileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
