// Package stringutil provides small string helpers shared across packages.
package stringutil

// TruncateString returns s cut to at most maxLen bytes.
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}

// TruncateStringWithEllipsis returns s cut to at most maxLen bytes, replacing
// the tail with "..." when anything was dropped. Used to keep verbose remote
// command output out of log lines.
func TruncateStringWithEllipsis(s string, maxLen int) string {
	if maxLen < 4 {
		return TruncateString(s, maxLen)
	}
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
