package utils

// Truncate shortens s to at most maxLen runes and marks the cut with "...".
// It never splits a multi-byte character.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	runes := 0
	for i := range s {
		if runes == maxLen {
			return s[:i] + "..."
		}
		runes++
	}
	return s
}
