package validators

import (
	"strings"
	"unicode"
)

// SanitizeString drops control characters, folds whitespace runs into single
// spaces and keeps at most maxLen runes. maxLen <= 0 keeps everything.
func SanitizeString(s string, maxLen int) string {
	printable := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && !unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	out := strings.Join(strings.Fields(printable), " ")
	if runes := []rune(out); maxLen > 0 && len(runes) > maxLen {
		out = strings.TrimSpace(string(runes[:maxLen]))
	}
	return out
}
