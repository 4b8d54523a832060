package utils

import (
	"strings"
	"unicode"
)

// SanitizeString strips NUL bytes and non-printable characters (newline,
// carriage return and tab survive) and truncates the result to maxLength
// runes. Applied to every externally supplied string before it is stored or
// echoed back.
func SanitizeString(value string, maxLength int) string {
	var b strings.Builder
	b.Grow(len(value))

	n := 0
	for _, r := range value {
		if r == 0 || (!unicode.IsPrint(r) && r != '\n' && r != '\r' && r != '\t') {
			continue
		}
		if n >= maxLength {
			break
		}
		b.WriteRune(r)
		n++
	}

	return b.String()
}

// TruncateString shortens a string for log output, keeping borderSizeToKeep
// characters on each end.
func TruncateString(str string, borderSizeToKeep int) string {
	if len(str) <= 2*borderSizeToKeep {
		return str
	}
	return str[:borderSizeToKeep] + "..." + str[len(str)-borderSizeToKeep:]
}
