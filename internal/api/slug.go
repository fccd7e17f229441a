package api

import (
	"strings"
	"unicode"
)

// SlugifySubject converts a subject display name into its URL slug:
// lowercase, with every non-alphanumeric run collapsed to a single dash
// ("Donald Trump" becomes "donald-trump").
func SlugifySubject(subject string) string {
	var b strings.Builder
	lastDash := true // suppress a leading dash
	for _, r := range strings.ToLower(subject) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			lastDash = false
			continue
		}
		if !lastDash {
			b.WriteByte('-')
			lastDash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
