// File: internal/prompt/normalizer.go
package prompt

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/quietops/linkhawk/api/schemas"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// Normalize collapses whitespace runs (spaces, tabs, newlines) to single
// spaces, trims both ends and upper-cases the first rune. It is the single
// validation gate for user input: an empty or blank prompt fails with
// *schemas.InvalidInputError before any further processing.
//
// Normalize is idempotent: Normalize(Normalize(p)) == Normalize(p).
func Normalize(raw string) (string, error) {
	cleaned := strings.TrimSpace(whitespaceRun.ReplaceAllString(raw, " "))
	if cleaned == "" {
		return "", &schemas.InvalidInputError{}
	}

	first, size := utf8.DecodeRuneInString(cleaned)
	if unicode.IsLower(first) {
		cleaned = string(unicode.ToUpper(first)) + cleaned[size:]
	}
	return cleaned, nil
}
