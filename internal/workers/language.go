package workers

import (
	"strings"

	"golang.org/x/text/language"
)

// CanonicalLanguage normalizes a language hint ("en", "EN-us", "eng") to its
// two-letter base form. Unrecognized or empty hints fall back to the
// configured default so downstream components always see a usable code.
func CanonicalLanguage(hint, fallback string) string {
	hint = strings.TrimSpace(hint)
	if hint == "" {
		return fallback
	}
	tag, err := language.Parse(hint)
	if err != nil {
		return fallback
	}
	base, confidence := tag.Base()
	if confidence == language.No {
		return fallback
	}
	return base.String()
}
