// Package sanitize provides text sanitization for user-provided chat content.
package sanitize

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	userDataBegin = "<<<USER_MESSAGE>>>"
	userDataEnd   = "<<<END_USER_MESSAGE>>>"
)

var (
	htmlTagRegex    = regexp.MustCompile(`<[^>]*>`)
	multiSpaceRegex = regexp.MustCompile(`[ \t]{2,}`)
	manyBreaksRegex = regexp.MustCompile(`\n{3,}`)
)

// StripHTML removes all HTML tags from a string.
func StripHTML(s string) string {
	result := htmlTagRegex.ReplaceAllString(s, "")
	result = strings.ReplaceAll(result, "&lt;", "<")
	result = strings.ReplaceAll(result, "&gt;", ">")
	result = strings.ReplaceAll(result, "&amp;", "&")
	result = strings.ReplaceAll(result, "&quot;", "\"")
	result = strings.ReplaceAll(result, "&#39;", "'")
	// Re-strip after entity decode to catch encoded tags
	result = htmlTagRegex.ReplaceAllString(result, "")
	return strings.TrimSpace(result)
}

// Text strips markup and control characters and collapses runs of whitespace.
// Newlines and tabs survive.
func Text(s string) string {
	var sb strings.Builder
	for _, r := range StripHTML(s) {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		sb.WriteRune(r)
	}
	result := multiSpaceRegex.ReplaceAllString(sb.String(), " ")
	result = manyBreaksRegex.ReplaceAllString(result, "\n\n")
	return strings.TrimSpace(result)
}

// Truncate cuts s to at most maxRunes runes, appending an ellipsis when cut.
func Truncate(s string, maxRunes int) string {
	if maxRunes <= 0 || utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:maxRunes])) + "…"
}

// WrapUserData isolates user-provided content from prompt instructions.
func WrapUserData(content string, maxRunes int) string {
	return fmt.Sprintf("%s\n%s\n%s", userDataBegin, Truncate(Text(content), maxRunes), userDataEnd)
}
