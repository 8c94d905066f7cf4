package guard

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	amountExpr   = `\d{1,3}(?:[ ,]\d{3})+(?:\.\d+)?|\d+(?:\.\d+)?`
	pricePattern = regexp.MustCompile(`(?i)[$€£₽]\s?(` + amountExpr + `)|(` + amountExpr + `)\s?(?:usd|eur|rub|руб|₽|\$|€|dollars?|долл)`)

	placeholderPattern = regexp.MustCompile(`(?i)\[[^\]]*\]|\{[^}]*\}|\$x+\b|\bTBD\b|\bN/A\b`)
	markdownHeading    = regexp.MustCompile(`(?m)^#{1,6}\s+`)
)

// normalize collapses whitespace inside lines, keeps at most one blank line
// between blocks and trims the ends.
func normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			if len(out) == 0 || blank {
				continue
			}
			blank = true
			out = append(out, "")
			continue
		}
		blank = false
		out = append(out, line)
	}
	for len(out) > 0 && out[len(out)-1] == "" {
		out = out[:len(out)-1]
	}
	return strings.Join(out, "\n")
}

func splitSentences(line string) []string {
	runes := []rune(line)
	var out []string
	start := 0
	for i, r := range runes {
		if !isTerminator(r) {
			continue
		}
		if i+1 == len(runes) || unicode.IsSpace(runes[i+1]) {
			if s := strings.TrimSpace(string(runes[start : i+1])); s != "" {
				out = append(out, s)
			}
			start = i + 1
		}
	}
	if rest := strings.TrimSpace(string(runes[start:])); rest != "" {
		out = append(out, rest)
	}
	return out
}

func isTerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?' || r == '…'
}

// filterSentences keeps the sentences for which keep returns true. Lines that
// end up empty are removed.
func filterSentences(text string, keep func(sentence string) bool) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			out = append(out, "")
			continue
		}
		sentences := splitSentences(line)
		kept := sentences[:0]
		for _, s := range sentences {
			if keep(s) {
				kept = append(kept, s)
			}
		}
		if len(kept) == 0 {
			continue
		}
		out = append(out, strings.Join(kept, " "))
	}
	return normalize(strings.Join(out, "\n"))
}

func lastSentence(text string) string {
	lines := strings.Split(text, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		sentences := splitSentences(lines[i])
		if len(sentences) > 0 {
			return sentences[len(sentences)-1]
		}
	}
	return ""
}

func containsAny(lowered string, phrases []string) bool {
	for _, p := range phrases {
		if p != "" && strings.Contains(lowered, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

// containsWord matches word case-insensitively on letter boundaries, which
// works for Cyrillic where regexp \b does not.
func containsWord(text, word string) bool {
	if word == "" {
		return false
	}
	haystack := []rune(strings.ToLower(text))
	needle := []rune(strings.ToLower(word))
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if string(haystack[i:i+len(needle)]) != string(needle) {
			continue
		}
		before := i == 0 || !isWordRune(haystack[i-1])
		after := i+len(needle) == len(haystack) || !isWordRune(haystack[i+len(needle)])
		if before && after {
			return true
		}
	}
	return false
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}

// priceAmounts returns the set of normalized amounts quoted in text.
func priceAmounts(text string) map[string]bool {
	out := map[string]bool{}
	for _, m := range pricePattern.FindAllStringSubmatch(text, -1) {
		raw := m[1]
		if raw == "" {
			raw = m[2]
		}
		if amount := normalizeAmount(raw); amount != "" {
			out[amount] = true
		}
	}
	return out
}

// priceAmount returns the first normalized amount in text.
func priceAmount(text string) string {
	m := pricePattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	if m[1] != "" {
		return normalizeAmount(m[1])
	}
	return normalizeAmount(m[2])
}

func normalizeAmount(raw string) string {
	raw = strings.NewReplacer(" ", "", ",", "").Replace(raw)
	if i := strings.IndexByte(raw, '.'); i >= 0 {
		if strings.Trim(raw[i+1:], "0") == "" {
			raw = raw[:i]
		}
	}
	return raw
}

func stripMarkdown(text string) string {
	text = markdownHeading.ReplaceAllString(text, "")
	return strings.NewReplacer("**", "", "__", "", "`", "").Replace(text)
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }
