package guard

import (
	"regexp"
	"strings"
	"unicode"
)

// Intent is the coarse class of an inbound turn.
type Intent string

const (
	IntentSales   Intent = "sales"
	IntentSupport Intent = "support"
)

var (
	supportPattern = regexp.MustCompile(`(?i)\b(refund|not working|doesn'?t work|does not work|broken|bug|error|cancel (my )?subscription|invoice|receipt|can'?t log ?in|password)\b|не работает|возврат|ошибк|сломал|поддержк|отменить подписку|чек`)
	contactAsk     = regexp.MustCompile(`(?i)\b(phone|number|e-?mail|contact|whatsapp|reach you)\b|телефон|номер|почт|email|контакт`)
)

// ClassifyIntent separates support requests from sales-relevant turns.
func ClassifyIntent(text string) Intent {
	if supportPattern.MatchString(text) {
		return IntentSupport
	}
	return IntentSales
}

// AsksForContact reports whether an outbound text requests contact details.
func AsksForContact(text string) bool {
	return contactAsk.MatchString(text)
}

// DetectLanguage prefers a channel-provided hint and otherwise infers from
// script: any Cyrillic letters mean "ru", everything else "en".
func DetectLanguage(text, hint string) string {
	if hint = strings.ToLower(strings.TrimSpace(hint)); hint != "" {
		if i := strings.IndexAny(hint, "-_"); i > 0 {
			hint = hint[:i]
		}
		return hint
	}
	cyrillic, latin := 0, 0
	for _, r := range text {
		switch {
		case unicode.Is(unicode.Cyrillic, r):
			cyrillic++
		case unicode.IsLetter(r) && r < unicode.MaxLatin1:
			latin++
		}
	}
	if cyrillic > 0 && cyrillic >= latin/2 {
		return "ru"
	}
	return "en"
}
