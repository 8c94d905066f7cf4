package funnel

import (
	"regexp"
	"sort"
	"strings"
)

// Intake fact keys.
const (
	FactBusinessType = "business_type"
	FactChannels     = "channels"
	FactPain         = "pain"
)

var (
	businessPattern   = regexp.MustCompile(`(?i)\b(?:i|we)\s+(?:run|own|have|manage|operate)\s+(?:a|an|the|my|our)?\s*([a-z][a-z\- ]{2,40}?)(?:[.,!?;]|\s+(?:in|and|with|that|which|for)\b|$)`)
	businessRUPattern = regexp.MustCompile(`(?i)у\s+(?:меня|нас)\s+([а-яё\- ]{3,40}?)(?:[.,!?;]|$)`)
	painPattern       = regexp.MustCompile(`(?i)\b(?:problem|issue|struggle|struggling|pain|challenge|can'?t|cannot|losing|lose|need help with)\b[^.!?\n]{0,80}|проблем[^.!?\n]{0,80}|не успева[^.!?\n]{0,80}|теря[^.!?\n]{0,80}`)
)

var channelKeywords = map[string]string{
	"instagram": "instagram",
	"insta":     "instagram",
	"telegram":  "telegram",
	"whatsapp":  "whatsapp",
	"facebook":  "facebook",
	"messenger": "facebook",
	"tiktok":    "tiktok",
	"website":   "website",
	"site":      "website",
	"инстаграм": "instagram",
	"телеграм":  "telegram",
	"ватсап":    "whatsapp",
	"сайт":      "website",
}

// ExtractFacts pulls intake facts out of free text. Missing facts are omitted.
func ExtractFacts(text string) map[string]string {
	facts := make(map[string]string)
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return facts
	}

	if m := businessPattern.FindStringSubmatch(trimmed); len(m) > 1 {
		if v := strings.TrimSpace(m[1]); v != "" {
			facts[FactBusinessType] = v
		}
	} else if m := businessRUPattern.FindStringSubmatch(trimmed); len(m) > 1 {
		if v := strings.TrimSpace(m[1]); v != "" {
			facts[FactBusinessType] = v
		}
	}

	if channels := mentionedChannels(trimmed); len(channels) > 0 {
		facts[FactChannels] = strings.Join(channels, ",")
	}

	if m := painPattern.FindString(trimmed); m != "" {
		facts[FactPain] = strings.TrimSpace(m)
	}
	return facts
}

func mentionedChannels(text string) []string {
	lowered := strings.ToLower(text)
	seen := make(map[string]bool)
	for _, word := range strings.FieldsFunc(lowered, func(r rune) bool {
		return !(r == '-' || r >= 'a' && r <= 'z' || r >= 'а' && r <= 'я' || r == 'ё')
	}) {
		if canonical, ok := channelKeywords[word]; ok {
			seen[canonical] = true
		}
	}
	out := make([]string, 0, len(seen))
	for ch := range seen {
		out = append(out, ch)
	}
	sort.Strings(out)
	return out
}
