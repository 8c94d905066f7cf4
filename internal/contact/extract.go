// Package contact pulls a usable contact (email, phone or handle) out of free text.
package contact

import (
	"regexp"
	"strings"

	"salesbot_backend/platform/phone"
)

// Kind is the contact type.
type Kind string

const (
	KindEmail  Kind = "email"
	KindPhone  Kind = "phone"
	KindHandle Kind = "handle"
)

// Contact is one extracted contact value.
type Contact struct {
	Value string
	Kind  Kind
}

// MinPhoneDigits is the shortest digit count accepted as a phone number.
const MinPhoneDigits = 8

const (
	maxPhoneDigits   = 15
	minAttemptDigits = 7
)

var (
	emailPattern   = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9\-]+(?:\.[A-Za-z0-9\-]+)*\.[A-Za-z]{2,}`)
	phonePattern   = regexp.MustCompile(`(?:\+|00|\()?\d[\d\s().\-]{5,}\d`)
	handlePattern  = regexp.MustCompile(`(?:^|[\s(,:;])@([A-Za-z0-9_](?:[A-Za-z0-9_.]{1,28}[A-Za-z0-9_])?)`)
	attemptPattern = regexp.MustCompile(`(?:\+|\(|\b[08])[\d\s().\-]*\d`)
)

// Extract returns the first contact found in text, trying email, then phone,
// then handle. region is the default phone region for numbers without a
// country prefix.
func Extract(text, region string) (Contact, bool) {
	if text == "" {
		return Contact{}, false
	}
	if m := emailPattern.FindString(text); m != "" {
		return Contact{Value: strings.ToLower(strings.Trim(m, ".")), Kind: KindEmail}, true
	}
	for _, candidate := range phonePattern.FindAllString(text, -1) {
		if value, ok := normalizePhone(candidate, region); ok {
			return Contact{Value: value, Kind: KindPhone}, true
		}
	}
	if m := handlePattern.FindStringSubmatch(text); len(m) == 2 {
		return Contact{Value: "@" + strings.ToLower(m[1]), Kind: KindHandle}, true
	}
	return Contact{}, false
}

// LooksMalformed reports text that seems to carry a contact attempt that
// Extract could not parse: an "@", or a run of at least seven digits that
// starts like a phone number ("+", "(", a leading 0 or 8).
func LooksMalformed(text string) bool {
	if _, ok := Extract(text, ""); ok {
		return false
	}
	if strings.Contains(text, "@") {
		return true
	}
	for _, m := range attemptPattern.FindAllString(text, -1) {
		if len(onlyDigits(m)) >= minAttemptDigits {
			return true
		}
	}
	return false
}

// normalizePhone keeps the longest run of whitespace-separated groups that
// parses as a valid number, so trailing digits ("5pm") are not glued on.
// An international candidate no parser accepts is kept verbatim only when
// its grouping looks like a single number.
func normalizePhone(candidate, region string) (string, bool) {
	groups := strings.Fields(candidate)
	for n := len(groups); n > 0; n-- {
		prefix := strings.Join(groups[:n], " ")
		if !digitCountOK(prefix) {
			continue
		}
		if value, ok := phone.Parse(prefix, region); ok {
			return value, true
		}
	}

	trimmed := strings.TrimSpace(candidate)
	if !digitCountOK(trimmed) || !plausibleGrouping(groups) {
		return "", false
	}
	digits := onlyDigits(trimmed)
	switch {
	case strings.HasPrefix(trimmed, "00"):
		return "+" + strings.TrimPrefix(digits, "00"), true
	case strings.HasPrefix(trimmed, "+"):
		return "+" + digits, true
	}
	return "", false
}

func digitCountOK(s string) bool {
	n := len(onlyDigits(s))
	return n >= MinPhoneDigits && n <= maxPhoneDigits
}

// plausibleGrouping rejects a lone trailing digit after the country code
// group, which is almost always a time or a count rather than part of the
// number.
func plausibleGrouping(groups []string) bool {
	for i, g := range groups {
		if i > 0 && len(onlyDigits(g)) < 2 {
			return false
		}
	}
	return true
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
