// Package phone provides phone number utilities.
// This is part of the platform layer and contains no business logic.
package phone

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// DefaultRegion is used for numbers written without a country prefix.
const DefaultRegion = "US"

// Parse returns the E.164 form of input when it is a valid number.
// Numbers with a leading "+" are parsed without a region.
func Parse(input, region string) (string, bool) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "", false
	}
	if region == "" {
		region = DefaultRegion
	}
	if strings.HasPrefix(trimmed, "00") {
		trimmed = "+" + strings.TrimPrefix(trimmed, "00")
	}

	number, err := phonenumbers.Parse(trimmed, strings.ToUpper(region))
	if err != nil {
		return "", false
	}
	if !phonenumbers.IsValidNumber(number) {
		return "", false
	}
	return phonenumbers.Format(number, phonenumbers.E164), true
}

// NormalizeE164 formats a phone number to E.164. If parsing fails, it returns the trimmed input.
func NormalizeE164(input string) string {
	if normalized, ok := Parse(input, DefaultRegion); ok {
		return normalized
	}
	return strings.TrimSpace(input)
}
