// Package phone provides phone number utilities.
// This is part of the platform layer and contains no business logic.
package phone

import (
	"fmt"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

const defaultRegion = "US"

// NormalizeE164 formats a phone number to E.164. If parsing fails, it returns the trimmed input.
func NormalizeE164(input string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return trimmed
	}

	number, err := phonenumbers.Parse(trimmed, defaultRegion)
	if err != nil {
		return trimmed
	}

	if !phonenumbers.IsValidNumber(number) {
		return trimmed
	}

	return phonenumbers.Format(number, phonenumbers.E164)
}

// ValidateE164 parses and validates a phone number, returning the E.164 form
// or an error when the number cannot be dialed.
func ValidateE164(input string) (string, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "", fmt.Errorf("phone number is empty")
	}

	number, err := phonenumbers.Parse(trimmed, defaultRegion)
	if err != nil {
		return "", fmt.Errorf("parse phone number: %w", err)
	}
	if !phonenumbers.IsValidNumber(number) {
		return "", fmt.Errorf("phone number %q is not a valid number", trimmed)
	}

	return phonenumbers.Format(number, phonenumbers.E164), nil
}
