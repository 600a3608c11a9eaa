package domain

import (
	"fmt"
	"strings"

	"idforge/pkg/platform/sentinel"
)

// CountryCode is an upper-case ISO 3166-1 alpha-2 code.
type CountryCode string

// ParseCountryCode trims and upper-cases s and requires exactly two ASCII
// letters.
func ParseCountryCode(s string) (CountryCode, error) {
	code := strings.ToUpper(strings.TrimSpace(s))
	if len(code) != 2 || !isUpperASCII(code[0]) || !isUpperASCII(code[1]) {
		return "", fmt.Errorf("country code %q must be two letters: %w", s, sentinel.ErrInvalidInput)
	}
	return CountryCode(code), nil
}

func (c CountryCode) String() string {
	return string(c)
}

func isUpperASCII(b byte) bool {
	return b >= 'A' && b <= 'Z'
}
