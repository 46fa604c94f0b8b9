// Package phone normalises and validates visitor mobile numbers.
//
// A canonical number is the country code, one space, then exactly ten digits,
// for example "+91 9876543210".
package phone

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// DefaultCountryCode is used when a caller passes an empty country code.
const DefaultCountryCode = "+91"

// Digits is the number of subscriber digits a canonical number carries.
const Digits = 10

var (
	ErrEmpty   = errors.New("mobile number is required")
	ErrInvalid = errors.New("mobile number must be 10 digits")
)

var nonDigit = regexp.MustCompile(`\D`)

// Normalize strips the country code prefix and every non-digit character from
// input and returns countryCode + " " + digits. It does not validate length.
func Normalize(countryCode, input string) string {
	if countryCode == "" {
		countryCode = DefaultCountryCode
	}
	s := strings.TrimSpace(input)
	s = strings.TrimPrefix(s, countryCode)
	digits := nonDigit.ReplaceAllString(s, "")
	return countryCode + " " + digits
}

// Valid reports whether s is a canonical number for countryCode.
func Valid(countryCode, s string) bool {
	if countryCode == "" {
		countryCode = DefaultCountryCode
	}
	return pattern(countryCode).MatchString(s)
}

// Parse normalises input and validates the result.
func Parse(countryCode, input string) (string, error) {
	if strings.TrimSpace(input) == "" {
		return "", ErrEmpty
	}
	n := Normalize(countryCode, input)
	if !Valid(countryCode, n) {
		return "", fmt.Errorf("%w: %q", ErrInvalid, input)
	}
	return n, nil
}

func pattern(countryCode string) *regexp.Regexp {
	if countryCode == DefaultCountryCode {
		return defaultPattern
	}
	return regexp.MustCompile(fmt.Sprintf(`^%s \d{%d}$`, regexp.QuoteMeta(countryCode), Digits))
}

var defaultPattern = regexp.MustCompile(`^\+91 \d{10}$`)
