package domain

import (
	"fmt"
	"strings"
)

// Address is a canonical dispatchable phone address: a leading '+'
// followed only by digits.
type Address string

func (a Address) String() string { return string(a) }

// Digits returns the address without its leading '+'.
func (a Address) Digits() string { return strings.TrimPrefix(string(a), "+") }

// IsCanonical reports whether a is '+' followed by at least one digit and
// nothing else.
func (a Address) IsCanonical() bool {
	s := string(a)
	if len(s) < 2 || s[0] != '+' {
		return false
	}
	for _, r := range s[1:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// NormalizePhone turns a raw field value into a canonical Address. Values
// without a leading '+' get defaultCountryCode prepended. Normalizing an
// already canonical address returns it unchanged.
func NormalizePhone(raw string, defaultCountryCode string) (Address, error) {
	value := stripDecimalArtifact(strings.TrimSpace(raw))

	hasPlus, digits := splitPhone(value)
	if digits == "" {
		return "", fmt.Errorf("%w: %q has no digits", ErrInvalidPhone, raw)
	}
	if hasPlus {
		return Address("+" + digits), nil
	}

	_, code := splitPhone(strings.TrimSpace(defaultCountryCode))
	if code == "" {
		return "", fmt.Errorf("%w: %q has no country prefix and default country code %q is invalid",
			ErrInvalidPhone, raw, defaultCountryCode)
	}
	return Address("+" + code + digits), nil
}

// NormalizeCountryCode returns code in "+digits" form.
func NormalizeCountryCode(code string) (string, error) {
	_, digits := splitPhone(strings.TrimSpace(code))
	if digits == "" {
		return "", fmt.Errorf("%w: invalid country code %q", ErrConfiguration, code)
	}
	return "+" + digits, nil
}

// stripDecimalArtifact drops a trailing ".0" (or ".00", ...) left behind
// when a phone column was imported as a number.
func stripDecimalArtifact(value string) string {
	dot := strings.LastIndexByte(value, '.')
	if dot < 0 || dot == len(value)-1 {
		return value
	}
	if strings.Trim(value[dot+1:], "0") != "" {
		return value
	}
	return value[:dot]
}

// splitPhone keeps only digits and reports whether a '+' appeared before
// the first digit.
func splitPhone(value string) (bool, string) {
	var (
		b       strings.Builder
		hasPlus bool
	)
	for _, r := range value {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '+' && b.Len() == 0:
			hasPlus = true
		}
	}
	return hasPlus, b.String()
}
