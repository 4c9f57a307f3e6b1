// Package phone canonicalizes user-entered phone numbers into the single
// digit form used as the verification store key.
package phone

import (
	"errors"
	"fmt"

	"github.com/nyaruka/phonenumbers"
)

// Number is a phone number in canonical digit form (e.g. "998901234567").
// All store keys and equality checks use this form, never raw input.
type Number string

// String returns the canonical digit form.
func (n Number) String() string { return string(n) }

// E164 returns the number with a leading "+", the form gateways expect.
func (n Number) E164() string { return "+" + string(n) }

var (
	// ErrInvalidPhone is returned when the input has no usable digits.
	ErrInvalidPhone = errors.New("invalid phone number")

	// ErrUnrecognizedShape is returned alongside a best-effort Number when
	// the digit shape matches none of the accepted forms. Callers log it and
	// proceed; the gateway may still reject the number.
	ErrUnrecognizedShape = errors.New("unrecognized phone number shape")
)

// Shorter than any dialable number in any plan we accept.
const minDigits = 7

// Subscriber numbers are 9 digits; the trunk-prefixed national form is 10.
const (
	subscriberLen = 9
	trunkPrefix   = '8'
)

// Normalizer canonicalizes numbers for a single fixed country calling code.
type Normalizer struct {
	countryCode string
}

// NewNormalizer creates a Normalizer for the given country calling code
// (digits only, e.g. "998").
func NewNormalizer(countryCode string) *Normalizer {
	return &Normalizer{countryCode: countryCode}
}

// Normalize strips all non-digit characters and maps the three accepted
// shapes to the canonical form:
//
//   - already canonical: countryCode + 9-digit subscriber
//   - trunk-prefixed: '8' + 9-digit subscriber (trunk digit replaced)
//   - bare subscriber: 9 digits (country code prepended)
//
// Any other shape is returned as a best-effort digit string together with
// ErrUnrecognizedShape, not rejected, since the gateway is the final judge.
// Inputs with no or too few digits fail with ErrInvalidPhone.
func (n *Normalizer) Normalize(raw string) (Number, error) {
	digits := stripNonDigits(raw)
	if len(digits) < minDigits {
		return "", fmt.Errorf("%w: %d digits", ErrInvalidPhone, len(digits))
	}

	canonicalLen := len(n.countryCode) + subscriberLen

	var canonical string
	switch {
	case len(digits) == canonicalLen && hasPrefix(digits, n.countryCode):
		canonical = digits
	case len(digits) == subscriberLen+1 && digits[0] == trunkPrefix:
		canonical = n.countryCode + digits[1:]
	case len(digits) == subscriberLen:
		canonical = n.countryCode + digits
	default:
		return Number(digits), fmt.Errorf("%w: %d digits", ErrUnrecognizedShape, len(digits))
	}

	// Cross-check against libphonenumber metadata. A shape that parses but
	// is not a real number for the region is still sent (best effort), but
	// flagged so callers can log it.
	if !isValidE164("+" + canonical) {
		return Number(canonical), fmt.Errorf("%w: fails number-plan validation", ErrUnrecognizedShape)
	}

	return Number(canonical), nil
}

func stripNonDigits(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			out = append(out, s[i])
		}
	}
	return string(out)
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

func isValidE164(s string) bool {
	num, err := phonenumbers.Parse(s, "")
	if err != nil {
		return false
	}
	return phonenumbers.IsValidNumber(num)
}
