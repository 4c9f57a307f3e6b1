// Package otp generates numeric one-time verification codes.
package otp

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// DefaultLength is the code length used when none is configured.
const DefaultLength = 6

// Generate produces a uniform random numeric code of the given length with
// no leading zero: for length 6 the range is [100000, 999999]. The short
// validity window plus attempt limiting carry the guess-resistance; the code
// itself only needs to be uniform.
func Generate(length int) (string, error) {
	if length < 4 {
		length = DefaultLength
	}

	// min = 10^(length-1), span = 9*min, code = min + uniform(span).
	min := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(length-1)), nil)
	span := new(big.Int).Mul(min, big.NewInt(9))

	n, err := rand.Int(rand.Reader, span)
	if err != nil {
		return "", fmt.Errorf("generating code: %w", err)
	}
	return n.Add(n, min).String(), nil
}
