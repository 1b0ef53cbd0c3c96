package util

import (
	"crypto/rand"
	"math/big"
)

const (
	TokenLength   = 12
	tokenAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// TokenSource yields request tokens. Swapped out in tests for deterministic names.
type TokenSource func() string

// RandomToken returns TokenLength characters drawn from uppercase ASCII and digits.
func RandomToken() string {
	b := make([]byte, TokenLength)
	max := big.NewInt(int64(len(tokenAlphabet)))
	for i := range b {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			// crypto/rand only fails when the OS entropy source is broken
			panic(err)
		}
		b[i] = tokenAlphabet[n.Int64()]
	}
	return string(b)
}

// IsToken reports whether s looks like a token produced by RandomToken.
func IsToken(s string) bool {
	if len(s) != TokenLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= 'A' && c <= 'Z') && !(c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}
