// Package token generates and digests the opaque bearer values used by share
// links and one-time passcodes.
package token

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"math/big"
)

const (
	// MinTokenLen and MaxTokenLen bound presented tokens before any lookup.
	MinTokenLen = 10
	MaxTokenLen = 512
)

// Generate returns a new crypto-random bearer token, base64url encoded.
// size is the number of random bytes; anything under 32 is raised to 32 so a
// token always carries at least 256 bits of entropy.
func Generate(size int) (string, error) {
	if size < 32 {
		size = 32
	}
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Hash computes the hex-encoded SHA-256 digest stored server-side in place of
// the plaintext token.
func Hash(tok string) string {
	sum := sha256.Sum256([]byte(tok))
	return hex.EncodeToString(sum[:])
}

// NumericCode returns a zero-padded random numeric OTP code of the given
// length (clamped to 4..10 digits).
func NumericCode(length int) (string, error) {
	if length < 4 {
		length = 4
	}
	if length > 10 {
		length = 10
	}
	max := big.NewInt(1)
	for i := 0; i < length; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return fmt.Sprintf("%0*d", length, n), nil
}

// ValidateFormat cheaply rejects malformed presented tokens before any store
// lookup: length bounds plus an allowed character set of alphanumerics and
// -_+=. The error describes the failure for internal logging; callers must
// render it identically to a failed lookup.
func ValidateFormat(tok string) error {
	if len(tok) < MinTokenLen || len(tok) > MaxTokenLen {
		return fmt.Errorf("token length %d outside [%d,%d]", len(tok), MinTokenLen, MaxTokenLen)
	}
	for i := 0; i < len(tok); i++ {
		c := tok[i]
		switch {
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9':
		case c == '-' || c == '_' || c == '+' || c == '=':
		default:
			return fmt.Errorf("token contains disallowed character at position %d", i)
		}
	}
	return nil
}
