package security

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

// GenerateSecureToken returns a URL-safe random string built from the
// given number of random bytes. Used for password reset tokens, which
// travel inside links.
func GenerateSecureToken(byteLength int) (string, error) {
	if byteLength <= 0 {
		return "", fmt.Errorf("length must be positive")
	}

	buf := make([]byte, byteLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashToken returns the hex SHA-256 digest of the value. Reset tokens
// and backup codes are stored only in this form.
func HashToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

// TokenGenerator pairs the signing key provider with the kid stamped
// into issued session tokens.
type TokenGenerator struct {
	keyProvider KeyProvider
	kid         string
}

// NewTokenGenerator creates a new TokenGenerator.
func NewTokenGenerator(keyProvider KeyProvider, kid string) (*TokenGenerator, error) {
	return &TokenGenerator{
		keyProvider: keyProvider,
		kid:         kid,
	}, nil
}

// GetKID returns the key ID used for signing.
func (t *TokenGenerator) GetKID() string {
	return t.kid
}
