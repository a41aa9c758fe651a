package util

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
)

// StateTokenBytes is the entropy of an OAuth state token.
const StateTokenBytes = 32

// GenerateToken returns a URL-safe random token carrying StateTokenBytes of entropy.
func GenerateToken() (string, error) {
	bytes := make([]byte, StateTokenBytes)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(bytes), nil
}

// HashToken returns the hex SHA-256 of token, for storage keys that must not reveal it.
func HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// MaskToken keeps a short prefix for log correlation.
func MaskToken(token string) string {
	if len(token) <= 8 {
		return "****"
	}
	return token[:6] + "****"
}
