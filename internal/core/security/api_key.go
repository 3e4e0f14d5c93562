package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"
)

// KeyPrefix marks every ezledger API key.
const KeyPrefix = "ezl_live_"

// GenerateAPIKey creates a random API key, its SHA256 hash and a short display prefix.
//
// Only the hash is stored; the real key is shown to the caller once.
//
// Example:
//
//	realKey, keyHash, prefix, err := GenerateAPIKey()
func GenerateAPIKey() (realKey, keyHash, prefix string, err error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", "", "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	realKey = KeyPrefix + hex.EncodeToString(bytes)
	return realKey, HashKey(realKey), realKey[:len(KeyPrefix)+6], nil
}

// HashKey is the lookup hash stored for a key.
func HashKey(key string) string {
	hash := sha256.Sum256([]byte(key))
	return hex.EncodeToString(hash[:])
}

// ValidateKey checks a provided key against a stored hash in constant time.
func ValidateKey(providedKey, storedHash string) bool {
	return subtle.ConstantTimeCompare([]byte(HashKey(providedKey)), []byte(storedHash)) == 1
}

// BearerToken extracts the key from an "Authorization: Bearer <key>" header value.
func BearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || scheme != "Bearer" || token == "" || strings.Contains(token, " ") {
		return "", false
	}
	return token, true
}
