package session

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// idBytes gives 256 bits of entropy.
const idBytes = 32

var idLen = base64.RawURLEncoding.EncodedLen(idBytes)

// GenerateID generates a cryptographically secure session ID.
func GenerateID() (string, error) {
	b := make([]byte, idBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("session: failed to generate id: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// ValidID reports whether s has the shape of an id from GenerateID, so
// arbitrary cookie values never reach the backend.
func ValidID(s string) bool {
	if len(s) != idLen {
		return false
	}
	_, err := base64.RawURLEncoding.DecodeString(s)
	return err == nil
}
