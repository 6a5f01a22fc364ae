package auth

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// OpaqueTokenBytes is the amount of randomness in an opaque session token.
const OpaqueTokenBytes = 32

// NewOpaqueToken returns 32 random bytes as 64 lowercase hex characters.
func NewOpaqueToken() (string, error) {
	buf := make([]byte, OpaqueTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate session token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
