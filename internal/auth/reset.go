// reset.go generates password reset tokens. The raw token goes to the user by
// email; only its SHA-256 hash is stored, so a database leak does not expose
// redeemable tokens.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// GenerateResetToken returns a raw reset token and the hex-encoded SHA-256
// hash to store alongside it.
func GenerateResetToken() (raw string, hash string, err error) {
	bytes := make([]byte, 32)
	if _, err := rand.Read(bytes); err != nil {
		return "", "", fmt.Errorf("failed to generate reset token: %w", err)
	}
	raw = hex.EncodeToString(bytes)
	return raw, HashResetToken(raw), nil
}

// HashResetToken computes the stored form of a raw reset token.
func HashResetToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
