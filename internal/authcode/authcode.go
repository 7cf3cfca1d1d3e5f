// Package authcode generates and normalizes the invitation codes that gate
// user registration. Codes are random 12-character strings from an alphabet
// with visually ambiguous characters (0/O, 1/I/L) removed, since codes are
// read aloud or retyped from email.
package authcode

import (
	"crypto/rand"
	"fmt"
	"strings"
)

// alphabet excludes 0, O, 1, I, and L.
const alphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// CodeLength is the number of characters in a generated code.
const CodeLength = 12

// Generate returns a new random code in canonical (normalized) form.
func Generate() (string, error) {
	buf := make([]byte, CodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate auth code: %w", err)
	}
	for i, b := range buf {
		buf[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(buf), nil
}

// Normalize converts user input to canonical form: uppercase with hyphens and
// whitespace removed. Normalize is idempotent.
func Normalize(code string) string {
	var b strings.Builder
	b.Grow(len(code))
	for _, r := range strings.ToUpper(code) {
		switch r {
		case '-', ' ', '\t':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// FormatDisplay renders a canonical code in grouped form (XXXX-XXXX-XXXX) for
// presentation. Codes whose length is not a multiple of four get a shorter
// final group.
func FormatDisplay(code string) string {
	code = Normalize(code)
	var groups []string
	for i := 0; i < len(code); i += 4 {
		end := i + 4
		if end > len(code) {
			end = len(code)
		}
		groups = append(groups, code[i:end])
	}
	return strings.Join(groups, "-")
}
