// Package streamkey generates opaque stream secrets for out-of-band
// ingestion. A secret is generated once per channel and never reused as a
// room access token.
package streamkey

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

const secretBytes = 24

// Generate returns a fresh hex-encoded stream secret.
func Generate() (string, error) {
	b := make([]byte, secretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate stream secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// Mask hides all but the last four characters of a secret for display.
func Mask(secret string) string {
	if len(secret) <= 4 {
		return "****"
	}
	return "****" + secret[len(secret)-4:]
}
