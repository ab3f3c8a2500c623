package authkit

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
)

const opaqueByteLength = 32

var tokenRandomSource io.Reader = rand.Reader

// generateOpaque returns a URL-safe random string used for OAuth state values and
// throwaway passwords of provider-created identities.
func generateOpaque() (string, error) {
	randomBytes := make([]byte, opaqueByteLength)
	if _, err := io.ReadFull(tokenRandomSource, randomBytes); err != nil {
		return "", fmt.Errorf("auth.random: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(randomBytes), nil
}
