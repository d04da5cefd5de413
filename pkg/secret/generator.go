package secret

import (
	"crypto/rand"
	"encoding/base64"
	"strings"
)

// Prefix marks NodeMesh connection secrets so the logger can mask them.
const Prefix = "nmcs_"

// DefaultLength is the number of random bytes in a secret body.
const DefaultLength = 32

// Generate returns a fresh connection secret.
func Generate() (string, error) {
	body, err := GenerateWithLength(DefaultLength)
	if err != nil {
		return "", err
	}
	return Prefix + body, nil
}

// GenerateWithLength returns length random bytes, Base64 RawURL encoded.
func GenerateWithLength(length int) (string, error) {
	buf, err := GenerateBytes(length)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// GenerateBytes returns length random bytes.
func GenerateBytes(length int) ([]byte, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// IsSecret reports whether s looks like a connection secret.
func IsSecret(s string) bool {
	return strings.HasPrefix(s, Prefix) && len(s) > len(Prefix)
}
