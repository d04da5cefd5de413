package secret

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"strings"

	"golang.org/x/crypto/argon2"
)

// argon2id parameters, sized for 256-bit random secrets.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 2
	argonKeyLen  = 32
	saltLen      = 16
	hashScheme   = "argon2id"
)

// ErrMalformedHash is returned when a stored hash cannot be parsed.
var ErrMalformedHash = errors.New("secret: malformed hash")

// Hash derives an argon2id hash of secret with a random salt.
func Hash(secret string) (string, error) {
	salt, err := GenerateBytes(saltLen)
	if err != nil {
		return "", err
	}
	key := argon2.IDKey([]byte(secret), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	return hashScheme + "$" +
		base64.RawStdEncoding.EncodeToString(salt) + "$" +
		base64.RawStdEncoding.EncodeToString(key), nil
}

// Verify reports whether secret matches the stored hash.
func Verify(secret, stored string) (bool, error) {
	salt, want, err := parseHash(stored)
	if err != nil {
		return false, err
	}
	got := argon2.IDKey([]byte(secret), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

// CheckHash reports ErrMalformedHash if stored was not produced by Hash.
func CheckHash(stored string) error {
	_, _, err := parseHash(stored)
	return err
}

func parseHash(stored string) (salt, key []byte, err error) {
	parts := strings.Split(stored, "$")
	if len(parts) != 3 || parts[0] != hashScheme {
		return nil, nil, ErrMalformedHash
	}
	salt, err = base64.RawStdEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, nil, ErrMalformedHash
	}
	key, err = base64.RawStdEncoding.DecodeString(parts[2])
	if err != nil || len(key) != argonKeyLen {
		return nil, nil, ErrMalformedHash
	}
	return salt, key, nil
}
