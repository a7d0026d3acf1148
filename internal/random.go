package internal

import (
	"crypto/rand"
	"encoding/base64"
	"math/big"
	"strings"
)

const (
	// verificationKeySize is the raw entropy behind an email verification
	// key: short enough for a URL path segment, long enough to resist
	// guessing within its TTL.
	verificationKeySize = 5

	// resetKeySize is the raw entropy behind a password reset key. Resets
	// grant more than verification does, so the key is twice as long.
	resetKeySize = 10

	clientSecretSize   = 20
	clientSuffixLength = 10

	// TOTPSecretLength is the length of the shared authenticator secret in
	// characters.
	TOTPSecretLength = 20
)

const alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// NewVerificationKey returns a fresh email verification key: URL-safe
// base64 over random bytes, unpadded.
func NewVerificationKey() (string, error) {
	return randomURLKey(verificationKeySize)
}

// NewResetKey returns a fresh password reset key.
func NewResetKey() (string, error) {
	return randomURLKey(resetKeySize)
}

// NewClientSecret returns the raw shared secret for a new API client.
func NewClientSecret() ([]byte, error) {
	secret := make([]byte, clientSecretSize)
	if _, err := rand.Read(secret); err != nil {
		return nil, err
	}
	return secret, nil
}

// NewClientIDSuffix returns the random alphanumeric tail appended to a
// client's numeric ID to form its public identifier.
func NewClientIDSuffix() (string, error) {
	return randomAlphanumeric(clientSuffixLength)
}

// NewTOTPSecret returns a fresh shared secret for time-based code
// verification.
func NewTOTPSecret() (string, error) {
	return randomAlphanumeric(TOTPSecretLength)
}

func randomURLKey(size int) (string, error) {
	raw := make([]byte, size)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func randomAlphanumeric(length int) (string, error) {
	var b strings.Builder
	b.Grow(length)

	max := big.NewInt(int64(len(alphanumeric)))
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(alphanumeric[n.Int64()])
	}
	return b.String(), nil
}
