package security

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword hashes a user-facing admin-UI password with bcrypt at the
// default cost.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password cannot be empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// VerifyPassword reports whether password matches the given bcrypt hash.
func VerifyPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// KeyPair is a generated S3 access/secret key pair.
type KeyPair struct {
	AccessKey string
	SecretKey string
}

// GenerateKeyPair generates a fresh random S3 access/secret key pair.
// AccessKey is 15 random bytes, URL-safe base64 encoded to 20 characters;
// SecretKey is 30 random bytes encoded to 40 characters, matching AWS's
// conventional key widths.
func GenerateKeyPair() (KeyPair, error) {
	accessKey, err := randomID(15)
	if err != nil {
		return KeyPair{}, fmt.Errorf("generate access key: %w", err)
	}
	secretKey, err := randomID(30)
	if err != nil {
		return KeyPair{}, fmt.Errorf("generate secret key: %w", err)
	}
	return KeyPair{AccessKey: accessKey, SecretKey: secretKey}, nil
}

// randomID returns a URL-safe base64 encoding of n random bytes.
func randomID(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
