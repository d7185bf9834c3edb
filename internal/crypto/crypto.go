// Package crypto provides the cryptographic core of GuardiaPass.
// It derives vault keys from master passwords with PBKDF2-HMAC-SHA256,
// seals credential secrets in an AES-256-GCM envelope (with an AES-CBC
// legacy variant) and hashes account passwords with Argon2id.
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

const (
	// KeySize is the size of vault keys in bytes.
	KeySize = 32

	// SaltSize is the size of generated KDF salts in bytes.
	SaltSize = 16
)

var (
	// ErrInvalidInput is returned for bad arguments such as an empty master password.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidKeySize is returned when a key has an incorrect size.
	ErrInvalidKeySize = fmt.Errorf("%w: key must be 32 bytes", ErrInvalidInput)

	// ErrDecryption is returned when a ciphertext cannot be opened, either
	// because the key is wrong or because the data is malformed or tampered.
	ErrDecryption = errors.New("decryption failed")

	// ErrEntropyUnavailable is returned when the system randomness source fails.
	ErrEntropyUnavailable = errors.New("entropy unavailable")
)

// randReader is the randomness source for salts, nonces, IVs and keys.
var randReader io.Reader = rand.Reader

// RandomBytes returns n bytes read from the system CSPRNG.
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(randReader, b); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEntropyUnavailable, err)
	}
	return b, nil
}

// GenerateKey generates a random 32-byte key.
func GenerateKey() ([]byte, error) {
	return RandomBytes(KeySize)
}

// GenerateSalt generates a random 16-byte salt.
func GenerateSalt() ([]byte, error) {
	return RandomBytes(SaltSize)
}

// EncodeKey encodes a key as URL-safe base64, the text form used for
// persistence and session state.
func EncodeKey(key []byte) string {
	return base64.URLEncoding.EncodeToString(key)
}

// DecodeKey decodes a URL-safe base64 key and checks its length.
func DecodeKey(encoded string) ([]byte, error) {
	key, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: key is not valid base64: %v", ErrInvalidInput, err)
	}
	if len(key) != KeySize {
		return nil, ErrInvalidKeySize
	}
	return key, nil
}

// EncodeSalt encodes a salt as URL-safe base64.
func EncodeSalt(salt []byte) string {
	return base64.URLEncoding.EncodeToString(salt)
}

// DecodeSalt decodes a URL-safe base64 salt.
func DecodeSalt(encoded string) ([]byte, error) {
	salt, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: salt is not valid base64: %v", ErrInvalidInput, err)
	}
	return salt, nil
}

// ZeroBytes overwrites b with zeros.
func ZeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// HashToken creates a SHA-256 hash of a token.
func HashToken(token []byte) []byte {
	hash := sha256.Sum256(token)
	return hash[:]
}

// HashTokenString is a convenience function that hashes a string token.
func HashTokenString(token string) []byte {
	return HashToken([]byte(token))
}

// CompareTokens compares two token hashes in constant time.
func CompareTokens(hash1, hash2 []byte) bool {
	return subtle.ConstantTimeCompare(hash1, hash2) == 1
}

// GenerateTokenString generates length random bytes and returns them as
// URL-safe base64.
func GenerateTokenString(length int) (string, error) {
	token, err := RandomBytes(length)
	if err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(token), nil
}
