package crypto

import (
	"fmt"
	"strings"
)

// Mode selects an Envelope variant.
type Mode string

const (
	// ModeAuthenticated is AES-256-GCM. It is the default.
	ModeAuthenticated Mode = "aead"

	// ModeLegacyBlock is AES-256-CBC with PKCS#7 padding. It provides no
	// integrity and exists for compatibility only.
	ModeLegacyBlock Mode = "cbc"
)

// ParseMode parses a mode name as found in configuration or CLI flags.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeAuthenticated, "":
		return ModeAuthenticated, nil
	case ModeLegacyBlock:
		return ModeLegacyBlock, nil
	default:
		return "", fmt.Errorf("%w: unknown envelope mode %q", ErrInvalidInput, s)
	}
}

// Envelope encrypts and decrypts strings under an active key.
//
// Ciphertexts are self-describing text: everything needed to decrypt
// besides the key is embedded. RotateKey changes the key used by
// subsequent calls only; existing ciphertexts are untouched.
type Envelope interface {
	Mode() Mode
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
	RotateKey(newKey []byte) error
	Reencrypt(ciphertext string, oldKey, newKey []byte) (string, error)
	VerifyKey(key []byte) bool
}

// NewEnvelope returns the Envelope variant for mode bound to key.
func NewEnvelope(mode Mode, key []byte) (Envelope, error) {
	switch mode {
	case ModeAuthenticated:
		return NewAuthenticatedEnvelope(key)
	case ModeLegacyBlock:
		return NewLegacyBlockEnvelope(key)
	default:
		return nil, fmt.Errorf("%w: unknown envelope mode %q", ErrInvalidInput, mode)
	}
}

// Encrypt seals plaintext under key with the authenticated envelope.
func Encrypt(plaintext string, key []byte) (string, error) {
	env, err := NewAuthenticatedEnvelope(key)
	if err != nil {
		return "", err
	}
	return env.Encrypt(plaintext)
}

// Decrypt opens an authenticated envelope ciphertext with key.
func Decrypt(ciphertext string, key []byte) (string, error) {
	env, err := NewAuthenticatedEnvelope(key)
	if err != nil {
		return "", err
	}
	return env.Decrypt(ciphertext)
}

// Reencrypt moves an authenticated envelope ciphertext from oldKey to newKey.
func Reencrypt(ciphertext string, oldKey, newKey []byte) (string, error) {
	return reencrypt(ModeAuthenticated, ciphertext, oldKey, newKey)
}

// VerifyKey reports whether key is structurally usable as an envelope key.
// It says nothing about whether key opens any given ciphertext.
func VerifyKey(key []byte) bool {
	return len(key) == KeySize
}

// VerifyEncodedKey is VerifyKey for the text form produced by EncodeKey.
func VerifyEncodedKey(encoded string) bool {
	_, err := DecodeKey(encoded)
	return err == nil
}

func reencrypt(mode Mode, ciphertext string, oldKey, newKey []byte) (string, error) {
	src, err := NewEnvelope(mode, oldKey)
	if err != nil {
		return "", fmt.Errorf("old key: %w", err)
	}
	dst, err := NewEnvelope(mode, newKey)
	if err != nil {
		return "", fmt.Errorf("new key: %w", err)
	}

	plaintext, err := src.Decrypt(ciphertext)
	if err != nil {
		return "", err
	}
	return dst.Encrypt(plaintext)
}

func copyKey(key []byte) ([]byte, error) {
	if !VerifyKey(key) {
		return nil, ErrInvalidKeySize
	}
	k := make([]byte, KeySize)
	copy(k, key)
	return k, nil
}
