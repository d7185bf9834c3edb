package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"fmt"
	"sync"
)

const (
	// NonceSize is the size of the GCM nonce in bytes.
	NonceSize = 12

	// TagSize is the size of the GCM authentication tag in bytes.
	TagSize = 16

	// envelopeVersion prefixes every authenticated token and is bound as
	// additional data.
	envelopeVersion byte = 0x01
)

// AuthenticatedEnvelope is an AES-256-GCM Envelope.
//
// Token layout before base64url encoding:
//
//	version (1) || nonce (12) || ciphertext || tag (16)
type AuthenticatedEnvelope struct {
	mu  sync.RWMutex
	key []byte
}

// NewAuthenticatedEnvelope returns an AES-256-GCM envelope bound to a copy of key.
func NewAuthenticatedEnvelope(key []byte) (*AuthenticatedEnvelope, error) {
	k, err := copyKey(key)
	if err != nil {
		return nil, err
	}
	return &AuthenticatedEnvelope{key: k}, nil
}

// Mode returns ModeAuthenticated.
func (e *AuthenticatedEnvelope) Mode() Mode { return ModeAuthenticated }

// Encrypt seals plaintext with a fresh random nonce.
func (e *AuthenticatedEnvelope) Encrypt(plaintext string) (string, error) {
	e.mu.RLock()
	gcm, err := newGCM(e.key)
	e.mu.RUnlock()
	if err != nil {
		return "", err
	}

	nonce, err := RandomBytes(NonceSize)
	if err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	header := []byte{envelopeVersion}
	out := make([]byte, 0, 1+NonceSize+len(plaintext)+TagSize)
	out = append(out, header...)
	out = append(out, nonce...)
	out = gcm.Seal(out, nonce, []byte(plaintext), header)

	return base64.URLEncoding.EncodeToString(out), nil
}

// Decrypt opens a token produced by Encrypt. Any malformed, tampered or
// wrong-key input yields ErrDecryption.
func (e *AuthenticatedEnvelope) Decrypt(ciphertext string) (string, error) {
	raw, err := base64.URLEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: invalid encoding", ErrDecryption)
	}
	if len(raw) < 1+NonceSize+TagSize {
		return "", fmt.Errorf("%w: ciphertext too short", ErrDecryption)
	}
	if raw[0] != envelopeVersion {
		return "", fmt.Errorf("%w: unsupported version %d", ErrDecryption, raw[0])
	}

	e.mu.RLock()
	gcm, err := newGCM(e.key)
	e.mu.RUnlock()
	if err != nil {
		return "", err
	}

	header := raw[:1]
	nonce := raw[1 : 1+NonceSize]
	sealed := raw[1+NonceSize:]

	plaintext, err := gcm.Open(nil, nonce, sealed, header)
	if err != nil {
		return "", ErrDecryption
	}
	return string(plaintext), nil
}

// RotateKey replaces the active key. The previous key is zeroed.
func (e *AuthenticatedEnvelope) RotateKey(newKey []byte) error {
	k, err := copyKey(newKey)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	ZeroBytes(e.key)
	e.key = k
	return nil
}

// Reencrypt decrypts ciphertext under oldKey and encrypts the result under
// newKey. The active key is not used or changed.
func (e *AuthenticatedEnvelope) Reencrypt(ciphertext string, oldKey, newKey []byte) (string, error) {
	return reencrypt(ModeAuthenticated, ciphertext, oldKey, newKey)
}

// VerifyKey reports whether key has the AES-256 key length.
func (e *AuthenticatedEnvelope) VerifyKey(key []byte) bool {
	return VerifyKey(key)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return gcm, nil
}
