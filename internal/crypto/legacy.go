package crypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"
)

// Sealed is the output of the legacy block mode: a ciphertext and the IV
// needed to open it.
type Sealed struct {
	Ciphertext []byte
	IV         []byte
}

// String renders s as base64url(iv) + "." + base64url(ciphertext).
func (s Sealed) String() string {
	return base64.URLEncoding.EncodeToString(s.IV) + "." + base64.URLEncoding.EncodeToString(s.Ciphertext)
}

// ParseSealed parses the text form produced by Sealed.String.
func ParseSealed(text string) (Sealed, error) {
	ivPart, ctPart, ok := strings.Cut(text, ".")
	if !ok {
		return Sealed{}, fmt.Errorf("%w: missing IV separator", ErrDecryption)
	}
	iv, err := base64.URLEncoding.DecodeString(ivPart)
	if err != nil {
		return Sealed{}, fmt.Errorf("%w: invalid IV encoding", ErrDecryption)
	}
	ct, err := base64.URLEncoding.DecodeString(ctPart)
	if err != nil {
		return Sealed{}, fmt.Errorf("%w: invalid ciphertext encoding", ErrDecryption)
	}
	return Sealed{Ciphertext: ct, IV: iv}, nil
}

// LegacyBlockEnvelope is an AES-256-CBC Envelope with PKCS#7 padding.
//
// It is not authenticated. Corrupt padding or framing is reported as
// ErrDecryption, but a wrong key occasionally produces valid padding and
// returns garbage. Use it only to read or write data that requires it.
type LegacyBlockEnvelope struct {
	mu  sync.RWMutex
	key []byte
}

// NewLegacyBlockEnvelope returns an AES-256-CBC envelope bound to a copy of key.
func NewLegacyBlockEnvelope(key []byte) (*LegacyBlockEnvelope, error) {
	k, err := copyKey(key)
	if err != nil {
		return nil, err
	}
	return &LegacyBlockEnvelope{key: k}, nil
}

// Mode returns ModeLegacyBlock.
func (e *LegacyBlockEnvelope) Mode() Mode { return ModeLegacyBlock }

// Seal encrypts plaintext with a fresh random IV.
func (e *LegacyBlockEnvelope) Seal(plaintext []byte) (Sealed, error) {
	iv, err := RandomBytes(aes.BlockSize)
	if err != nil {
		return Sealed{}, fmt.Errorf("generate IV: %w", err)
	}

	e.mu.RLock()
	block, err := aes.NewCipher(e.key)
	e.mu.RUnlock()
	if err != nil {
		return Sealed{}, fmt.Errorf("create cipher: %w", err)
	}

	padded := pkcs7Pad(plaintext, aes.BlockSize)
	ct := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ct, padded)

	return Sealed{Ciphertext: ct, IV: iv}, nil
}

// Open decrypts a Sealed value.
func (e *LegacyBlockEnvelope) Open(s Sealed) ([]byte, error) {
	if len(s.IV) != aes.BlockSize {
		return nil, fmt.Errorf("%w: IV must be %d bytes", ErrDecryption, aes.BlockSize)
	}
	if len(s.Ciphertext) == 0 || len(s.Ciphertext)%aes.BlockSize != 0 {
		return nil, fmt.Errorf("%w: ciphertext is not a multiple of the block size", ErrDecryption)
	}

	e.mu.RLock()
	block, err := aes.NewCipher(e.key)
	e.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	padded := make([]byte, len(s.Ciphertext))
	cipher.NewCBCDecrypter(block, s.IV).CryptBlocks(padded, s.Ciphertext)

	plaintext, err := pkcs7Unpad(padded, aes.BlockSize)
	if err != nil {
		return nil, err
	}
	return plaintext, nil
}

// Encrypt seals plaintext and renders it with Sealed.String.
func (e *LegacyBlockEnvelope) Encrypt(plaintext string) (string, error) {
	s, err := e.Seal([]byte(plaintext))
	if err != nil {
		return "", err
	}
	return s.String(), nil
}

// Decrypt parses and opens text produced by Encrypt.
func (e *LegacyBlockEnvelope) Decrypt(ciphertext string) (string, error) {
	s, err := ParseSealed(ciphertext)
	if err != nil {
		return "", err
	}
	plaintext, err := e.Open(s)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// RotateKey replaces the active key. The previous key is zeroed.
func (e *LegacyBlockEnvelope) RotateKey(newKey []byte) error {
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

// Reencrypt decrypts ciphertext under oldKey and encrypts it under newKey.
func (e *LegacyBlockEnvelope) Reencrypt(ciphertext string, oldKey, newKey []byte) (string, error) {
	return reencrypt(ModeLegacyBlock, ciphertext, oldKey, newKey)
}

// VerifyKey reports whether key has the AES-256 key length.
func (e *LegacyBlockEnvelope) VerifyKey(key []byte) bool {
	return VerifyKey(key)
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	return append(append(make([]byte, 0, len(data)+n), data...), bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, fmt.Errorf("%w: invalid padding", ErrDecryption)
	}
	n := int(data[len(data)-1])
	if n == 0 || n > blockSize {
		return nil, fmt.Errorf("%w: invalid padding", ErrDecryption)
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, fmt.Errorf("%w: invalid padding", ErrDecryption)
		}
	}
	return data[:len(data)-n], nil
}
