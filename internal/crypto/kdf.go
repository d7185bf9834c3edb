package crypto

import (
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

// PBKDF2Iterations is the fixed iteration count for master key derivation.
const PBKDF2Iterations = 100_000

// DeriveKey derives a 32-byte vault key from a master password using
// PBKDF2-HMAC-SHA256. When salt is nil a fresh random salt is generated.
// The salt actually used is returned so callers can persist it.
//
// The same password and salt always produce the same key.
func DeriveKey(masterPassword string, salt []byte) (key, usedSalt []byte, err error) {
	if masterPassword == "" {
		return nil, nil, fmt.Errorf("%w: master password is required", ErrInvalidInput)
	}

	if salt == nil {
		salt, err = GenerateSalt()
		if err != nil {
			return nil, nil, fmt.Errorf("generate salt: %w", err)
		}
	} else if len(salt) == 0 {
		return nil, nil, fmt.Errorf("%w: salt must not be empty", ErrInvalidInput)
	}

	key = pbkdf2.Key([]byte(masterPassword), salt, PBKDF2Iterations, KeySize, sha256.New)
	return key, salt, nil
}

// DeriveEncodedKey is DeriveKey with the key rendered by EncodeKey.
func DeriveEncodedKey(masterPassword string, salt []byte) (string, []byte, error) {
	key, usedSalt, err := DeriveKey(masterPassword, salt)
	if err != nil {
		return "", nil, err
	}
	defer ZeroBytes(key)
	return EncodeKey(key), usedSalt, nil
}
