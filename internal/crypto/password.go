package crypto

import (
	"crypto/subtle"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/argon2"
)

const (
	// Argon2Time is the time parameter for Argon2id.
	Argon2Time = 3

	// Argon2Memory is the memory parameter for Argon2id in KiB.
	Argon2Memory = 64 * 1024

	// Argon2Threads is the parallelism parameter for Argon2id.
	Argon2Threads = 4

	// PasswordHashSize is the size of the Argon2id hash in bytes.
	PasswordHashSize = 32
)

// HashPassword hashes an account password with Argon2id.
// The result is base64(salt || hash). This hash authenticates logins only;
// it is independent from the PBKDF2 vault key.
func HashPassword(password string) (string, error) {
	salt, err := GenerateSalt()
	if err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	hash := argon2.IDKey([]byte(password), salt, Argon2Time, Argon2Memory, Argon2Threads, PasswordHashSize)

	combined := make([]byte, SaltSize+PasswordHashSize)
	copy(combined[:SaltSize], salt)
	copy(combined[SaltSize:], hash)

	return base64.StdEncoding.EncodeToString(combined), nil
}

// VerifyPassword reports whether password matches a hash produced by HashPassword.
func VerifyPassword(password, encodedHash string) bool {
	combined, err := base64.StdEncoding.DecodeString(encodedHash)
	if err != nil {
		return false
	}

	if len(combined) != SaltSize+PasswordHashSize {
		return false
	}

	salt := combined[:SaltSize]
	storedHash := combined[SaltSize:]

	computedHash := argon2.IDKey([]byte(password), salt, Argon2Time, Argon2Memory, Argon2Threads, PasswordHashSize)

	return subtle.ConstantTimeCompare(storedHash, computedHash) == 1
}
