// Package services contains business logic for GuardiaPass.
package services

import (
	"errors"
	"strings"

	"github.com/jgutierrezgil/guardiapass/internal/strength"
)

// Errors
var (
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrWeakPassword       = errors.New("master password does not meet the password policy")
	ErrAccountLocked      = errors.New("account temporarily locked due to too many failed login attempts")
)

// PolicyError lists every password policy rule a master password breaks.
type PolicyError struct {
	Problems []string
}

func (e *PolicyError) Error() string {
	return ErrWeakPassword.Error() + ": " + strings.Join(e.Problems, "; ")
}

func (e *PolicyError) Unwrap() error { return ErrWeakPassword }

func checkMasterPassword(password string) error {
	if ok, problems := strength.Validate(password); !ok {
		return &PolicyError{Problems: problems}
	}
	return nil
}
