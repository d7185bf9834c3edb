package vault

import "errors"

var (
	// ErrInvalidCredential is returned when a credential is missing required fields.
	ErrInvalidCredential = errors.New("invalid credential")

	// ErrWrongOwner is returned when a record is opened or resealed with a
	// codec bound to another user.
	ErrWrongOwner = errors.New("record belongs to another user")
)
