// Package validation provides input validation functions.
package validation

import (
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	// ErrUsernameTooShort is returned when username is less than 3 characters.
	ErrUsernameTooShort = errors.New("username must be at least 3 characters")
	// ErrUsernameTooLong is returned when username exceeds 50 characters.
	ErrUsernameTooLong = errors.New("username must be at most 50 characters")
	// ErrUsernameInvalidChars is returned when username contains invalid characters.
	ErrUsernameInvalidChars = errors.New("username can only contain letters, numbers, and underscores")

	// ErrRecordNameEmpty is returned when a record name is empty.
	ErrRecordNameEmpty = errors.New("name is required")
	// ErrRecordNameTooLong is returned when a record name exceeds 100 characters.
	ErrRecordNameTooLong = errors.New("name must be at most 100 characters")
	// ErrRecordURLTooLong is returned when a record URL exceeds 200 characters.
	ErrRecordURLTooLong = errors.New("url must be at most 200 characters")
	// ErrAccountEmpty is returned when a record has no account username.
	ErrAccountEmpty = errors.New("account username is required")
	// ErrAccountTooLong is returned when a record's account username exceeds 100 characters.
	ErrAccountTooLong = errors.New("account username must be at most 100 characters")
	// ErrCommentsTooLong is returned when comments exceed 2000 characters.
	ErrCommentsTooLong = errors.New("comments must be at most 2000 characters")

	// ErrPasswordsDoNotMatch is returned when a confirmation differs from the password.
	ErrPasswordsDoNotMatch = errors.New("passwords do not match")
)

var inputErrors = []error{
	ErrUsernameTooShort,
	ErrUsernameTooLong,
	ErrUsernameInvalidChars,
	ErrRecordNameEmpty,
	ErrRecordNameTooLong,
	ErrRecordURLTooLong,
	ErrAccountEmpty,
	ErrAccountTooLong,
	ErrCommentsTooLong,
	ErrPasswordsDoNotMatch,
}

// IsValidationError reports whether err wraps one of this package's errors.
func IsValidationError(err error) bool {
	for _, target := range inputErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

const (
	maxRecordName = 100
	maxRecordURL  = 200
	maxAccount    = 100
	maxComments   = 2000
)

var usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// Username validates a username.
// Rules: 3-50 characters, alphanumeric and underscores only.
func Username(username string) error {
	username = strings.TrimSpace(username)
	if len(username) < 3 {
		return ErrUsernameTooShort
	}
	if len(username) > 50 {
		return ErrUsernameTooLong
	}
	if !usernameRegex.MatchString(username) {
		return ErrUsernameInvalidChars
	}
	return nil
}

// RecordName validates a credential record name.
// Rules: 1-100 characters.
func RecordName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrRecordNameEmpty
	}
	if utf8.RuneCountInString(name) > maxRecordName {
		return ErrRecordNameTooLong
	}
	return nil
}

// Record validates the clear-text fields of a credential record and
// returns the first violation.
func Record(name, url, account, comments string) error {
	if err := RecordName(name); err != nil {
		return err
	}
	if utf8.RuneCountInString(url) > maxRecordURL {
		return ErrRecordURLTooLong
	}
	if strings.TrimSpace(account) == "" {
		return ErrAccountEmpty
	}
	if utf8.RuneCountInString(account) > maxAccount {
		return ErrAccountTooLong
	}
	if utf8.RuneCountInString(comments) > maxComments {
		return ErrCommentsTooLong
	}
	return nil
}

// Confirmation checks that confirm repeats password.
func Confirmation(password, confirm string) error {
	if password != confirm {
		return ErrPasswordsDoNotMatch
	}
	return nil
}
