// Package store persists users, encrypted credential records and audit
// entries. BoltStore keeps everything in a single bbolt file; PostgresStore
// uses a PostgreSQL database.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Sentinel errors returned by store operations.
var (
	ErrNotFound          = errors.New("not found")
	ErrUserNotFound      = fmt.Errorf("user %w", ErrNotFound)
	ErrRecordNotFound    = fmt.Errorf("record %w", ErrNotFound)
	ErrDuplicateUsername = errors.New("username already exists")

	// ErrStaleKey is returned when a write carries a key epoch older than
	// the owner's current one: the ciphertext was sealed under a vault key
	// that has since been replaced.
	ErrStaleKey = errors.New("vault key has changed")
)

// RekeyFunc re-encrypts a user's records under a new vault key. It receives
// every record the user owns at the time of the rekey and returns the
// records to write back.
type RekeyFunc func(records []*Record) ([]*Record, error)

// Store defines the interface for vault storage operations.
//
// Records are always addressed together with their owner so one user can
// never read or modify another user's records.
type Store interface {
	// Users
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id uuid.UUID) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	UpdateUser(ctx context.Context, user *User) error
	// DeleteUser removes the user and all of its records.
	DeleteUser(ctx context.Context, id uuid.UUID) error
	CountUsers(ctx context.Context) (int, error)

	// Records
	//
	// CreateRecord and UpdateRecord fail with ErrStaleKey unless
	// record.KeyEpoch matches the owner's current key epoch.
	CreateRecord(ctx context.Context, record *Record) error
	GetRecord(ctx context.Context, userID, id uuid.UUID) (*Record, error)
	// ListRecords returns the user's records, newest first.
	ListRecords(ctx context.Context, userID uuid.UUID) ([]*Record, error)
	// SearchRecords returns the user's records whose name contains query,
	// ignoring case, newest first.
	SearchRecords(ctx context.Context, userID uuid.UUID, query string) ([]*Record, error)
	UpdateRecord(ctx context.Context, record *Record) error
	DeleteRecord(ctx context.Context, userID, id uuid.UUID) error
	CountRecords(ctx context.Context) (int, error)

	// RekeyUser replaces the key material of user and passes every record
	// the user owns through rekey, all inside one transaction. Record writes
	// that race with it either land before the records are read or fail
	// with ErrStaleKey. user.KeyEpoch must match the stored epoch; on
	// success it is advanced by one. Either everything is written or
	// nothing is.
	RekeyUser(ctx context.Context, user *User, rekey RekeyFunc) error

	// Audit
	AppendAudit(ctx context.Context, entry *AuditEntry) error
	ListAudit(ctx context.Context, userID uuid.UUID, limit int) ([]*AuditEntry, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Close() error
}
