package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/jgutierrezgil/guardiapass/internal/database"
)

// uniqueViolation is the PostgreSQL SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// PostgresStore implements Store over database/sql with the pgx driver.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore returns a store bound to db. The schema must already be
// migrated (see database.Migrate).
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Close closes the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Ping verifies the database connection is still alive.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ---------------------------------------------------------------------------
// Users
// ---------------------------------------------------------------------------

const userColumns = `id, username, password_hash, encoded_key, salt, key_storage, envelope_mode, key_epoch, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	var u User
	var keyStorage string
	if err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.EncodedKey, &u.Salt,
		&keyStorage, &u.EnvelopeMode, &u.KeyEpoch, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return nil, err
	}
	u.KeyStorage = KeyStorage(keyStorage)
	return &u, nil
}

// CreateUser inserts a new user.
func (s *PostgresStore) CreateUser(ctx context.Context, user *User) error {
	query := `INSERT INTO users (` + userColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := s.db.ExecContext(ctx, query,
		user.ID, user.Username, user.PasswordHash, user.EncodedKey, user.Salt,
		string(user.KeyStorage), user.EnvelopeMode, user.KeyEpoch, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrDuplicateUsername
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// GetUser returns a user by ID.
func (s *PostgresStore) GetUser(ctx context.Context, id uuid.UUID) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	u, err := scanUser(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return u, nil
}

// GetUserByUsername returns a user by username.
func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE username = $1`
	u, err := scanUser(s.db.QueryRowContext(ctx, query, username))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return u, nil
}

// UpdateUser updates the credential and key fields of a user. The key epoch
// only moves through RekeyUser.
func (s *PostgresStore) UpdateUser(ctx context.Context, user *User) error {
	query := `
		UPDATE users
		SET password_hash = $2, encoded_key = $3, salt = $4, key_storage = $5, envelope_mode = $6, updated_at = $7
		WHERE id = $1`
	res, err := s.db.ExecContext(ctx, query,
		user.ID, user.PasswordHash, user.EncodedKey, user.Salt,
		string(user.KeyStorage), user.EnvelopeMode, user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOneRow(res, ErrUserNotFound)
}

// DeleteUser deletes a user. Records go with it through ON DELETE CASCADE.
func (s *PostgresStore) DeleteUser(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOneRow(res, ErrUserNotFound)
}

// CountUsers returns the number of users.
func (s *PostgresStore) CountUsers(ctx context.Context) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM users`)
}

// ---------------------------------------------------------------------------
// Records
// ---------------------------------------------------------------------------

const recordColumns = `id, user_id, name, url, username, ciphertext, comments, key_epoch, created_at, updated_at`

func scanRecord(row interface{ Scan(...any) error }) (*Record, error) {
	var r Record
	if err := row.Scan(&r.ID, &r.UserID, &r.Name, &r.URL, &r.Username,
		&r.Ciphertext, &r.Comments, &r.KeyEpoch, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

// CreateRecord inserts a new record.
func (s *PostgresStore) CreateRecord(ctx context.Context, record *Record) error {
	return database.Transaction(ctx, s.db, func(tx database.DBTX) error {
		if err := checkKeyEpoch(ctx, tx, record); err != nil {
			return err
		}

		query := `INSERT INTO records (` + recordColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
		_, err := tx.ExecContext(ctx, query,
			record.ID, record.UserID, record.Name, record.URL, record.Username,
			record.Ciphertext, record.Comments, record.KeyEpoch, record.CreatedAt, record.UpdatedAt)
		if err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		return nil
	})
}

// checkKeyEpoch share-locks the owner row, which holds off a concurrent
// RekeyUser until the surrounding transaction ends.
func checkKeyEpoch(ctx context.Context, tx database.DBTX, record *Record) error {
	var epoch int
	err := tx.QueryRowContext(ctx, `SELECT key_epoch FROM users WHERE id = $1 FOR SHARE`, record.UserID).Scan(&epoch)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrUserNotFound
		}
		return fmt.Errorf("db error: %w", err)
	}
	if epoch != record.KeyEpoch {
		return ErrStaleKey
	}
	return nil
}

// GetRecord returns one of the user's records.
func (s *PostgresStore) GetRecord(ctx context.Context, userID, id uuid.UUID) (*Record, error) {
	query := `SELECT ` + recordColumns + ` FROM records WHERE id = $1 AND user_id = $2`
	r, err := scanRecord(s.db.QueryRowContext(ctx, query, id, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRecordNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return r, nil
}

// ListRecords returns the user's records, newest first.
func (s *PostgresStore) ListRecords(ctx context.Context, userID uuid.UUID) ([]*Record, error) {
	return queryRecords(ctx, s.db, listRecordsQuery, userID)
}

// SearchRecords returns records whose name contains query, case-insensitively.
func (s *PostgresStore) SearchRecords(ctx context.Context, userID uuid.UUID, query string) ([]*Record, error) {
	q := `SELECT ` + recordColumns + ` FROM records
		WHERE user_id = $1 AND name ILIKE $2 ESCAPE '\'
		ORDER BY created_at DESC`
	return queryRecords(ctx, s.db, q, userID, "%"+escapeLike(query)+"%")
}

const listRecordsQuery = `SELECT ` + recordColumns + ` FROM records WHERE user_id = $1 ORDER BY created_at DESC`

func queryRecords(ctx context.Context, db database.DBTX, query string, args ...any) ([]*Record, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select records: %w", err)
	}
	defer rows.Close()

	var result []*Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// UpdateRecord updates the mutable fields of a record.
func (s *PostgresStore) UpdateRecord(ctx context.Context, record *Record) error {
	return database.Transaction(ctx, s.db, func(tx database.DBTX) error {
		if err := checkKeyEpoch(ctx, tx, record); err != nil {
			return err
		}
		return updateRecord(ctx, tx, record)
	})
}

func updateRecord(ctx context.Context, db database.DBTX, record *Record) error {
	query := `
		UPDATE records
		SET name = $3, url = $4, username = $5, ciphertext = $6, comments = $7, key_epoch = $8, updated_at = $9
		WHERE id = $1 AND user_id = $2`
	res, err := db.ExecContext(ctx, query,
		record.ID, record.UserID, record.Name, record.URL, record.Username,
		record.Ciphertext, record.Comments, record.KeyEpoch, record.UpdatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOneRow(res, ErrRecordNotFound)
}

// DeleteRecord deletes one of the user's records.
func (s *PostgresStore) DeleteRecord(ctx context.Context, userID, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return expectOneRow(res, ErrRecordNotFound)
}

// CountRecords returns the number of records across all users.
func (s *PostgresStore) CountRecords(ctx context.Context) (int, error) {
	return s.count(ctx, `SELECT COUNT(*) FROM records`)
}

// RekeyUser locks the user row for update, then reads, re-encrypts and
// writes the user's records in the same transaction. Record writes take a
// share lock on the same row, so none can slip in between.
func (s *PostgresStore) RekeyUser(ctx context.Context, user *User, rekey RekeyFunc) error {
	epoch := user.KeyEpoch + 1
	err := database.Transaction(ctx, s.db, func(tx database.DBTX) error {
		var current int
		err := tx.QueryRowContext(ctx, `SELECT key_epoch FROM users WHERE id = $1 FOR UPDATE`, user.ID).Scan(&current)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrUserNotFound
			}
			return fmt.Errorf("db error: %w", err)
		}
		if current != user.KeyEpoch {
			return ErrStaleKey
		}

		records, err := queryRecords(ctx, tx, listRecordsQuery, user.ID)
		if err != nil {
			return err
		}
		moved, err := rekey(records)
		if err != nil {
			return err
		}

		for _, r := range moved {
			if r.UserID != user.ID {
				return fmt.Errorf("record %s belongs to another user", r.ID)
			}
			r.KeyEpoch = epoch
			if err := updateRecord(ctx, tx, r); err != nil {
				return fmt.Errorf("record %s: %w", r.ID, err)
			}
		}

		query := `
			UPDATE users
			SET password_hash = $2, encoded_key = $3, salt = $4, key_epoch = $5, updated_at = $6
			WHERE id = $1`
		res, err := tx.ExecContext(ctx, query,
			user.ID, user.PasswordHash, user.EncodedKey, user.Salt, epoch, user.UpdatedAt)
		if err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		return expectOneRow(res, ErrUserNotFound)
	})
	if err != nil {
		return err
	}
	user.KeyEpoch = epoch
	return nil
}

// ---------------------------------------------------------------------------
// Audit
// ---------------------------------------------------------------------------

// AppendAudit inserts an audit entry.
func (s *PostgresStore) AppendAudit(ctx context.Context, entry *AuditEntry) error {
	var metadata []byte
	if entry.Metadata != nil {
		var err error
		metadata, err = json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("marshal audit metadata: %w", err)
		}
	}

	query := `
		INSERT INTO audit_log (user_id, action, resource_type, resource_id, resource_name, ip_address, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err := s.db.ExecContext(ctx, query,
		entry.UserID, entry.Action, entry.ResourceType, entry.ResourceID,
		entry.ResourceName, entry.IPAddress, metadata, entry.Timestamp)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// ListAudit returns the user's most recent audit entries, newest first.
func (s *PostgresStore) ListAudit(ctx context.Context, userID uuid.UUID, limit int) ([]*AuditEntry, error) {
	query := `
		SELECT user_id, action, resource_type, resource_id, resource_name, ip_address, metadata, created_at
		FROM audit_log WHERE user_id = $1 ORDER BY created_at DESC`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*AuditEntry
	for rows.Next() {
		var e AuditEntry
		var metadata []byte
		if err := rows.Scan(&e.UserID, &e.Action, &e.ResourceType, &e.ResourceID,
			&e.ResourceName, &e.IPAddress, &metadata, &e.Timestamp); err != nil {
			return nil, err
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal audit metadata: %w", err)
			}
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *PostgresStore) count(ctx context.Context, query string) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func expectOneRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return notFound
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
