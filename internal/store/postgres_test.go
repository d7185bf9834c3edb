package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPostgresWithMock(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresStore(db), mock
}

var (
	userCols   = []string{"id", "username", "password_hash", "encoded_key", "salt", "key_storage", "envelope_mode", "key_epoch", "created_at", "updated_at"}
	recordCols = []string{"id", "user_id", "name", "url", "username", "ciphertext", "comments", "key_epoch", "created_at", "updated_at"}
)

func expectKeyEpoch(mock sqlmock.Sqlmock, userID uuid.UUID, epoch int) {
	mock.ExpectQuery(`SELECT key_epoch FROM users WHERE id = \$1 FOR SHARE`).
		WithArgs(userID).
		WillReturnRows(sqlmock.NewRows([]string{"key_epoch"}).AddRow(epoch))
}

func TestPostgres_CreateUser(t *testing.T) {
	s, mock := newPostgresWithMock(t)
	now := time.Now().UTC()
	u := &User{
		ID: uuid.New(), Username: "alice", PasswordHash: "hash", EncodedKey: "key",
		Salt: []byte("salt"), KeyStorage: KeyStorageStored, EnvelopeMode: "aead",
		CreatedAt: now, UpdatedAt: now,
	}

	mock.ExpectExec(`INSERT INTO users \(id, username, .*\) VALUES \(\$1, .*\$10\)`).
		WithArgs(u.ID, "alice", "hash", "key", []byte("salt"), "stored", "aead", 0, now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, s.CreateUser(context.Background(), u))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_CreateUser_Duplicate(t *testing.T) {
	s, mock := newPostgresWithMock(t)

	mock.ExpectExec(`INSERT INTO users`).
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value"})

	err := s.CreateUser(context.Background(), &User{ID: uuid.New(), Username: "alice"})
	assert.ErrorIs(t, err, ErrDuplicateUsername)
}

func TestPostgres_CreateUser_DBError(t *testing.T) {
	s, mock := newPostgresWithMock(t)

	mock.ExpectExec(`INSERT INTO users`).WillReturnError(errors.New("db is down"))

	err := s.CreateUser(context.Background(), &User{ID: uuid.New(), Username: "alice"})
	assert.ErrorContains(t, err, "db error: db is down")
}

func TestPostgres_GetUserByUsername(t *testing.T) {
	s, mock := newPostgresWithMock(t)
	id := uuid.New()
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT id, username, .* FROM users WHERE username = \$1`).
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows(userCols).
			AddRow(id.String(), "alice", "hash", "", []byte("salt"), "derived", "cbc", 2, now, now))

	u, err := s.GetUserByUsername(context.Background(), "alice")
	require.NoError(t, err)
	assert.Equal(t, id, u.ID)
	assert.Equal(t, KeyStorageDerived, u.KeyStorage)
	assert.Equal(t, "cbc", u.EnvelopeMode)
	assert.Empty(t, u.EncodedKey)
	assert.Equal(t, 2, u.KeyEpoch)
}

func TestPostgres_GetUser_NotFound(t *testing.T) {
	s, mock := newPostgresWithMock(t)

	mock.ExpectQuery(`SELECT .* FROM users WHERE id = \$1`).WillReturnError(sql.ErrNoRows)

	_, err := s.GetUser(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrUserNotFound)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgres_DeleteUser(t *testing.T) {
	s, mock := newPostgresWithMock(t)
	id := uuid.New()

	mock.ExpectExec(`DELETE FROM users WHERE id = \$1`).WithArgs(id).WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, s.DeleteUser(context.Background(), id))

	mock.ExpectExec(`DELETE FROM users WHERE id = \$1`).WithArgs(id).WillReturnResult(sqlmock.NewResult(0, 0))
	assert.ErrorIs(t, s.DeleteUser(context.Background(), id), ErrUserNotFound)
}

func TestPostgres_ListRecords(t *testing.T) {
	s, mock := newPostgresWithMock(t)
	userID := uuid.New()
	older := time.Now().Add(-time.Hour).UTC()
	newer := time.Now().UTC()

	mock.ExpectQuery(`SELECT .* FROM records WHERE user_id = \$1 ORDER BY created_at DESC`).
		WithArgs(userID).
		WillReturnRows(sqlmock.NewRows(recordCols).
			AddRow(uuid.NewString(), userID.String(), "GitHub", "https://github.com", "alice", "ct2", "", 0, newer, newer).
			AddRow(uuid.NewString(), userID.String(), "Bank", "", "", "ct1", "pin in safe", 0, older, older))

	records, err := s.ListRecords(context.Background(), userID)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "GitHub", records[0].Name)
	assert.Equal(t, "pin in safe", records[1].Comments)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_SearchRecords_EscapesPattern(t *testing.T) {
	s, mock := newPostgresWithMock(t)
	userID := uuid.New()

	mock.ExpectQuery(`FROM records\s+WHERE user_id = \$1 AND name ILIKE \$2`).
		WithArgs(userID, `%100\%\_git%`).
		WillReturnRows(sqlmock.NewRows(recordCols))

	records, err := s.SearchRecords(context.Background(), userID, "100%_git")
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetRecord_ScopedToOwner(t *testing.T) {
	s, mock := newPostgresWithMock(t)
	userID, id := uuid.New(), uuid.New()

	mock.ExpectQuery(`FROM records WHERE id = \$1 AND user_id = \$2`).
		WithArgs(id, userID).
		WillReturnError(sql.ErrNoRows)

	_, err := s.GetRecord(context.Background(), userID, id)
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestPostgres_CreateRecord(t *testing.T) {
	s, mock := newPostgresWithMock(t)
	now := time.Now().UTC()
	r := &Record{ID: uuid.New(), UserID: uuid.New(), Name: "GitHub", Username: "alice", Ciphertext: "ct", KeyEpoch: 1, CreatedAt: now, UpdatedAt: now}

	mock.ExpectBegin()
	expectKeyEpoch(mock, r.UserID, 1)
	mock.ExpectExec(`INSERT INTO records \(id, user_id, .*\) VALUES \(\$1, .*\$10\)`).
		WithArgs(r.ID, r.UserID, "GitHub", "", "alice", "ct", "", 1, now, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.CreateRecord(context.Background(), r))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_CreateRecord_StaleKey(t *testing.T) {
	s, mock := newPostgresWithMock(t)
	r := &Record{ID: uuid.New(), UserID: uuid.New(), Name: "GitHub", Ciphertext: "ct", KeyEpoch: 0}

	mock.ExpectBegin()
	expectKeyEpoch(mock, r.UserID, 1)
	mock.ExpectRollback()

	assert.ErrorIs(t, s.CreateRecord(context.Background(), r), ErrStaleKey)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_CreateRecord_UnknownUser(t *testing.T) {
	s, mock := newPostgresWithMock(t)
	r := &Record{ID: uuid.New(), UserID: uuid.New(), Name: "GitHub", Ciphertext: "ct"}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT key_epoch FROM users`).WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	assert.ErrorIs(t, s.CreateRecord(context.Background(), r), ErrUserNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UpdateRecord_RowsAffected(t *testing.T) {
	s, mock := newPostgresWithMock(t)
	r := &Record{ID: uuid.New(), UserID: uuid.New(), Name: "n", Ciphertext: "ct"}

	expectUpdate := func(result driver.Result) {
		mock.ExpectBegin()
		expectKeyEpoch(mock, r.UserID, 0)
		mock.ExpectExec(`UPDATE records`).WillReturnResult(result)
	}

	expectUpdate(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()
	assert.ErrorIs(t, s.UpdateRecord(context.Background(), r), ErrRecordNotFound)

	expectUpdate(sqlmock.NewErrorResult(errors.New("rows-err")))
	mock.ExpectRollback()
	assert.ErrorContains(t, s.UpdateRecord(context.Background(), r), "rows affected error")

	expectUpdate(sqlmock.NewResult(0, 2))
	mock.ExpectRollback()
	assert.ErrorContains(t, s.UpdateRecord(context.Background(), r), "unexpected rows affected: 2")

	expectUpdate(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	assert.NoError(t, s.UpdateRecord(context.Background(), r))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UpdateRecord_StaleKey(t *testing.T) {
	s, mock := newPostgresWithMock(t)
	r := &Record{ID: uuid.New(), UserID: uuid.New(), Name: "n", Ciphertext: "old-key-ct"}

	mock.ExpectBegin()
	expectKeyEpoch(mock, r.UserID, 1)
	mock.ExpectRollback()

	assert.ErrorIs(t, s.UpdateRecord(context.Background(), r), ErrStaleKey)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_RekeyUser_ReadsRecordsUnderLock(t *testing.T) {
	s, mock := newPostgresWithMock(t)
	now := time.Now().UTC()
	u := &User{ID: uuid.New(), Username: "alice", PasswordHash: "h2", Salt: []byte("s2"), KeyEpoch: 3, UpdatedAt: now}
	id1, id2 := uuid.New(), uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT key_epoch FROM users WHERE id = \$1 FOR UPDATE`).
		WithArgs(u.ID).
		WillReturnRows(sqlmock.NewRows([]string{"key_epoch"}).AddRow(3))
	mock.ExpectQuery(`SELECT .* FROM records WHERE user_id = \$1`).
		WithArgs(u.ID).
		WillReturnRows(sqlmock.NewRows(recordCols).
			AddRow(id1.String(), u.ID.String(), "one", "", "", "a", "", 3, now, now).
			AddRow(id2.String(), u.ID.String(), "two", "", "", "b", "", 3, now, now))
	mock.ExpectExec(`UPDATE records`).
		WithArgs(id1, u.ID, "one", "", "", "A", "", 4, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE records`).
		WithArgs(id2, u.ID, "two", "", "", "B", "", 4, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE users`).
		WithArgs(u.ID, "h2", "", []byte("s2"), 4, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	var seen []string
	err := s.RekeyUser(context.Background(), u, func(records []*Record) ([]*Record, error) {
		for _, r := range records {
			seen = append(seen, r.Name)
			r.Ciphertext = strings.ToUpper(r.Ciphertext)
		}
		return records, nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two"}, seen)
	assert.Equal(t, 4, u.KeyEpoch)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_RekeyUser_StaleEpoch(t *testing.T) {
	s, mock := newPostgresWithMock(t)
	u := &User{ID: uuid.New(), Username: "alice", KeyEpoch: 0}

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT key_epoch FROM users WHERE id = \$1 FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"key_epoch"}).AddRow(1))
	mock.ExpectRollback()

	err := s.RekeyUser(context.Background(), u, func(records []*Record) ([]*Record, error) {
		t.Fatal("rekey must not run against a stale epoch")
		return nil, nil
	})
	assert.ErrorIs(t, err, ErrStaleKey)
	assert.Equal(t, 0, u.KeyEpoch)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_RekeyUser_RollsBack(t *testing.T) {
	s, mock := newPostgresWithMock(t)
	u := &User{ID: uuid.New(), Username: "alice"}
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT key_epoch FROM users WHERE id = \$1 FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"key_epoch"}).AddRow(0))
	mock.ExpectQuery(`SELECT .* FROM records WHERE user_id = \$1`).
		WillReturnRows(sqlmock.NewRows(recordCols).
			AddRow(uuid.NewString(), u.ID.String(), "one", "", "", "a", "", 0, now, now))
	mock.ExpectExec(`UPDATE records`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := s.RekeyUser(context.Background(), u, func(records []*Record) ([]*Record, error) {
		return records, nil
	})
	assert.ErrorIs(t, err, ErrRecordNotFound)
	assert.Equal(t, 0, u.KeyEpoch)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_AuditRoundTrip(t *testing.T) {
	s, mock := newPostgresWithMock(t)
	userID := uuid.New()
	now := time.Now().UTC()

	mock.ExpectExec(`INSERT INTO audit_log`).
		WithArgs(userID, "record.create", "record", "r1", "GitHub", "10.0.0.1", []byte(`{"k":"v"}`), now).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, s.AppendAudit(context.Background(), &AuditEntry{
		UserID: userID, Action: "record.create", ResourceType: "record", ResourceID: "r1",
		ResourceName: "GitHub", IPAddress: "10.0.0.1", Timestamp: now, Metadata: map[string]any{"k": "v"},
	}))

	mock.ExpectQuery(`FROM audit_log WHERE user_id = \$1 ORDER BY created_at DESC LIMIT \$2`).
		WithArgs(userID, 10).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "action", "resource_type", "resource_id", "resource_name", "ip_address", "metadata", "created_at"}).
			AddRow(userID.String(), "record.create", "record", "r1", "GitHub", "10.0.0.1", []byte(`{"k":"v"}`), now))

	entries, err := s.ListAudit(context.Background(), userID, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "v", entries[0].Metadata["k"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_Counts(t *testing.T) {
	s, mock := newPostgresWithMock(t)

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM users`).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM records`).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))

	users, err := s.CountUsers(context.Background())
	require.NoError(t, err)
	records, err := s.CountRecords(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, users)
	assert.Equal(t, 12, records)
}
