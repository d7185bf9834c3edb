package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jgutierrezgil/guardiapass/internal/database/migrations"
)

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := migrations.FS.ReadDir(".")
	require.NoError(t, err)

	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Contains(t, names, "00001_init.sql")
}

func TestMigrate_UsesGoose(t *testing.T) {
	orig := gooseUpContext
	t.Cleanup(func() { gooseUpContext = orig })

	var gotDir string
	gooseUpContext = func(_ context.Context, _ *sql.DB, dir string, _ ...goose.OptionsFunc) error {
		gotDir = dir
		return nil
	}

	require.NoError(t, Migrate(context.Background(), nil))
	assert.Equal(t, ".", gotDir)
}

func TestMigrate_Error(t *testing.T) {
	orig := gooseUpContext
	t.Cleanup(func() { gooseUpContext = orig })

	gooseUpContext = func(context.Context, *sql.DB, string, ...goose.OptionsFunc) error {
		return errors.New("boom")
	}

	err := Migrate(context.Background(), nil)
	assert.ErrorContains(t, err, "run migrations: boom")
}

func TestTransaction_Commit(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM records").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	err = Transaction(context.Background(), db, func(tx DBTX) error {
		_, err := tx.ExecContext(context.Background(), "DELETE FROM records")
		return err
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransaction_Rollback(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	want := errors.New("fn failed")
	err = Transaction(context.Background(), db, func(DBTX) error { return want })
	assert.ErrorIs(t, err, want)
	assert.NoError(t, mock.ExpectationsWereMet())
}
