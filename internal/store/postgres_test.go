package store

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/example/healthtracker/internal/models"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPostgresWithMock(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewPostgresStoreFromDB(db), mock
}

func TestDialect_Rebind(t *testing.T) {
	assert.Equal(t, "SELECT 1 WHERE a = $1 AND b = $2", postgresDialect.rebind("SELECT 1 WHERE a = ? AND b = ?"))
	assert.Equal(t, "SELECT 1 WHERE a = ?", sqliteDialect.rebind("SELECT 1 WHERE a = ?"))
}

func TestPostgres_MarkUsedIsConditional(t *testing.T) {
	s, mock := newPostgresWithMock(t)
	ctx := context.Background()

	q := `(?s)^UPDATE refresh_tokens SET is_used = \$1, update_date = \$2 WHERE token = \$3 AND is_used = \$4 AND is_revoked = \$5$`
	mock.ExpectBegin()
	mock.ExpectExec(q).
		WithArgs(true, sqlmock.AnyArg(), "tok", false, false).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).
		WithArgs(true, sqlmock.AnyArg(), "tok", false, false).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	u, err := s.Begin(ctx)
	require.NoError(t, err)
	ok, err := u.RefreshTokens().MarkUsed(ctx, "tok")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = u.RefreshTokens().MarkUsed(ctx, "tok")
	require.NoError(t, err)
	assert.False(t, ok)
	require.NoError(t, u.Commit())

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_MarkUsedErrorRollsBack(t *testing.T) {
	s, mock := newPostgresWithMock(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE refresh_tokens SET is_used`).WillReturnError(errors.New("conn reset"))
	mock.ExpectRollback()

	u, err := s.Begin(ctx)
	require.NoError(t, err)
	_, err = u.RefreshTokens().MarkUsed(ctx, "tok")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mark refresh token used")
	require.NoError(t, u.Rollback())

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetByTokenMissing(t *testing.T) {
	s, mock := newPostgresWithMock(t)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .* FROM refresh_tokens WHERE token = \$1`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	u, err := s.Begin(ctx)
	require.NoError(t, err)
	got, err := u.RefreshTokens().GetByToken(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
	require.NoError(t, u.Rollback())

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_CreateUserDuplicate(t *testing.T) {
	s, mock := newPostgresWithMock(t)

	mock.ExpectExec(`INSERT INTO users\(.*\) VALUES\(\$1,\$2,\$3,\$4,\$5,\$6\)`).
		WillReturnError(&pq.Error{Code: pqUniqueViolation})

	err := s.CreateUser(context.Background(), &models.User{ID: "1", Email: "a@b.c", NormalizedEmail: "A@B.C"})
	assert.ErrorIs(t, err, ErrDuplicateEmail)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_AddUserToRoleConflict(t *testing.T) {
	s, mock := newPostgresWithMock(t)

	mock.ExpectExec(`INSERT INTO user_roles\(user_id,role_id\) VALUES\(\$1,\$2\) ON CONFLICT`).
		WithArgs("u", "r").
		WillReturnResult(sqlmock.NewResult(0, 0))

	added, err := s.AddUserToRole(context.Background(), "u", "r")
	require.NoError(t, err)
	assert.False(t, added)
	require.NoError(t, mock.ExpectationsWereMet())
}
