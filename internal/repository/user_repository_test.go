package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestUserRepositoryFindByEmail(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewUserRepository(db, nil)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "email", "password_hash", "name", "role", "active", "is_admin", "last_login", "created_at", "updated_at"}).
		AddRow("u1", "user@example.com", "hash", "User", "ST", true, false, nil, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, email, password_hash, name, role, active, is_admin, last_login, created_at, updated_at FROM users WHERE email = $1 LIMIT 1")).
		WithArgs("user@example.com").
		WillReturnRows(rows)

	user, err := repo.FindByEmail(context.Background(), "user@example.com")
	require.NoError(t, err)
	require.Equal(t, "u1", user.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryFindByEmailNoRows(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewUserRepository(db, nil)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, email, password_hash, name, role, active, is_admin, last_login, created_at, updated_at FROM users WHERE email = $1 LIMIT 1")).
		WithArgs("ghost@example.com").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindByEmail(context.Background(), "ghost@example.com")
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryUpdateLastLogin(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewUserRepository(db, nil)

	ts := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET last_login = $2, updated_at = $3 WHERE id = $1")).
		WithArgs("u1", ts, ts).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateLastLogin(context.Background(), "u1", ts))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryRevokeRefreshToken(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewUserRepository(db, nil)

	revokedAt := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE refresh_tokens SET revoked = TRUE, revoked_at = $2 WHERE id = $1")).
		WithArgs("rt1", revokedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.RevokeRefreshToken(context.Background(), "rt1", revokedAt))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryFindRefreshToken(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewUserRepository(db, nil)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "user_id", "token", "expires_at", "created_at", "revoked", "revoked_at", "ip_address", "user_agent"}).
		AddRow("rt1", "u1", "token", now.Add(time.Hour), now, false, nil, "127.0.0.1", "test")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, user_id, token, expires_at, created_at, revoked, revoked_at, ip_address, user_agent FROM refresh_tokens WHERE token = $1 LIMIT 1")).
		WithArgs("token").
		WillReturnRows(rows)

	rt, err := repo.FindRefreshToken(context.Background(), "token")
	require.NoError(t, err)
	require.Equal(t, "u1", rt.UserID)
	require.False(t, rt.Revoked)
	require.NoError(t, mock.ExpectationsWereMet())
}

type recordingQueryObserver struct {
	labels []string
}

func (o *recordingQueryObserver) ObserveDBQuery(label string, _ time.Duration) {
	o.labels = append(o.labels, label)
}

func TestUserRepositoryReportsQueryTiming(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	obs := &recordingQueryObserver{}
	repo := NewUserRepository(db, obs)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "email", "password_hash", "name", "role", "active", "is_admin", "last_login", "created_at", "updated_at"}).
		AddRow("u1", "user@example.com", "hash", "User", "ST", true, false, nil, now, now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, email, password_hash, name, role, active, is_admin, last_login, created_at, updated_at FROM users WHERE email = $1 LIMIT 1")).
		WithArgs("user@example.com").
		WillReturnRows(rows)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET last_login = $2, updated_at = $3 WHERE id = $1")).
		WithArgs("u1", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	_, err := repo.FindByEmail(context.Background(), "user@example.com")
	require.NoError(t, err)
	require.NoError(t, repo.UpdateLastLogin(context.Background(), "u1", now))

	require.Equal(t, []string{"users.find_by_email", "users.update_last_login"}, obs.labels)
	require.NoError(t, mock.ExpectationsWereMet())
}
