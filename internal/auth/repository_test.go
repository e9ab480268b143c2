package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRepository(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	return NewRepository(db, time.Second), mock
}

func accountColumns() []string {
	return []string{
		"id", "username", "password_hash", "role", "is_active",
		"login_attempts", "lock_until", "last_login", "created_at", "updated_at",
	}
}

func TestRepositoryGetByUsername(t *testing.T) {
	repo, mock := setupRepository(t)
	now := time.Now().UTC()

	mock.ExpectQuery("SELECT id, username, password_hash").
		WithArgs("chef").
		WillReturnRows(sqlmock.NewRows(accountColumns()).
			AddRow("id-1", "chef", "hash", "admin", true, 2, nil, nil, now, now))

	account, err := repo.GetByUsername(context.Background(), "chef")
	require.NoError(t, err)
	assert.Equal(t, "id-1", account.ID)
	assert.Equal(t, RoleAdmin, account.Role)
	assert.Equal(t, 2, account.LoginAttempts)
	assert.Nil(t, account.LockUntil)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRepositoryGetByUsernameNotFound(t *testing.T) {
	repo, mock := setupRepository(t)

	mock.ExpectQuery("SELECT id, username, password_hash").
		WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows(accountColumns()))

	_, err := repo.GetByUsername(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestRepositoryGetByUsernameStoreFailure(t *testing.T) {
	repo, mock := setupRepository(t)

	mock.ExpectQuery("SELECT id, username, password_hash").
		WithArgs("chef").
		WillReturnError(errors.New("connection refused"))

	_, err := repo.GetByUsername(context.Background(), "chef")
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestRepositoryCreateMapsUniqueViolation(t *testing.T) {
	repo, mock := setupRepository(t)

	mock.ExpectExec("INSERT INTO accounts").
		WillReturnError(&pgconn.PgError{Code: "23505"})

	_, err := repo.Create(context.Background(), "chef", "hash", RoleAdmin)
	assert.ErrorIs(t, err, ErrUsernameTaken)
}

func TestRegisterFailedAttemptIncrements(t *testing.T) {
	repo, mock := setupRepository(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT login_attempts, lock_until").
		WithArgs("id-1").
		WillReturnRows(sqlmock.NewRows([]string{"login_attempts", "lock_until"}).AddRow(2, nil))
	mock.ExpectExec("UPDATE accounts").
		WithArgs("id-1", 3, nil, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	lockedUntil, err := repo.RegisterFailedAttempt(context.Background(), "id-1", 5, 15*time.Minute, now)
	require.NoError(t, err)
	assert.Nil(t, lockedUntil, "below the threshold no lock is set")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegisterFailedAttemptSetsLockAtThreshold(t *testing.T) {
	repo, mock := setupRepository(t)
	now := time.Now().UTC()
	expectedLock := now.Add(15 * time.Minute)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT login_attempts, lock_until").
		WithArgs("id-1").
		WillReturnRows(sqlmock.NewRows([]string{"login_attempts", "lock_until"}).AddRow(4, nil))
	mock.ExpectExec("UPDATE accounts").
		WithArgs("id-1", 5, expectedLock, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	lockedUntil, err := repo.RegisterFailedAttempt(context.Background(), "id-1", 5, 15*time.Minute, now)
	require.NoError(t, err)
	require.NotNil(t, lockedUntil)
	assert.Equal(t, expectedLock, *lockedUntil)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRegisterFailedAttemptIsNoopWhileLocked(t *testing.T) {
	repo, mock := setupRepository(t)
	now := time.Now().UTC()
	until := now.Add(10 * time.Minute)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT login_attempts, lock_until").
		WithArgs("id-1").
		WillReturnRows(sqlmock.NewRows([]string{"login_attempts", "lock_until"}).AddRow(5, until))
	mock.ExpectCommit()

	lockedUntil, err := repo.RegisterFailedAttempt(context.Background(), "id-1", 5, 15*time.Minute, now)
	require.NoError(t, err)
	require.NotNil(t, lockedUntil)
	assert.Equal(t, until, *lockedUntil)
	assert.NoError(t, mock.ExpectationsWereMet(), "no UPDATE may run while locked")
}

func TestRegisterFailedAttemptStartsFreshWindowAfterExpiry(t *testing.T) {
	repo, mock := setupRepository(t)
	now := time.Now().UTC()
	lapsed := now.Add(-time.Minute)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT login_attempts, lock_until").
		WithArgs("id-1").
		WillReturnRows(sqlmock.NewRows([]string{"login_attempts", "lock_until"}).AddRow(5, lapsed))
	mock.ExpectExec("UPDATE accounts").
		WithArgs("id-1", 1, nil, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	lockedUntil, err := repo.RegisterFailedAttempt(context.Background(), "id-1", 5, 15*time.Minute, now)
	require.NoError(t, err)
	assert.Nil(t, lockedUntil)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResetOnSuccessIsSingleStatement(t *testing.T) {
	repo, mock := setupRepository(t)
	now := time.Now().UTC()

	mock.ExpectExec("UPDATE accounts").
		WithArgs("id-1", now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.ResetOnSuccess(context.Background(), "id-1", now))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResetOnSuccessUnknownAccount(t *testing.T) {
	repo, mock := setupRepository(t)

	mock.ExpectExec("UPDATE accounts").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.ResetOnSuccess(context.Background(), "ghost", time.Now().UTC())
	assert.ErrorIs(t, err, ErrAccountNotFound)
}

func TestUnlockClearsLock(t *testing.T) {
	repo, mock := setupRepository(t)

	mock.ExpectExec("UPDATE accounts").
		WithArgs("id-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	assert.NoError(t, repo.Unlock(context.Background(), "id-1"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClearExpiredLocks(t *testing.T) {
	repo, mock := setupRepository(t)
	now := time.Now().UTC()

	mock.ExpectExec("UPDATE accounts").
		WithArgs(now).
		WillReturnResult(sqlmock.NewResult(0, 3))

	cleared, err := repo.ClearExpiredLocks(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(3), cleared)
}
