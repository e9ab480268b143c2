package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
)

const defaultStoreTimeout = 3 * time.Second

// Repository is the Postgres credential store. Every call runs under a
// bounded timeout; failures to reach the store surface as ErrStoreUnavailable
// so callers do not confuse an outage with an authentication failure.
type Repository struct {
	db      *sql.DB
	timeout time.Duration
}

func NewRepository(db *sql.DB, timeout time.Duration) *Repository {
	if timeout <= 0 {
		timeout = defaultStoreTimeout
	}
	return &Repository{db: db, timeout: timeout}
}

func (r *Repository) withDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.timeout)
}

func storeFailure(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrStoreUnavailable, err)
}

func (r *Repository) GetByUsername(ctx context.Context, username string) (Account, error) {
	ctx, cancel := r.withDeadline(ctx)
	defer cancel()

	return r.scanAccount(r.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, role, is_active,
		       login_attempts, lock_until, last_login, created_at, updated_at
		FROM accounts
		WHERE username = $1
	`, username), "query account by username")
}

func (r *Repository) GetByID(ctx context.Context, id string) (Account, error) {
	ctx, cancel := r.withDeadline(ctx)
	defer cancel()

	return r.scanAccount(r.db.QueryRowContext(ctx, `
		SELECT id, username, password_hash, role, is_active,
		       login_attempts, lock_until, last_login, created_at, updated_at
		FROM accounts
		WHERE id = $1
	`, id), "query account by id")
}

func (r *Repository) scanAccount(row *sql.Row, op string) (Account, error) {
	var account Account
	var role string
	var lockUntil, lastLogin sql.NullTime
	err := row.Scan(
		&account.ID, &account.Username, &account.PasswordHash, &role,
		&account.IsActive, &account.LoginAttempts, &lockUntil, &lastLogin,
		&account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, storeFailure(op, err)
	}

	account.Role = Role(role)
	if lockUntil.Valid {
		value := lockUntil.Time.UTC()
		account.LockUntil = &value
	}
	if lastLogin.Valid {
		value := lastLogin.Time.UTC()
		account.LastLogin = &value
	}

	return account, nil
}

// Create inserts a new account. Username uniqueness is enforced by the
// database; a conflict maps to ErrUsernameTaken.
func (r *Repository) Create(ctx context.Context, username, passwordHash string, role Role) (Account, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Account{}, fmt.Errorf("generate account id: %w", err)
	}

	now := time.Now().UTC()
	account := Account{
		ID:           id.String(),
		Username:     username,
		PasswordHash: passwordHash,
		Role:         role,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	ctx, cancel := r.withDeadline(ctx)
	defer cancel()

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO accounts (id, username, password_hash, role, is_active, login_attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, TRUE, 0, $5, $5)
	`, account.ID, account.Username, account.PasswordHash, string(account.Role), now)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Account{}, ErrUsernameTaken
		}
		return Account{}, storeFailure("insert account", err)
	}

	return account, nil
}

// RegisterFailedAttempt records one failed password check under a row lock so
// concurrent attempts cannot exceed the attempt budget through lost updates.
//
// While a lock window is in effect the call changes nothing and returns the
// existing lock. A failure arriving after the window has lapsed starts a fresh
// count rather than re-locking on the spot. Reaching maxAttempts sets
// lock_until = now + lockDuration; the counter keeps its value so it reflects
// exactly the number of failed checks.
func (r *Repository) RegisterFailedAttempt(ctx context.Context, accountID string, maxAttempts int, lockDuration time.Duration, now time.Time) (*time.Time, error) {
	ctx, cancel := r.withDeadline(ctx)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storeFailure("begin failed attempt tx", err)
	}
	defer tx.Rollback()

	var attempts int
	var lockUntil sql.NullTime
	err = tx.QueryRowContext(ctx, `
		SELECT login_attempts, lock_until
		FROM accounts
		WHERE id = $1
		FOR UPDATE
	`, accountID).Scan(&attempts, &lockUntil)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, storeFailure("lock account row", err)
	}

	if lockUntil.Valid && now.Before(lockUntil.Time) {
		until := lockUntil.Time.UTC()
		if err := tx.Commit(); err != nil {
			return nil, storeFailure("commit noop attempt tx", err)
		}
		return &until, nil
	}

	if lockUntil.Valid {
		// Previous lock has lapsed: this failure starts a new window.
		attempts = 1
	} else {
		attempts++
	}

	var nextLock *time.Time
	var nextLockValue any
	if attempts >= maxAttempts {
		until := now.UTC().Add(lockDuration)
		nextLock = &until
		nextLockValue = until
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE accounts
		SET login_attempts = $2, lock_until = $3, updated_at = $4
		WHERE id = $1
	`, accountID, attempts, nextLockValue, now.UTC())
	if err != nil {
		return nil, storeFailure("update failed attempt", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, storeFailure("commit failed attempt tx", err)
	}

	return nextLock, nil
}

// ResetOnSuccess clears the attempt counter and lock and stamps last_login in
// a single statement, so a successful login can never leave partial state.
func (r *Repository) ResetOnSuccess(ctx context.Context, accountID string, now time.Time) error {
	ctx, cancel := r.withDeadline(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE accounts
		SET login_attempts = 0, lock_until = NULL, last_login = $2, updated_at = $2
		WHERE id = $1
	`, accountID, now.UTC())
	if err != nil {
		return storeFailure("reset login state", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return storeFailure("reset login state rows affected", err)
	}
	if affected == 0 {
		return ErrAccountNotFound
	}

	return nil
}

// Unlock clears lock state unconditionally. Operator override.
func (r *Repository) Unlock(ctx context.Context, accountID string) error {
	ctx, cancel := r.withDeadline(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE accounts
		SET login_attempts = 0, lock_until = NULL, updated_at = $2
		WHERE id = $1
	`, accountID, time.Now().UTC())
	if err != nil {
		return storeFailure("unlock account", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return storeFailure("unlock account rows affected", err)
	}
	if affected == 0 {
		return ErrAccountNotFound
	}

	return nil
}

func (r *Repository) SetActive(ctx context.Context, accountID string, active bool) error {
	ctx, cancel := r.withDeadline(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE accounts
		SET is_active = $2, updated_at = $3
		WHERE id = $1
	`, accountID, active, time.Now().UTC())
	if err != nil {
		return storeFailure("set account active", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return storeFailure("set account active rows affected", err)
	}
	if affected == 0 {
		return ErrAccountNotFound
	}

	return nil
}

// ClearExpiredLocks drops lapsed lock windows so the maintenance endpoint can
// keep the table tidy. Lock expiry itself is lazy; this is housekeeping only.
func (r *Repository) ClearExpiredLocks(ctx context.Context, now time.Time) (int64, error) {
	ctx, cancel := r.withDeadline(ctx)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `
		UPDATE accounts
		SET login_attempts = 0, lock_until = NULL, updated_at = $1
		WHERE lock_until IS NOT NULL AND lock_until < $1
	`, now.UTC())
	if err != nil {
		return 0, storeFailure("clear expired locks", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, storeFailure("clear expired locks rows affected", err)
	}

	return affected, nil
}
