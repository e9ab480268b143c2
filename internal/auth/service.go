package auth

import (
	"context"
	"errors"
	"regexp"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	defaultMaxAttempts  = 5
	defaultLockDuration = 15 * time.Minute
	defaultBcryptCost   = 12

	minPasswordLength = 6
	maxPasswordLength = 200
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{3,30}$`)

// Store is the credential store contract the verification engine depends on.
// *Repository satisfies it; tests use an in-memory fake.
type Store interface {
	GetByUsername(ctx context.Context, username string) (Account, error)
	GetByID(ctx context.Context, id string) (Account, error)
	Create(ctx context.Context, username, passwordHash string, role Role) (Account, error)
	RegisterFailedAttempt(ctx context.Context, accountID string, maxAttempts int, lockDuration time.Duration, now time.Time) (*time.Time, error)
	ResetOnSuccess(ctx context.Context, accountID string, now time.Time) error
	Unlock(ctx context.Context, accountID string) error
}

// Service is the lockout/verification engine plus session issuance.
type Service struct {
	store        Store
	tokens       *TokenManager
	logger       *zap.Logger
	maxAttempts  int
	lockDuration time.Duration
	bcryptCost   int
	now          func() time.Time
}

func NewService(store Store, tokens *TokenManager, logger *zap.Logger) *Service {
	return &Service{
		store:        store,
		tokens:       tokens,
		logger:       logger,
		maxAttempts:  defaultMaxAttempts,
		lockDuration: defaultLockDuration,
		bcryptCost:   defaultBcryptCost,
		now:          time.Now,
	}
}

// WithSecurityConfig overrides the lockout thresholds and hashing work
// factor. Zero or negative values keep the defaults.
func (s *Service) WithSecurityConfig(maxAttempts int, lockDuration time.Duration, bcryptCost int) {
	if maxAttempts > 0 {
		s.maxAttempts = maxAttempts
	}
	if lockDuration > 0 {
		s.lockDuration = lockDuration
	}
	if bcryptCost >= bcrypt.MinCost && bcryptCost <= bcrypt.MaxCost {
		s.bcryptCost = bcryptCost
	}
}

// Login decides whether the presented credentials grant access and maintains
// the per-account lockout state. Unknown usernames, inactive accounts and
// wrong passwords are indistinguishable to the caller; the distinction exists
// only in logs.
func (s *Service) Login(ctx context.Context, username, password string) (Session, error) {
	now := s.now().UTC()

	account, err := s.store.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			s.logger.Info("login_rejected", zap.String("reason", "unknown_username"))
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, err
	}

	if !account.IsActive {
		s.logger.Info("login_rejected", zap.String("reason", "inactive_account"), zap.String("account_id", account.ID))
		return Session{}, ErrInvalidCredentials
	}

	if account.Locked(now) {
		s.logger.Info("login_rejected", zap.String("reason", "locked"), zap.String("account_id", account.ID))
		return Session{}, LockedError{Until: *account.LockUntil}
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		lockedUntil, regErr := s.store.RegisterFailedAttempt(ctx, account.ID, s.maxAttempts, s.lockDuration, now)
		if regErr != nil && !errors.Is(regErr, ErrAccountNotFound) {
			return Session{}, regErr
		}
		s.logger.Info("login_rejected",
			zap.String("reason", "wrong_password"),
			zap.String("account_id", account.ID),
			zap.Bool("locked", lockedUntil != nil),
		)
		// The attempt that trips the threshold still reports bad
		// credentials; the lock applies from the next call.
		return Session{}, ErrInvalidCredentials
	}

	if err := s.store.ResetOnSuccess(ctx, account.ID, now); err != nil {
		return Session{}, err
	}

	token, err := s.tokens.Issue(account.ID, account.Username, account.Role)
	if err != nil {
		return Session{}, err
	}

	s.logger.Info("login_succeeded", zap.String("account_id", account.ID))

	return Session{
		Token:     token,
		ExpiresIn: int64(s.tokens.TTL().Seconds()),
		User:      account.Summary(),
	}, nil
}

// Authenticate validates a bearer token and reloads the account behind it. A
// token never outlives a deactivation or lock: both are re-checked here on
// every protected request.
func (s *Service) Authenticate(ctx context.Context, token string) (Account, Claims, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return Account{}, Claims{}, err
	}

	account, err := s.store.GetByID(ctx, claims.AccountID)
	if err != nil {
		if errors.Is(err, ErrAccountNotFound) {
			return Account{}, Claims{}, ErrTokenInvalid
		}
		return Account{}, Claims{}, err
	}

	if !account.IsActive {
		return Account{}, Claims{}, ErrAccountInactive
	}
	if account.Locked(s.now().UTC()) {
		return Account{}, Claims{}, LockedError{Until: *account.LockUntil}
	}

	return account, claims, nil
}

// Register creates a new account. Username format and the closed role set are
// enforced here; uniqueness is enforced by the store.
func (s *Service) Register(ctx context.Context, username, password string, role Role) (Account, error) {
	if !usernamePattern.MatchString(username) {
		return Account{}, errors.New("username must be 3-30 characters of letters, digits or underscore")
	}
	if len(password) < minPasswordLength || len(password) > maxPasswordLength {
		return Account{}, errors.New("password length is out of bounds")
	}
	if !role.Valid() {
		return Account{}, errors.New("unknown role")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		return Account{}, err
	}

	account, err := s.store.Create(ctx, username, string(hash), role)
	if err != nil {
		return Account{}, err
	}

	s.logger.Info("account_created", zap.String("account_id", account.ID), zap.String("role", string(role)))
	return account, nil
}

// Unlock clears lock state and the attempt counter unconditionally.
func (s *Service) Unlock(ctx context.Context, accountID string) error {
	if err := s.store.Unlock(ctx, accountID); err != nil {
		return err
	}
	s.logger.Info("account_unlocked", zap.String("account_id", accountID))
	return nil
}
