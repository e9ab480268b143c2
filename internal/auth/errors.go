package auth

import (
	"errors"
	"time"
)

var (
	// ErrInvalidCredentials covers both unknown usernames and wrong
	// passwords so responses cannot be used to enumerate accounts.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrAccountInactive is returned when a deactivated account is used,
	// either at login or when a still-valid token is presented.
	ErrAccountInactive = errors.New("account is inactive")

	// ErrTokenExpired and ErrTokenInvalid are distinct so callers can tell
	// "log in again" apart from "bad token".
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")

	// ErrStoreUnavailable means the credential store could not be reached
	// within its deadline. Not an authentication failure; retry later.
	ErrStoreUnavailable = errors.New("credential store unavailable")

	ErrUsernameTaken   = errors.New("username already exists")
	ErrAccountNotFound = errors.New("account not found")
)

// LockedError rejects authentication while a lock window is in effect. Until
// is exposed so callers can set a Retry-After header; nothing else leaks.
type LockedError struct {
	Until time.Time
}

func (e LockedError) Error() string {
	return "account temporarily locked"
}

func (e LockedError) RetryAfter(now time.Time) time.Duration {
	d := e.Until.Sub(now)
	if d < time.Second {
		d = time.Second
	}
	return d
}
