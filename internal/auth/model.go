package auth

import "time"

// Role is the closed set of administrative roles. Anything outside the
// enumeration is rejected at parse time.
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleSuperAdmin Role = "super_admin"
)

func ParseRole(value string) (Role, bool) {
	switch Role(value) {
	case RoleAdmin, RoleSuperAdmin:
		return Role(value), true
	default:
		return "", false
	}
}

func (r Role) Valid() bool {
	_, ok := ParseRole(string(r))
	return ok
}

// Account is a single administrative credential record. LoginAttempts and
// LockUntil carry the lockout state; a LockUntil in the future means locked.
type Account struct {
	ID            string
	Username      string
	PasswordHash  string
	Role          Role
	IsActive      bool
	LoginAttempts int
	LockUntil     *time.Time
	LastLogin     *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Locked reports whether the account is inside its lock window at now.
func (a Account) Locked(now time.Time) bool {
	return a.LockUntil != nil && now.Before(*a.LockUntil)
}

// Summary is the public shape of an account, safe to return to clients.
type Summary struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

func (a Account) Summary() Summary {
	return Summary{ID: a.ID, Username: a.Username, Role: a.Role}
}

// Claims is the identity data embedded in a session token.
type Claims struct {
	AccountID string
	Username  string
	Role      Role
}

// Session is the successful login payload: the bearer token plus the public
// account summary.
type Session struct {
	Token     string  `json:"token"`
	ExpiresIn int64   `json:"expires_in"`
	User      Summary `json:"user"`
}
