package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const defaultTokenTTL = 24 * time.Hour

// TokenManager issues and verifies session tokens: HS256 JWTs carrying the
// account id, username and role, bounded by a configurable lifetime. Rotating
// the secret invalidates every outstanding token.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &TokenManager{secret: []byte(secret), ttl: ttl}
}

func (m *TokenManager) TTL() time.Duration {
	return m.ttl
}

func (m *TokenManager) Issue(accountID string, username string, role Role) (string, error) {
	now := time.Now().UTC()
	claims := jwt.MapClaims{
		"sub":      accountID,
		"username": username,
		"role":     string(role),
		"iat":      now.Unix(),
		"exp":      now.Add(m.ttl).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", err
	}

	return signed, nil
}

// Verify checks the signature before trusting any claim, then expiry. Expired
// tokens return ErrTokenExpired; anything malformed, unsigned or tampered
// returns ErrTokenInvalid. A verified token still says nothing about the
// account's current state; callers reload the account for that.
func (m *TokenManager) Verify(tokenString string) (Claims, error) {
	parsed, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrTokenExpired
		}
		return Claims{}, ErrTokenInvalid
	}

	mapClaims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return Claims{}, ErrTokenInvalid
	}

	accountID, _ := mapClaims["sub"].(string)
	username, _ := mapClaims["username"].(string)
	roleValue, _ := mapClaims["role"].(string)
	role, ok := ParseRole(roleValue)
	if accountID == "" || username == "" || !ok {
		return Claims{}, ErrTokenInvalid
	}

	return Claims{AccountID: accountID, Username: username, Role: role}, nil
}
