package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
)

const maxJSONBodyBytes = 1 << 20

type Handler struct {
	service *Service

	// Registration is a development convenience and stays off in
	// production deployments.
	allowRegistration bool
}

func NewHandler(service *Service, allowRegistration bool) *Handler {
	return &Handler{service: service, allowRegistration: allowRegistration}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type unlockRequest struct {
	AccountID string `json:"account_id"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	body.Username = strings.TrimSpace(body.Username)
	if body.Username == "" || body.Password == "" {
		writeError(w, http.StatusBadRequest, "username and password are required")
		return
	}

	session, err := h.service.Login(r.Context(), body.Username, body.Password)
	if err != nil {
		var locked LockedError
		switch {
		case errors.Is(err, ErrInvalidCredentials):
			writeError(w, http.StatusUnauthorized, "invalid credentials")
		case errors.As(err, &locked):
			retryAfter := int(locked.RetryAfter(time.Now().UTC()).Seconds())
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			writeError(w, http.StatusTooManyRequests, "account temporarily locked")
		case errors.Is(err, ErrStoreUnavailable):
			writeError(w, http.StatusServiceUnavailable, "service temporarily unavailable")
		default:
			sentry.CaptureException(err)
			writeError(w, http.StatusInternalServerError, "failed to login")
		}
		return
	}

	writeJSON(w, http.StatusOK, session)
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	if !h.allowRegistration {
		writeError(w, http.StatusForbidden, "registration is disabled")
		return
	}

	var body registerRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	role := RoleAdmin
	if body.Role != "" {
		parsed, ok := ParseRole(body.Role)
		if !ok {
			writeError(w, http.StatusBadRequest, "unknown role")
			return
		}
		role = parsed
	}

	account, err := h.service.Register(r.Context(), strings.TrimSpace(body.Username), body.Password, role)
	if err != nil {
		switch {
		case errors.Is(err, ErrUsernameTaken):
			writeError(w, http.StatusConflict, "username already exists")
		case errors.Is(err, ErrStoreUnavailable):
			writeError(w, http.StatusServiceUnavailable, "service temporarily unavailable")
		default:
			writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusCreated, account.Summary())
}

// Verify validates a presented token and reports the claims. Consumed by the
// front end to decide whether a stored token is still usable.
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing or malformed authorization header")
		return
	}

	account, _, err := h.service.Authenticate(r.Context(), token)
	if err != nil {
		writeAuthenticateError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"valid": true,
		"user":  account.Summary(),
	})
}

func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing or malformed authorization header")
		return
	}

	account, _, err := h.service.Authenticate(r.Context(), token)
	if err != nil {
		writeAuthenticateError(w, err)
		return
	}

	profile := map[string]any{
		"id":         account.ID,
		"username":   account.Username,
		"role":       account.Role,
		"created_at": account.CreatedAt,
	}
	if account.LastLogin != nil {
		profile["last_login"] = account.LastLogin
	}

	writeJSON(w, http.StatusOK, map[string]any{"user": profile})
}

// Unlock clears an account's lock state. Mounted behind the super_admin role
// gate in the route table.
func (h *Handler) Unlock(w http.ResponseWriter, r *http.Request) {
	var body unlockRequest
	if !decodeJSON(w, r, &body) {
		return
	}

	body.AccountID = strings.TrimSpace(body.AccountID)
	if body.AccountID == "" {
		writeError(w, http.StatusBadRequest, "account_id is required")
		return
	}

	if err := h.service.Unlock(r.Context(), body.AccountID); err != nil {
		switch {
		case errors.Is(err, ErrAccountNotFound):
			writeError(w, http.StatusNotFound, "account not found")
		case errors.Is(err, ErrStoreUnavailable):
			writeError(w, http.StatusServiceUnavailable, "service temporarily unavailable")
		default:
			sentry.CaptureException(err)
			writeError(w, http.StatusInternalServerError, "failed to unlock account")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dest any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}

	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
