package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func postJSON(handler http.HandlerFunc, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	handler(recorder, req)
	return recorder
}

func TestLoginHandlerSuccess(t *testing.T) {
	service, _, account := newTestService(t)
	handler := NewHandler(service, false)

	recorder := postJSON(handler.Login, "/auth/login", `{"username":"chef","password":"correct horse"}`)
	require.Equal(t, http.StatusOK, recorder.Code)

	var session Session
	require.NoError(t, json.NewDecoder(recorder.Body).Decode(&session))
	assert.NotEmpty(t, session.Token)
	assert.Equal(t, account.ID, session.User.ID)
}

func TestLoginHandlerRejectsBadBodies(t *testing.T) {
	service, _, _ := newTestService(t)
	handler := NewHandler(service, false)

	for body, wantStatus := range map[string]int{
		`not json`:                           http.StatusBadRequest,
		`{"username":"chef"}`:                http.StatusBadRequest,
		`{"username":"chef","extra":true}`:   http.StatusBadRequest,
		`{"username":"","password":"x"}`:     http.StatusBadRequest,
		`{"username":"chef","password":"x"}`: http.StatusUnauthorized,
	} {
		recorder := postJSON(handler.Login, "/auth/login", body)
		assert.Equal(t, wantStatus, recorder.Code, "body %q", body)
	}
}

func TestLoginHandlerLockedSetsRetryAfter(t *testing.T) {
	service, _, _ := newTestService(t)
	handler := NewHandler(service, false)

	for i := 0; i < 5; i++ {
		postJSON(handler.Login, "/auth/login", `{"username":"chef","password":"wrong"}`)
	}

	recorder := postJSON(handler.Login, "/auth/login", `{"username":"chef","password":"correct horse"}`)
	assert.Equal(t, http.StatusTooManyRequests, recorder.Code)
	assert.NotEmpty(t, recorder.Header().Get("Retry-After"))
}

func TestRegisterHandlerDisabled(t *testing.T) {
	service, _, _ := newTestService(t)
	handler := NewHandler(service, false)

	recorder := postJSON(handler.Register, "/auth/register", `{"username":"new_admin","password":"password"}`)
	assert.Equal(t, http.StatusForbidden, recorder.Code)
}

func TestRegisterHandlerCreatesAdmin(t *testing.T) {
	service, _, _ := newTestService(t)
	handler := NewHandler(service, true)

	recorder := postJSON(handler.Register, "/auth/register", `{"username":"new_admin","password":"password"}`)
	require.Equal(t, http.StatusCreated, recorder.Code)

	var summary Summary
	require.NoError(t, json.NewDecoder(recorder.Body).Decode(&summary))
	assert.Equal(t, "new_admin", summary.Username)
	assert.Equal(t, RoleAdmin, summary.Role)

	recorder = postJSON(handler.Register, "/auth/register", `{"username":"new_admin","password":"password"}`)
	assert.Equal(t, http.StatusConflict, recorder.Code)

	recorder = postJSON(handler.Register, "/auth/register", `{"username":"another","password":"password","role":"owner"}`)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestVerifyHandler(t *testing.T) {
	service, _, _ := newTestService(t)
	handler := NewHandler(service, false)

	session, err := service.Login(context.Background(), "chef", testPassword)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/auth/verify", nil)
	req.Header.Set("Authorization", "Bearer "+session.Token)
	recorder := httptest.NewRecorder()
	handler.Verify(recorder, req)
	assert.Equal(t, http.StatusOK, recorder.Code)

	req = httptest.NewRequest(http.MethodGet, "/auth/verify", nil)
	recorder = httptest.NewRecorder()
	handler.Verify(recorder, req)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
}

func TestUnlockHandler(t *testing.T) {
	service, store, account := newTestService(t)
	handler := NewHandler(service, false)

	for i := 0; i < 5; i++ {
		_, _ = service.Login(context.Background(), "chef", "wrong")
	}
	require.NotNil(t, store.account(t, account.ID).LockUntil)

	recorder := postJSON(handler.Unlock, "/auth/unlock", `{"account_id":"`+account.ID+`"}`)
	assert.Equal(t, http.StatusNoContent, recorder.Code)
	assert.Nil(t, store.account(t, account.ID).LockUntil)

	recorder = postJSON(handler.Unlock, "/auth/unlock", `{"account_id":"ghost"}`)
	assert.Equal(t, http.StatusNotFound, recorder.Code)

	recorder = postJSON(handler.Unlock, "/auth/unlock", `{"account_id":""}`)
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}
