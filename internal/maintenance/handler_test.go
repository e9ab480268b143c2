package maintenance

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type fakeAuthStore struct {
	cleared int64
	err     error
}

func (s *fakeAuthStore) ClearExpiredLocks(context.Context, time.Time) (int64, error) {
	return s.cleared, s.err
}

func doCleanup(handler *CleanupHandler, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/internal/maintenance/cleanup", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	recorder := httptest.NewRecorder()
	handler.Handle(recorder, req)
	return recorder
}

func TestCleanupHiddenWithoutSecret(t *testing.T) {
	handler := NewCleanupHandler(&fakeAuthStore{}, zap.NewNop(), "")
	recorder := doCleanup(handler, "Bearer anything")
	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestCleanupRejectsWrongSecret(t *testing.T) {
	handler := NewCleanupHandler(&fakeAuthStore{}, zap.NewNop(), "s3cret")

	for _, header := range []string{"", "Bearer wrong", "Basic s3cret"} {
		recorder := doCleanup(handler, header)
		assert.Equal(t, http.StatusUnauthorized, recorder.Code, "header %q", header)
	}
}

func TestCleanupClearsExpiredLocks(t *testing.T) {
	handler := NewCleanupHandler(&fakeAuthStore{cleared: 4}, zap.NewNop(), "s3cret")
	recorder := doCleanup(handler, "Bearer s3cret")
	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Contains(t, recorder.Body.String(), `"cleared_locks":4`)
}

func TestCleanupReportsStoreFailure(t *testing.T) {
	handler := NewCleanupHandler(&fakeAuthStore{err: errors.New("down")}, zap.NewNop(), "s3cret")
	recorder := doCleanup(handler, "Bearer s3cret")
	assert.Equal(t, http.StatusInternalServerError, recorder.Code)
}
