package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupRedisStore(t *testing.T, maxHits int, window time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	server := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: server.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedisStore(client, maxHits, window), server
}

func TestRedisStoreSharesBudgetPerKey(t *testing.T) {
	store, _ := setupRedisStore(t, 2, time.Minute)
	now := time.Now().UTC()

	for i := 0; i < 2; i++ {
		allowed, _, err := store.Allow(context.Background(), "1.2.3.4", now)
		require.NoError(t, err)
		assert.True(t, allowed)
	}

	allowed, retryAfter, err := store.Allow(context.Background(), "1.2.3.4", now)
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Greater(t, retryAfter, time.Duration(0))

	allowed, _, err = store.Allow(context.Background(), "5.6.7.8", now)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestRedisStoreWindowExpires(t *testing.T) {
	store, server := setupRedisStore(t, 1, time.Minute)
	now := time.Now().UTC()

	allowed, _, err := store.Allow(context.Background(), "1.2.3.4", now)
	require.NoError(t, err)
	require.True(t, allowed)

	allowed, _, _ = store.Allow(context.Background(), "1.2.3.4", now)
	require.False(t, allowed)

	server.FastForward(2 * time.Minute)

	allowed, _, err = store.Allow(context.Background(), "1.2.3.4", now)
	require.NoError(t, err)
	assert.True(t, allowed, "budget resets once the key expires")
}

func TestRedisStoreSurfacesOutage(t *testing.T) {
	store, server := setupRedisStore(t, 2, time.Minute)
	server.Close()

	_, _, err := store.Allow(context.Background(), "1.2.3.4", time.Now().UTC())
	assert.Error(t, err)
}

func TestGuardMiddlewareThrottles(t *testing.T) {
	guard := NewGuard(NewMemoryStore(1, time.Minute), zap.NewNop())
	handler := guard.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/auth/login", nil))
	assert.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	handler.ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/auth/login", nil))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.NotEmpty(t, second.Header().Get("Retry-After"))
}

func TestGuardMiddlewareFailsOpenOnStoreOutage(t *testing.T) {
	server := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: server.Addr()})
	t.Cleanup(func() { client.Close() })
	server.Close()

	guard := NewGuard(NewRedisStore(client, 1, time.Minute), zap.NewNop())
	handler := guard.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodPost, "/auth/login", nil))
	assert.Equal(t, http.StatusOK, recorder.Code, "login must stay available when the cache is down")
}

func TestGuardUsesForwardedForHeader(t *testing.T) {
	guard := NewGuard(NewMemoryStore(1, time.Minute), zap.NewNop())
	handler := guard.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	exhaust := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	exhaust.Header.Set("X-Forwarded-For", "9.9.9.9")
	handler.ServeHTTP(httptest.NewRecorder(), exhaust)

	blocked := httptest.NewRecorder()
	handler.ServeHTTP(blocked, exhaust)
	assert.Equal(t, http.StatusTooManyRequests, blocked.Code)

	other := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	other.Header.Set("X-Forwarded-For", "8.8.8.8")
	allowed := httptest.NewRecorder()
	handler.ServeHTTP(allowed, other)
	assert.Equal(t, http.StatusOK, allowed.Code)
}
