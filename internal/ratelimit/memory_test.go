package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreAllowsUpToBudget(t *testing.T) {
	store := NewMemoryStore(3, time.Minute)
	now := time.Now().UTC()

	for i := 0; i < 3; i++ {
		allowed, _, err := store.Allow(context.Background(), "1.2.3.4", now)
		require.NoError(t, err)
		assert.True(t, allowed, "hit %d should pass", i+1)
	}

	allowed, retryAfter, err := store.Allow(context.Background(), "1.2.3.4", now)
	require.NoError(t, err)
	assert.False(t, allowed)
	assert.Greater(t, retryAfter, time.Duration(0))
}

func TestMemoryStoreWindowSlides(t *testing.T) {
	store := NewMemoryStore(2, time.Minute)
	start := time.Now().UTC()

	for i := 0; i < 2; i++ {
		allowed, _, err := store.Allow(context.Background(), "1.2.3.4", start)
		require.NoError(t, err)
		require.True(t, allowed)
	}

	allowed, _, _ := store.Allow(context.Background(), "1.2.3.4", start.Add(time.Second))
	assert.False(t, allowed)

	allowed, _, err := store.Allow(context.Background(), "1.2.3.4", start.Add(61*time.Second))
	require.NoError(t, err)
	assert.True(t, allowed, "old hits fall out of the window")
}

func TestMemoryStoreKeysAreIndependent(t *testing.T) {
	store := NewMemoryStore(1, time.Minute)
	now := time.Now().UTC()

	allowed, _, _ := store.Allow(context.Background(), "1.1.1.1", now)
	require.True(t, allowed)
	allowed, _, _ = store.Allow(context.Background(), "1.1.1.1", now)
	assert.False(t, allowed)

	allowed, _, _ = store.Allow(context.Background(), "2.2.2.2", now)
	assert.True(t, allowed, "a throttled key must not affect others")
}
