package sso

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStateStore_ConsumeExactlyOnce(t *testing.T) {
	store := NewMemoryStateStore(time.Minute)
	ctx := context.Background()

	record := &TransientState{
		RedirectURI: "https://app.example.com/done",
		ProviderID:  "provider-1",
		CreatedAt:   time.Now(),
	}
	require.NoError(t, store.Put(ctx, "state-token", record))

	got, ok := store.Consume(ctx, "state-token")
	require.True(t, ok)
	assert.Equal(t, "provider-1", got.ProviderID)
	assert.Equal(t, "https://app.example.com/done", got.RedirectURI)

	// Second consume of the same key must miss.
	_, ok = store.Consume(ctx, "state-token")
	assert.False(t, ok)
}

func TestMemoryStateStore_ExpiredRecordDoesNotMatch(t *testing.T) {
	store := NewMemoryStateStore(time.Minute)
	now := time.Now()
	store.nowFn = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "stale", &TransientState{ProviderID: "p", CreatedAt: now}))
	now = now.Add(2 * time.Minute)

	_, ok := store.Consume(ctx, "stale")
	assert.False(t, ok)
}

func TestMemoryStateStore_EmptyKeyRejected(t *testing.T) {
	store := NewMemoryStateStore(time.Minute)
	assert.Error(t, store.Put(context.Background(), "", &TransientState{}))
}

func TestMemoryStateStore_Sweep(t *testing.T) {
	store := NewMemoryStateStore(time.Minute)
	now := time.Now()
	store.nowFn = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "old", &TransientState{CreatedAt: now.Add(-2 * time.Minute)}))
	require.NoError(t, store.Put(ctx, "fresh", &TransientState{CreatedAt: now}))

	assert.Equal(t, 1, store.Sweep(ctx))
	assert.Equal(t, 1, store.Len())
}

func TestRedisStateStore_ConsumeExactlyOnce(t *testing.T) {
	server := miniredis.RunT(t)
	store, err := NewRedisStateStore("redis://"+server.Addr(), time.Minute)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "state-token", &TransientState{
		ProviderID: "provider-1",
		CreatedAt:  time.Now(),
	}))

	got, ok := store.Consume(ctx, "state-token")
	require.True(t, ok)
	assert.Equal(t, "provider-1", got.ProviderID)

	_, ok = store.Consume(ctx, "state-token")
	assert.False(t, ok)
}

func TestRedisStateStore_TTLExpiry(t *testing.T) {
	server := miniredis.RunT(t)
	store, err := NewRedisStateStore("redis://"+server.Addr(), time.Minute)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.Put(ctx, "short", &TransientState{ProviderID: "p"}))

	server.FastForward(2 * time.Minute)
	_, ok := store.Consume(ctx, "short")
	assert.False(t, ok)
}

func TestRedisStateStore_InvalidURL(t *testing.T) {
	_, err := NewRedisStateStore("not-a-url", time.Minute)
	assert.Error(t, err)
}
