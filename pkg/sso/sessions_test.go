package sso

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession(id string, createdAt time.Time, timeout time.Duration) *Session {
	return &Session{
		ID:           id,
		UserID:       "user-1",
		ProviderID:   "provider-1",
		CreatedAt:    createdAt,
		ExpiresAt:    createdAt.Add(timeout),
		LastActivity: createdAt,
		Status:       SessionStatusSuccess,
	}
}

func TestSessionStore_GetEvictsExpired(t *testing.T) {
	store := NewSessionStore(time.Hour)
	now := time.Now()
	store.nowFn = func() time.Time { return now }

	store.Put(newTestSession("s1", now, time.Hour))
	require.NotNil(t, store.Get("s1"))

	// Jump past expiry: the session is gone and stays gone.
	now = now.Add(time.Hour + time.Second)
	assert.Nil(t, store.Get("s1"))
	assert.Nil(t, store.Get("s1"))
	assert.Equal(t, 0, store.Active())
}

func TestSessionStore_GetBumpsLastActivity(t *testing.T) {
	store := NewSessionStore(time.Hour)
	start := time.Now()
	now := start
	store.nowFn = func() time.Time { return now }

	store.Put(newTestSession("s1", start, time.Hour))
	now = start.Add(10 * time.Minute)

	session := store.Get("s1")
	require.NotNil(t, session)
	assert.Equal(t, now, session.LastActivity)
}

func TestSessionStore_Refresh(t *testing.T) {
	store := NewSessionStore(time.Hour)
	start := time.Now()
	now := start
	store.nowFn = func() time.Time { return now }

	store.Put(newTestSession("s1", start, time.Hour))

	now = start.Add(50 * time.Minute)
	require.True(t, store.Refresh("s1"))

	session := store.Get("s1")
	require.NotNil(t, session)
	assert.Equal(t, now.Add(time.Hour), session.ExpiresAt)

	// Expired sessions cannot be refreshed back to life.
	now = session.ExpiresAt.Add(time.Second)
	assert.False(t, store.Refresh("s1"))
	assert.Nil(t, store.Get("s1"))

	assert.False(t, store.Refresh("missing"))
}

func TestSessionStore_Invalidate(t *testing.T) {
	store := NewSessionStore(time.Hour)
	store.Put(newTestSession("s1", time.Now(), time.Hour))

	assert.True(t, store.Invalidate("s1"))
	assert.False(t, store.Invalidate("s1"))
	assert.Nil(t, store.Get("s1"))
}

func TestSessionStore_CleanupExpired(t *testing.T) {
	store := NewSessionStore(time.Hour)
	start := time.Now()
	now := start
	store.nowFn = func() time.Time { return now }

	store.Put(newTestSession("live", start.Add(30*time.Minute), time.Hour))
	store.Put(newTestSession("dead1", start.Add(-2*time.Hour), time.Hour))
	store.Put(newTestSession("dead2", start.Add(-3*time.Hour), time.Hour))

	assert.Equal(t, 2, store.CleanupExpired())
	assert.Equal(t, 1, store.Active())
	assert.NotNil(t, store.Get("live"))
}

func TestSessionStore_Snapshot(t *testing.T) {
	store := NewSessionStore(time.Hour)
	store.Put(newTestSession("s1", time.Now(), time.Hour))

	snapshot := store.Snapshot()
	require.Len(t, snapshot, 1)

	// Mutating the snapshot must not affect the store.
	snapshot[0].UserID = "tampered"
	assert.Equal(t, "user-1", store.Get("s1").UserID)
}
