package session

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/boatfuel/fueltracker/types"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T, ttl time.Duration) (*Manager, *MemoryStore, *fakeClock) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	clock := &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	store := NewMemoryStore()
	store.clock = clock.Now
	return NewManager(store, ttl, WithClock(clock.Now), WithLogger(logger)), store, clock
}

func TestManager_RoundTrip(t *testing.T) {
	m, _, clock := newTestManager(t, time.Hour)
	ctx := context.Background()

	s, err := m.Start(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, s.Token)

	s.SetCurrentUser(&types.User{ID: "u1", Email: "a@b.io", PasswordHash: "hash"})
	require.NoError(t, m.Save(ctx, s))

	clock.Advance(10 * time.Minute)
	loaded, err := m.Load(ctx, s.Token)
	require.NoError(t, err)

	assert.True(t, loaded.IsLoggedIn())
	u, ok := loaded.CurrentUser()
	require.True(t, ok)
	assert.Equal(t, "u1", u.ID)
	assert.Empty(t, u.PasswordHash)
	assert.Equal(t, clock.now, loaded.LastAccessTime())
}

func TestManager_LoadUnknown(t *testing.T) {
	m, _, _ := newTestManager(t, time.Hour)

	_, err := m.Load(context.Background(), "nope")

	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManager_IdleSessionExpires(t *testing.T) {
	m, store, clock := newTestManager(t, time.Hour)
	ctx := context.Background()

	s, err := m.Start(ctx)
	require.NoError(t, err)

	// Keep the stored entry alive so the idle check is what rejects it.
	require.NoError(t, store.Save(ctx, s.Token, mustEncode(t, s), 24*time.Hour))
	clock.Advance(2 * time.Hour)

	_, err = m.Load(ctx, s.Token)
	assert.ErrorIs(t, err, ErrExpired)

	_, err = store.Load(ctx, s.Token)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManager_End(t *testing.T) {
	m, _, _ := newTestManager(t, time.Hour)
	ctx := context.Background()

	s, err := m.Start(ctx)
	require.NoError(t, err)

	require.NoError(t, m.End(ctx, s.Token))
	require.NoError(t, m.End(ctx, s.Token))
	_, err = m.Load(ctx, s.Token)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_TTL(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0)}
	store := NewMemoryStore()
	store.clock = clock.Now
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "k", []byte("v"), time.Minute))
	data, err := store.Load(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), data)

	clock.Advance(time.Minute)
	_, err = store.Load(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_Key(t *testing.T) {
	store := NewRedisStore(nil, " fueltracker:session: ")
	assert.Equal(t, "fueltracker:session:abc", store.key("abc"))
}

func mustEncode(t *testing.T, s *Session) []byte {
	t.Helper()
	data, err := json.Marshal(s)
	require.NoError(t, err)
	return data
}

// failingDeleteStore wraps a MemoryStore whose deletes always fail.
type failingDeleteStore struct {
	*MemoryStore
}

func (failingDeleteStore) Delete(context.Context, string) error {
	return errors.New("redis: connection refused")
}

func TestManager_ExpiredSessionDeleteFailureIsLogged(t *testing.T) {
	logger, hook := test.NewNullLogger()
	clock := &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	mem := NewMemoryStore()
	mem.clock = clock.Now
	m := NewManager(failingDeleteStore{mem}, time.Hour, WithClock(clock.Now), WithLogger(logger))
	ctx := context.Background()

	s, err := m.Start(ctx)
	require.NoError(t, err)
	require.NoError(t, mem.Save(ctx, s.Token, mustEncode(t, s), 24*time.Hour))
	clock.Advance(2 * time.Hour)

	_, err = m.Load(ctx, s.Token)
	assert.ErrorIs(t, err, ErrExpired)

	var warned bool
	for _, entry := range hook.AllEntries() {
		if entry.Level == logrus.WarnLevel && entry.Message == "delete expired session failed" {
			warned = true
			assert.Equal(t, s.Token, entry.Data["session"])
		}
	}
	assert.True(t, warned)
}
