package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"messer/internal/database/dbtest"
	"messer/internal/model"
	"messer/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *store.Store {
	t.Helper()
	return store.New(dbtest.Open(t))
}

func mustUser(t *testing.T, s *store.Store, name string) *model.User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), name)
	require.NoError(t, err)
	return u
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	alice := mustUser(t, s, "alice")

	byName, err := s.UserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, alice.ID, byName.ID)

	byID, err := s.UserByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", byID.Username)

	_, err = s.UserByUsername(ctx, "nobody")
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.CreateUser(ctx, "alice")
	assert.ErrorIs(t, err, store.ErrDuplicate)
}

func TestFriendshipPairLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	a := mustUser(t, s, "a")
	b := mustUser(t, s, "b")

	var ab, ba *model.Friendship
	err := s.Transaction(ctx, func(tx *store.Store) error {
		var created bool
		var err error
		ab, ba, created, err = tx.GetOrCreateFriendshipPair(ctx, a.ID, b.ID)
		assert.True(t, created)
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, ba.ID, ab.ReverseID)
	assert.Equal(t, ab.ID, ba.ReverseID)

	exists, err := s.FriendshipExists(ctx, b.ID, a.ID)
	require.NoError(t, err)
	assert.True(t, exists)

	// second call finds the pair
	_, _, created, err := s.GetOrCreateFriendshipPair(ctx, b.ID, a.ID)
	require.NoError(t, err)
	assert.False(t, created)

	_, err = s.CreateMessage(ctx, ab, "hi b")
	require.NoError(t, err)
	_, err = s.CreateMessage(ctx, ba, "hi a")
	require.NoError(t, err)

	require.NoError(t, s.Transaction(ctx, func(tx *store.Store) error {
		return tx.DeleteFriendshipPair(ctx, ba)
	}))

	for _, pair := range [][2]string{{a.ID, b.ID}, {b.ID, a.ID}} {
		_, err := s.Friendship(ctx, pair[0], pair[1])
		assert.ErrorIs(t, err, store.ErrNotFound)
	}
	sent, received, err := s.MessagesOf(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, sent)
	assert.Empty(t, received)

	err = s.DeleteFriendshipPair(ctx, ab)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestGetOrCreateRepairsTornPair(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	a := mustUser(t, s, "a")
	b := mustUser(t, s, "b")

	ab, ba, _, err := s.GetOrCreateFriendshipPair(ctx, a.ID, b.ID)
	require.NoError(t, err)

	// drop one half behind the store's back
	require.NoError(t, dropHalf(t, s, ctx, ba))

	ab2, ba2, created, err := s.GetOrCreateFriendshipPair(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, ab.ID, ab2.ID)
	assert.NotEqual(t, ba.ID, ba2.ID)

	reloaded, err := s.Friendship(ctx, a.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, ba2.ID, reloaded.ReverseID)
}

// dropHalf deletes a single friendship row, leaving its twin in place.
func dropHalf(t *testing.T, s *store.Store, ctx context.Context, f *model.Friendship) error {
	t.Helper()
	return s.Transaction(ctx, func(tx *store.Store) error {
		if err := tx.DeleteFriendshipPair(ctx, &model.Friendship{ID: f.ID, OwnerID: "x", FriendID: "y"}); err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		return nil
	})
}

func TestFriendRequests(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	a := mustUser(t, s, "a")
	b := mustUser(t, s, "b")
	c := mustUser(t, s, "c")

	_, err := s.CreateFriendRequest(ctx, a.ID, b.ID)
	require.NoError(t, err)
	_, err = s.CreateFriendRequest(ctx, c.ID, a.ID)
	require.NoError(t, err)

	_, err = s.CreateFriendRequest(ctx, a.ID, b.ID)
	assert.ErrorIs(t, err, store.ErrDuplicate)

	sent, received, err := s.FriendRequestsOf(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, sent, 1)
	require.Len(t, received, 1)
	assert.Equal(t, "b", sent[0].ToUser.Username)
	assert.Equal(t, "c", received[0].FromUser.Username)

	require.NoError(t, s.DeleteFriendRequest(ctx, a.ID, b.ID))
	assert.ErrorIs(t, s.DeleteFriendRequest(ctx, a.ID, b.ID), store.ErrNotFound)

	_, err = s.FriendRequest(ctx, a.ID, b.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestMarkReadIsOneWay(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	a := mustUser(t, s, "a")
	b := mustUser(t, s, "b")

	ab, _, _, err := s.GetOrCreateFriendshipPair(ctx, a.ID, b.ID)
	require.NoError(t, err)
	_, err = s.CreateMessage(ctx, ab, "one")
	require.NoError(t, err)
	_, err = s.CreateMessage(ctx, ab, "two")
	require.NoError(t, err)

	first := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	n, err := s.MarkRead(ctx, ab, first)
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	n, err = s.MarkRead(ctx, ab, first.Add(time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)

	_, received, err := s.MessagesOf(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, received, 2)
	for _, m := range received {
		require.True(t, m.Read())
		assert.True(t, m.ReadAt.Equal(first))
		assert.Equal(t, "a", m.Friendship.Owner.Username)
	}
}
