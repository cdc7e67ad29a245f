package inmemory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Icerzack/wordlobby/internal/storage"
	"github.com/Icerzack/wordlobby/internal/storage/storagetest"
)

func TestStorage_Contract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store {
		return NewStorage(zap.NewNop())
	})
}

func TestStorage_CommitTwice(t *testing.T) {
	s := NewStorage(zap.NewNop())
	ctx := context.Background()

	err := s.Watch(ctx, func(tx storage.Tx) error {
		require.NoError(t, tx.Commit(ctx, func(w storage.Writer) error { return nil }))
		return tx.Commit(ctx, func(w storage.Writer) error { return nil })
	}, "k")
	assert.ErrorIs(t, err, errCommitted)
}

func TestStorage_NoOpWriteKeepsWatch(t *testing.T) {
	s := NewStorage(zap.NewNop())
	ctx := context.Background()
	require.NoError(t, s.SAdd(ctx, "set", "a"))

	err := s.Watch(ctx, func(tx storage.Tx) error {
		// Neither call changes the set, so the watch stays valid.
		require.NoError(t, s.SAdd(ctx, "set", "a"))
		require.NoError(t, s.SRem(ctx, "set", "zzz"))
		return tx.Commit(ctx, func(w storage.Writer) error {
			return w.SAdd(ctx, "set", "b")
		})
	}, "set")
	require.NoError(t, err)

	n, err := s.SCard(ctx, "set")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)
}

func TestStorage_HGetAllReturnsCopy(t *testing.T) {
	s := NewStorage(zap.NewNop())
	ctx := context.Background()
	require.NoError(t, s.HSet(ctx, "h", map[string]string{"a": "1"}))

	all, err := s.HGetAll(ctx, "h")
	require.NoError(t, err)
	all["a"] = "mutated"

	v, err := s.HGet(ctx, "h", "a")
	require.NoError(t, err)
	assert.Equal(t, "1", v)
}

func TestStorage_DeletedKeysDropVersions(t *testing.T) {
	s := NewStorage(zap.NewNop())
	ctx := context.Background()

	for _, room := range []string{"111111", "222222", "333333"} {
		require.NoError(t, s.HSet(ctx, room, map[string]string{"state": "0"}))
		require.NoError(t, s.SAdd(ctx, room+":users", "u1"))
		require.NoError(t, s.SRem(ctx, room+":users", "u1"))
		require.NoError(t, s.Del(ctx, room))
	}

	assert.Empty(t, s.versions)
	assert.Empty(t, s.watchers)
}

func TestStorage_WatchedDeleteKeepsVersionUntilDone(t *testing.T) {
	s := NewStorage(zap.NewNop())
	ctx := context.Background()

	err := s.Watch(ctx, func(tx storage.Tx) error {
		// Created and deleted again while watched: the key is back to absent, but the
		// watch must still see that it changed.
		require.NoError(t, s.HSet(ctx, "k", map[string]string{"a": "1"}))
		require.NoError(t, s.Del(ctx, "k"))
		assert.Contains(t, s.versions, "k")

		return tx.Commit(ctx, func(w storage.Writer) error {
			return w.HSet(ctx, "k", map[string]string{"a": "2"})
		})
	}, "k")
	require.ErrorIs(t, err, storage.ErrTxFailed)

	assert.Empty(t, s.versions)
	assert.Empty(t, s.watchers)
}
