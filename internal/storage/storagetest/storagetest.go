// Package storagetest holds the behaviour every storage.Store implementation must share.
package storagetest

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Icerzack/wordlobby/internal/storage"
)

// Run executes the contract suite against stores produced by newStore.
// Each subtest gets a fresh, empty store.
func Run(t *testing.T, newStore func(t *testing.T) storage.Store) {
	t.Run("HashReadWrite", func(t *testing.T) { testHashReadWrite(t, newStore(t)) })
	t.Run("SetReadWrite", func(t *testing.T) { testSetReadWrite(t, newStore(t)) })
	t.Run("Del", func(t *testing.T) { testDel(t, newStore(t)) })
	t.Run("CommitApplies", func(t *testing.T) { testCommitApplies(t, newStore(t)) })
	t.Run("CommitAbortsOnWatchedWrite", func(t *testing.T) { testCommitAborts(t, newStore(t)) })
	t.Run("CommitIgnoresUnwatchedWrite", func(t *testing.T) { testCommitIgnoresUnwatched(t, newStore(t)) })
	t.Run("CommitAbortsOnWatchedDelete", func(t *testing.T) { testCommitAbortsOnDelete(t, newStore(t)) })
	t.Run("CommitFnErrorDiscards", func(t *testing.T) { testCommitFnError(t, newStore(t)) })
	t.Run("ConcurrentAddsExactlyOneWins", func(t *testing.T) { testConcurrentAdds(t, newStore(t)) })
}

func testHashReadWrite(t *testing.T, s storage.Store) {
	ctx := context.Background()

	_, err := s.HGet(ctx, "h", "f")
	require.ErrorIs(t, err, storage.ErrNotFound)

	ok, err := s.Exists(ctx, "h")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.HSet(ctx, "h", map[string]string{"a": "1", "b": "2"}))
	require.NoError(t, s.HSet(ctx, "h", map[string]string{"b": "3"}))

	v, err := s.HGet(ctx, "h", "b")
	require.NoError(t, err)
	assert.Equal(t, "3", v)

	all, err := s.HGetAll(ctx, "h")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1", "b": "3"}, all)

	_, err = s.HGet(ctx, "h", "missing")
	require.ErrorIs(t, err, storage.ErrNotFound)

	ok, err = s.Exists(ctx, "h")
	require.NoError(t, err)
	assert.True(t, ok)
}

func testSetReadWrite(t *testing.T, s storage.Store) {
	ctx := context.Background()

	require.NoError(t, s.SAdd(ctx, "s", "alice", "bob"))
	require.NoError(t, s.SAdd(ctx, "s", "alice"))

	n, err := s.SCard(ctx, "s")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	ok, err := s.SIsMember(ctx, "s", "bob")
	require.NoError(t, err)
	assert.True(t, ok)

	members, err := s.SMembers(ctx, "s")
	require.NoError(t, err)
	sort.Strings(members)
	assert.Equal(t, []string{"alice", "bob"}, members)

	require.NoError(t, s.SRem(ctx, "s", "alice", "bob"))
	ok, err = s.Exists(ctx, "s")
	require.NoError(t, err)
	assert.False(t, ok, "an emptied set must not exist")

	members, err = s.SMembers(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, members)
}

func testDel(t *testing.T, s storage.Store) {
	ctx := context.Background()

	require.NoError(t, s.HSet(ctx, "h", map[string]string{"a": "1"}))
	require.NoError(t, s.SAdd(ctx, "s", "x"))
	require.NoError(t, s.Del(ctx, "h", "s", "never-existed"))

	for _, k := range []string{"h", "s"} {
		ok, err := s.Exists(ctx, k)
		require.NoError(t, err)
		assert.False(t, ok, k)
	}
}

func testCommitApplies(t *testing.T, s storage.Store) {
	ctx := context.Background()
	require.NoError(t, s.HSet(ctx, "room", map[string]string{"state": "0"}))

	err := s.Watch(ctx, func(tx storage.Tx) error {
		state, err := tx.HGet(ctx, "room", "state")
		if err != nil {
			return err
		}
		assert.Equal(t, "0", state)
		return tx.Commit(ctx, func(w storage.Writer) error {
			if err := w.HSet(ctx, "room", map[string]string{"state": "1"}); err != nil {
				return err
			}
			return w.SAdd(ctx, "room:users", "u1")
		})
	}, "room")
	require.NoError(t, err)

	state, err := s.HGet(ctx, "room", "state")
	require.NoError(t, err)
	assert.Equal(t, "1", state)
	ok, err := s.SIsMember(ctx, "room:users", "u1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func testCommitAborts(t *testing.T, s storage.Store) {
	ctx := context.Background()
	require.NoError(t, s.SAdd(ctx, "room:members", "alice"))

	err := s.Watch(ctx, func(tx storage.Tx) error {
		ok, err := tx.SIsMember(ctx, "room:members", "bob")
		if err != nil {
			return err
		}
		require.False(t, ok)

		// A concurrent writer claims the name between read and commit.
		require.NoError(t, s.SAdd(ctx, "room:members", "bob"))

		return tx.Commit(ctx, func(w storage.Writer) error {
			return w.SAdd(ctx, "room:users", "u-bob")
		})
	}, "room:members")
	require.ErrorIs(t, err, storage.ErrTxFailed)

	ok, err := s.Exists(ctx, "room:users")
	require.NoError(t, err)
	assert.False(t, ok, "aborted commit must apply nothing")
}

func testCommitIgnoresUnwatched(t *testing.T, s storage.Store) {
	ctx := context.Background()

	err := s.Watch(ctx, func(tx storage.Tx) error {
		require.NoError(t, s.HSet(ctx, "other", map[string]string{"x": "1"}))
		return tx.Commit(ctx, func(w storage.Writer) error {
			return w.HSet(ctx, "room", map[string]string{"state": "0"})
		})
	}, "room")
	require.NoError(t, err)
}

func testCommitAbortsOnDelete(t *testing.T, s storage.Store) {
	ctx := context.Background()
	require.NoError(t, s.HSet(ctx, "room", map[string]string{"state": "0"}))

	err := s.Watch(ctx, func(tx storage.Tx) error {
		require.NoError(t, s.Del(ctx, "room"))
		return tx.Commit(ctx, func(w storage.Writer) error {
			return w.HSet(ctx, "room", map[string]string{"state": "1"})
		})
	}, "room")
	require.ErrorIs(t, err, storage.ErrTxFailed)

	ok, err := s.Exists(ctx, "room")
	require.NoError(t, err)
	assert.False(t, ok)
}

func testCommitFnError(t *testing.T, s storage.Store) {
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.Watch(ctx, func(tx storage.Tx) error {
		return tx.Commit(ctx, func(w storage.Writer) error {
			if err := w.HSet(ctx, "room", map[string]string{"state": "1"}); err != nil {
				return err
			}
			return boom
		})
	}, "room")
	require.ErrorIs(t, err, boom)

	ok, err := s.Exists(ctx, "room")
	require.NoError(t, err)
	assert.False(t, ok)
}

func testConcurrentAdds(t *testing.T, s storage.Store) {
	ctx := context.Background()
	const workers = 8

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		wins   int
		losses int
	)
	start := make(chan struct{})
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			err := s.Watch(ctx, func(tx storage.Tx) error {
				ok, err := tx.SIsMember(ctx, "room:members", "alice")
				if err != nil {
					return err
				}
				if ok {
					return storage.ErrTxFailed
				}
				return tx.Commit(ctx, func(w storage.Writer) error {
					return w.SAdd(ctx, "room:members", "alice")
				})
			}, "room:members")

			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
			} else if errors.Is(err, storage.ErrTxFailed) {
				losses++
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, workers-1, losses)
}
