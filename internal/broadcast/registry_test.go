package broadcast

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Icerzack/wordlobby/internal/models"
)

type recorder struct {
	mu     sync.Mutex
	events []models.Event
	err    error
}

func (r *recorder) Send(event models.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, event)
	return nil
}

func (r *recorder) received() []models.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.Event(nil), r.events...)
}

func TestRegistry_PublishInOrderToAll(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	a, b := &recorder{}, &recorder{}
	reg.Register("1", a)
	reg.Register("1", b)
	reg.Register("2", &recorder{})

	events := []models.Event{
		models.MemberAdded{UserID: "u1", UserName: "alice"},
		models.ConfigUpdated{Config: models.GameConfig{InitTime: 10}},
		models.GameStarted{FirstTurn: "u1"},
	}
	for _, ev := range events {
		reg.Publish("1", ev)
	}

	assert.Equal(t, events, a.received())
	assert.Equal(t, events, b.received())
}

func TestRegistry_FailingObserverDoesNotBlockOthers(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	broken := &recorder{err: errors.New("half-closed")}
	healthy := &recorder{}
	reg.Register("1", broken)
	reg.Register("1", healthy)

	reg.Publish("1", models.MemberRemoved{UserID: "u1"})

	assert.Empty(t, broken.received())
	assert.Equal(t, []models.Event{models.MemberRemoved{UserID: "u1"}}, healthy.received())
}

func TestRegistry_UnregisteredObserverReceivesNothing(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	a, b := &recorder{}, &recorder{}
	reg.Register("1", a)
	reg.Register("1", b)

	assert.False(t, reg.Unregister("1", a))
	reg.Publish("1", models.MemberRemoved{UserID: "u1"})

	assert.Empty(t, a.received())
	assert.Len(t, b.received(), 1)
}

func TestRegistry_PublishToUnknownRoom(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	assert.NotPanics(t, func() { reg.Publish("missing", models.GameStarted{}) })
}

func TestRegistry_ReapOnlyWhenEmpty(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	a, b := &recorder{}, &recorder{}
	reg.Register("1", a)
	reg.Register("1", b)

	var reaped []string
	reap := func(_ context.Context, roomID string) error {
		reaped = append(reaped, roomID)
		return nil
	}

	assert.False(t, reg.Unregister("1", a))
	ok, err := reg.ReapIfEmpty(context.Background(), "1", reap)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, reaped)

	assert.True(t, reg.Unregister("1", b))
	ok, err = reg.ReapIfEmpty(context.Background(), "1", reap)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"1"}, reaped)
	assert.False(t, reg.Has("1"))

	// A second reap of the same room is a no-op.
	ok, err = reg.ReapIfEmpty(context.Background(), "1", reap)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Len(t, reaped, 1)
}

func TestRegistry_RegisterBeforeReapRevivesRoom(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	a, b := &recorder{}, &recorder{}
	reg.Register("1", a)
	assert.True(t, reg.Unregister("1", a))

	reg.Register("1", b)
	ok, err := reg.ReapIfEmpty(context.Background(), "1", func(context.Context, string) error {
		t.Fatal("room with an observer must not be reaped")
		return nil
	})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, reg.Observers("1"))
}

func TestRegistry_RegisterAfterReapStartsFreshEntry(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	reg.Open("1")
	ok, err := reg.ReapIfEmpty(context.Background(), "1", func(context.Context, string) error { return nil })
	require.NoError(t, err)
	require.True(t, ok)

	a := &recorder{}
	reg.Register("1", a)
	reg.Publish("1", models.GameStarted{})
	assert.Len(t, a.received(), 1)
}

func TestRegistry_ReapErrorStillRemovesEntry(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	reg.Open("1")

	ok, err := reg.ReapIfEmpty(context.Background(), "1", func(context.Context, string) error {
		return errors.New("store down")
	})
	require.Error(t, err)
	assert.True(t, ok)
	assert.False(t, reg.Has("1"))
}

func TestRegistry_ConcurrentRegisterAndReap(t *testing.T) {
	reg := NewRegistry(zap.NewNop())
	const rounds = 200

	var wg sync.WaitGroup
	observers := make([]*recorder, rounds)
	for i := range observers {
		observers[i] = &recorder{}
	}

	wg.Add(2)
	go func() {
		defer wg.Done()
		for _, o := range observers {
			reg.Register("1", o)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			_, _ = reg.ReapIfEmpty(context.Background(), "1", func(context.Context, string) error { return nil })
		}
	}()
	wg.Wait()

	// Every registration either survived or landed in a fresh entry; none was lost
	// into a reaped entry.
	assert.Equal(t, rounds, reg.Observers("1"))
}
