package broadcast

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/Icerzack/wordlobby/internal/models"
)

// Observer is a live handle that receives a room's events.
// Send must not block; a failing observer never affects the others.
type Observer interface {
	Send(event models.Event) error
}

// ReapFunc deletes the persisted state of a room.
type ReapFunc func(ctx context.Context, roomID string) error

// Registry maps room ids to their connected observers.
type Registry struct {
	rooms  map[string]*entry
	logger *zap.Logger

	mtx *sync.Mutex
}

// entry is the observer list of one room. closed is set once the room has been reaped;
// a closed entry is never reused.
type entry struct {
	mtx       sync.Mutex
	observers []Observer
	closed    bool
}

func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		rooms:  make(map[string]*entry),
		logger: logger,
		mtx:    &sync.Mutex{},
	}
}

// Open allocates an empty entry for a newly created room.
func (r *Registry) Open(roomID string) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	if _, ok := r.rooms[roomID]; !ok {
		r.rooms[roomID] = &entry{}
	}
}

// Register appends an observer to the room, creating the entry if needed.
func (r *Registry) Register(roomID string, observer Observer) {
	for {
		e := r.getOrCreate(roomID)
		e.mtx.Lock()
		if e.closed {
			// Lost the race against a reap; the next lookup creates a fresh entry.
			e.mtx.Unlock()
			continue
		}
		e.observers = append(e.observers, observer)
		n := len(e.observers)
		e.mtx.Unlock()

		r.logger.Debug("Observer registered", zap.String("roomID", roomID), zap.Int("observers", n))
		return
	}
}

// Unregister removes an observer and reports whether the room has none left.
// The entry is kept until ReapIfEmpty so a concurrent Register can still revive it.
func (r *Registry) Unregister(roomID string, observer Observer) bool {
	e := r.get(roomID)
	if e == nil {
		return true
	}

	e.mtx.Lock()
	defer e.mtx.Unlock()
	for i, o := range e.observers {
		if o == observer {
			e.observers = append(e.observers[:i], e.observers[i+1:]...)
			break
		}
	}
	r.logger.Debug("Observer unregistered", zap.String("roomID", roomID), zap.Int("observers", len(e.observers)))
	return len(e.observers) == 0
}

// ReapIfEmpty deletes the room's entry and calls reap if no observer is registered.
// reap runs while the entry is locked, so a concurrent Register waits for it and then
// starts a fresh entry. It reports whether the room was reaped.
func (r *Registry) ReapIfEmpty(ctx context.Context, roomID string, reap ReapFunc) (bool, error) {
	e := r.get(roomID)
	if e == nil {
		return false, nil
	}

	e.mtx.Lock()
	defer e.mtx.Unlock()
	if e.closed || len(e.observers) > 0 {
		return false, nil
	}
	e.closed = true

	r.mtx.Lock()
	if r.rooms[roomID] == e {
		delete(r.rooms, roomID)
	}
	r.mtx.Unlock()

	if err := reap(ctx, roomID); err != nil {
		return true, err
	}
	r.logger.Info("Room reaped", zap.String("roomID", roomID))
	return true, nil
}

// Publish delivers event to every observer of the room in registration order.
// Delivery failures are logged and otherwise ignored.
func (r *Registry) Publish(roomID string, event models.Event) {
	e := r.get(roomID)
	if e == nil {
		return
	}

	e.mtx.Lock()
	defer e.mtx.Unlock()
	for _, o := range e.observers {
		if err := o.Send(event); err != nil {
			r.logger.Debug("Failed to deliver event", zap.String("roomID", roomID), zap.Error(err))
		}
	}
}

// Observers returns the number of observers registered for the room.
func (r *Registry) Observers(roomID string) int {
	e := r.get(roomID)
	if e == nil {
		return 0
	}
	e.mtx.Lock()
	defer e.mtx.Unlock()
	return len(e.observers)
}

// Has reports whether the room currently has an entry.
func (r *Registry) Has(roomID string) bool {
	return r.get(roomID) != nil
}

func (r *Registry) get(roomID string) *entry {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	return r.rooms[roomID]
}

func (r *Registry) getOrCreate(roomID string) *entry {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	e, ok := r.rooms[roomID]
	if !ok {
		e = &entry{}
		r.rooms[roomID] = e
	}
	return e
}
