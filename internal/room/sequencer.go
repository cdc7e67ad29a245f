package room

import "sync"

// sequencer hands out one mutex per room so that, within this process, a room's commits
// and the publication of their events happen in the same order.
type sequencer struct {
	mtx   sync.Mutex
	locks map[string]*roomLock
}

type roomLock struct {
	sync.Mutex
	refs int
}

func newSequencer() *sequencer {
	return &sequencer{locks: make(map[string]*roomLock)}
}

// lock blocks until the room's lock is held and returns its release function.
func (s *sequencer) lock(roomID string) func() {
	s.mtx.Lock()
	l, ok := s.locks[roomID]
	if !ok {
		l = &roomLock{}
		s.locks[roomID] = l
	}
	l.refs++
	s.mtx.Unlock()

	l.Lock()
	return func() {
		l.Unlock()

		s.mtx.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, roomID)
		}
		s.mtx.Unlock()
	}
}
