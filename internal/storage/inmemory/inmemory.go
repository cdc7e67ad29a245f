package inmemory

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/Icerzack/wordlobby/internal/storage"
)

var errCommitted = errors.New("transaction already committed")

// Storage is a process-local store. Every write stamps the touched keys with a fresh
// version so that Watch can detect concurrent modification. A deleted key keeps its
// version only while some Watch still tracks it.
type Storage struct {
	hashes   map[string]map[string]string
	sets     map[string]map[string]struct{}
	versions map[string]uint64
	watchers map[string]int
	seq      uint64
	logger   *zap.Logger

	mtx *sync.Mutex
}

func NewStorage(logger *zap.Logger) *Storage {
	return &Storage{
		hashes:   make(map[string]map[string]string),
		sets:     make(map[string]map[string]struct{}),
		versions: make(map[string]uint64),
		watchers: make(map[string]int),
		logger:   logger,
		mtx:      &sync.Mutex{},
	}
}

func (s *Storage) Exists(_ context.Context, key string) (bool, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.exists(key), nil
}

func (s *Storage) HGet(_ context.Context, key, field string) (string, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	v, ok := s.hashes[key][field]
	if !ok {
		return "", storage.ErrNotFound
	}
	return v, nil
}

func (s *Storage) HGetAll(_ context.Context, key string) (map[string]string, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	out := make(map[string]string, len(s.hashes[key]))
	for f, v := range s.hashes[key] {
		out[f] = v
	}
	return out, nil
}

func (s *Storage) SIsMember(_ context.Context, key, member string) (bool, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	_, ok := s.sets[key][member]
	return ok, nil
}

func (s *Storage) SMembers(_ context.Context, key string) ([]string, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	out := make([]string, 0, len(s.sets[key]))
	for m := range s.sets[key] {
		out = append(out, m)
	}
	return out, nil
}

func (s *Storage) SCard(_ context.Context, key string) (int64, error) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return int64(len(s.sets[key])), nil
}

func (s *Storage) HSet(_ context.Context, key string, values map[string]string) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.hset(key, values)
	return nil
}

func (s *Storage) SAdd(_ context.Context, key string, members ...string) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.sadd(key, members)
	return nil
}

func (s *Storage) SRem(_ context.Context, key string, members ...string) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.srem(key, members)
	return nil
}

func (s *Storage) Del(_ context.Context, keys ...string) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	s.del(keys)
	s.logger.Debug("keys deleted from storage", zap.Strings("keys", keys))
	return nil
}

func (s *Storage) Watch(ctx context.Context, fn func(tx storage.Tx) error, keys ...string) error {
	s.mtx.Lock()
	watched := make(map[string]uint64, len(keys))
	for _, k := range keys {
		watched[k] = s.versions[k]
		s.watchers[k]++
	}
	s.mtx.Unlock()
	defer s.unwatch(keys)

	return fn(&tx{Storage: s, watched: watched})
}

func (s *Storage) unwatch(keys []string) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	for _, k := range keys {
		s.watchers[k]--
		if s.watchers[k] > 0 {
			continue
		}
		delete(s.watchers, k)
		if !s.exists(k) {
			delete(s.versions, k)
		}
	}
}

func (s *Storage) Close() error {
	return nil
}

func (s *Storage) exists(key string) bool {
	if _, ok := s.hashes[key]; ok {
		return true
	}
	_, ok := s.sets[key]
	return ok
}

func (s *Storage) touch(key string) {
	s.seq++
	if !s.exists(key) && s.watchers[key] == 0 {
		delete(s.versions, key)
		return
	}
	s.versions[key] = s.seq
}

func (s *Storage) hset(key string, values map[string]string) {
	if len(values) == 0 {
		return
	}
	h, ok := s.hashes[key]
	if !ok {
		h = make(map[string]string, len(values))
		s.hashes[key] = h
	}
	for f, v := range values {
		h[f] = v
	}
	s.touch(key)
}

func (s *Storage) sadd(key string, members []string) {
	if len(members) == 0 {
		return
	}
	set, ok := s.sets[key]
	if !ok {
		set = make(map[string]struct{}, len(members))
		s.sets[key] = set
	}
	added := 0
	for _, m := range members {
		if _, ok := set[m]; !ok {
			set[m] = struct{}{}
			added++
		}
	}
	if added > 0 {
		s.touch(key)
	}
}

func (s *Storage) srem(key string, members []string) {
	set, ok := s.sets[key]
	if !ok {
		return
	}
	removed := 0
	for _, m := range members {
		if _, ok := set[m]; ok {
			delete(set, m)
			removed++
		}
	}
	if removed == 0 {
		return
	}
	// Like Redis, an emptied set ceases to exist.
	if len(set) == 0 {
		delete(s.sets, key)
	}
	s.touch(key)
}

func (s *Storage) del(keys []string) {
	for _, k := range keys {
		if !s.exists(k) {
			continue
		}
		delete(s.hashes, k)
		delete(s.sets, k)
		s.touch(k)
	}
}

type tx struct {
	*Storage

	watched   map[string]uint64
	committed bool
}

func (t *tx) Commit(ctx context.Context, fn func(w storage.Writer) error) error {
	if t.committed {
		return errCommitted
	}
	t.committed = true

	q := &queue{}
	if err := fn(q); err != nil {
		return err
	}

	t.mtx.Lock()
	defer t.mtx.Unlock()
	for k, v := range t.watched {
		if t.versions[k] != v {
			t.logger.Debug("transaction aborted", zap.String("key", k))
			return storage.ErrTxFailed
		}
	}
	for _, op := range q.ops {
		op(t.Storage)
	}
	return nil
}

// queue records writes issued inside Commit so they can be applied under one lock.
type queue struct {
	ops []func(s *Storage)
}

func (q *queue) HSet(_ context.Context, key string, values map[string]string) error {
	cp := make(map[string]string, len(values))
	for f, v := range values {
		cp[f] = v
	}
	q.ops = append(q.ops, func(s *Storage) { s.hset(key, cp) })
	return nil
}

func (q *queue) SAdd(_ context.Context, key string, members ...string) error {
	q.ops = append(q.ops, func(s *Storage) { s.sadd(key, members) })
	return nil
}

func (q *queue) SRem(_ context.Context, key string, members ...string) error {
	q.ops = append(q.ops, func(s *Storage) { s.srem(key, members) })
	return nil
}

func (q *queue) Del(_ context.Context, keys ...string) error {
	q.ops = append(q.ops, func(s *Storage) { s.del(keys) })
	return nil
}
