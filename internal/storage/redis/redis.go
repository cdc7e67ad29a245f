package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/Icerzack/wordlobby/internal/storage"
)

// Config holds the connection settings of the Redis store.
type Config struct {
	Address  string
	Password string
	DB       int
}

// Storage is the Redis-backed store. Watch maps onto WATCH/MULTI/EXEC.
type Storage struct {
	client *redis.Client
	logger *zap.Logger
}

// NewStorage connects to Redis and verifies the connection with PING.
func NewStorage(ctx context.Context, cfg Config, logger *zap.Logger) (*Storage, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("error connecting to redis at %s: %w", cfg.Address, err)
	}
	return NewStorageFromClient(client, logger), nil
}

// NewStorageFromClient wraps an existing client.
func NewStorageFromClient(client *redis.Client, logger *zap.Logger) *Storage {
	return &Storage{
		client: client,
		logger: logger,
	}
}

func (s *Storage) Exists(ctx context.Context, key string) (bool, error) {
	return reader{s.client}.Exists(ctx, key)
}

func (s *Storage) HGet(ctx context.Context, key, field string) (string, error) {
	return reader{s.client}.HGet(ctx, key, field)
}

func (s *Storage) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return reader{s.client}.HGetAll(ctx, key)
}

func (s *Storage) SIsMember(ctx context.Context, key, member string) (bool, error) {
	return reader{s.client}.SIsMember(ctx, key, member)
}

func (s *Storage) SMembers(ctx context.Context, key string) ([]string, error) {
	return reader{s.client}.SMembers(ctx, key)
}

func (s *Storage) SCard(ctx context.Context, key string) (int64, error) {
	return reader{s.client}.SCard(ctx, key)
}

func (s *Storage) HSet(ctx context.Context, key string, values map[string]string) error {
	return writer{s.client}.HSet(ctx, key, values)
}

func (s *Storage) SAdd(ctx context.Context, key string, members ...string) error {
	return writer{s.client}.SAdd(ctx, key, members...)
}

func (s *Storage) SRem(ctx context.Context, key string, members ...string) error {
	return writer{s.client}.SRem(ctx, key, members...)
}

func (s *Storage) Del(ctx context.Context, keys ...string) error {
	if err := (writer{s.client}).Del(ctx, keys...); err != nil {
		return err
	}
	s.logger.Debug("keys deleted from redis", zap.Strings("keys", keys))
	return nil
}

func (s *Storage) Watch(ctx context.Context, fn func(tx storage.Tx) error, keys ...string) error {
	err := s.client.Watch(ctx, func(rtx *redis.Tx) error {
		return fn(&tx{reader: reader{rtx}, tx: rtx})
	}, keys...)
	return translate(err)
}

func (s *Storage) Close() error {
	return s.client.Close()
}

type tx struct {
	reader

	tx *redis.Tx
}

func (t *tx) Commit(ctx context.Context, fn func(w storage.Writer) error) error {
	_, err := t.tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		return fn(writer{pipe})
	})
	return translate(err)
}

// readCmds is the subset of commands shared by *redis.Client and *redis.Tx.
type readCmds interface {
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
	HGet(ctx context.Context, key, field string) *redis.StringCmd
	HGetAll(ctx context.Context, key string) *redis.StringStringMapCmd
	SIsMember(ctx context.Context, key string, member interface{}) *redis.BoolCmd
	SMembers(ctx context.Context, key string) *redis.StringSliceCmd
	SCard(ctx context.Context, key string) *redis.IntCmd
}

// writeCmds is the subset of commands shared by *redis.Client and redis.Pipeliner.
type writeCmds interface {
	HSet(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	SAdd(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	SRem(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

type reader struct {
	c readCmds
}

func (r reader) Exists(ctx context.Context, key string) (bool, error) {
	n, err := r.c.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r reader) HGet(ctx context.Context, key, field string) (string, error) {
	v, err := r.c.HGet(ctx, key, field).Result()
	if errors.Is(err, redis.Nil) {
		return "", storage.ErrNotFound
	}
	return v, err
}

func (r reader) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return r.c.HGetAll(ctx, key).Result()
}

func (r reader) SIsMember(ctx context.Context, key, member string) (bool, error) {
	return r.c.SIsMember(ctx, key, member).Result()
}

func (r reader) SMembers(ctx context.Context, key string) ([]string, error) {
	return r.c.SMembers(ctx, key).Result()
}

func (r reader) SCard(ctx context.Context, key string) (int64, error) {
	return r.c.SCard(ctx, key).Result()
}

// writer returns the queueing error only; inside a pipeline the command result
// is reported by EXEC.
type writer struct {
	c writeCmds
}

func (w writer) HSet(ctx context.Context, key string, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}
	args := make([]interface{}, 0, 2*len(values))
	for f, v := range values {
		args = append(args, f, v)
	}
	return w.c.HSet(ctx, key, args...).Err()
}

func (w writer) SAdd(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	return w.c.SAdd(ctx, key, toArgs(members)...).Err()
}

func (w writer) SRem(ctx context.Context, key string, members ...string) error {
	if len(members) == 0 {
		return nil
	}
	return w.c.SRem(ctx, key, toArgs(members)...).Err()
}

func (w writer) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return w.c.Del(ctx, keys...).Err()
}

func toArgs(members []string) []interface{} {
	args := make([]interface{}, len(members))
	for i, m := range members {
		args[i] = m
	}
	return args
}

func translate(err error) error {
	if errors.Is(err, redis.TxFailedErr) {
		return storage.ErrTxFailed
	}
	return err
}
