package storage

import (
	"context"
	"errors"
)

const (
	InMemoryStorageType = "in-memory"
	RedisStorageType    = "redis"
)

var (
	// ErrNotFound is returned by HGet when the key or field does not exist.
	ErrNotFound = errors.New("not found")

	// ErrTxFailed is returned by Commit when a watched key changed after Watch began.
	ErrTxFailed = errors.New("transaction failed: watched key changed")
)

// Reader holds the read operations available both on the store and inside a transaction.
type Reader interface {
	Exists(ctx context.Context, key string) (bool, error)
	HGet(ctx context.Context, key, field string) (string, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	SIsMember(ctx context.Context, key, member string) (bool, error)
	SMembers(ctx context.Context, key string) ([]string, error)
	SCard(ctx context.Context, key string) (int64, error)
}

// Writer holds the mutating operations. Inside a transaction they are queued until commit.
type Writer interface {
	HSet(ctx context.Context, key string, values map[string]string) error
	SAdd(ctx context.Context, key string, members ...string) error
	SRem(ctx context.Context, key string, members ...string) error
	Del(ctx context.Context, keys ...string) error
}

// Tx is an optimistic transaction started by Store.Watch.
type Tx interface {
	Reader

	// Commit runs fn to queue writes and applies them atomically. It returns ErrTxFailed,
	// applying nothing, if any watched key was modified since Watch began.
	Commit(ctx context.Context, fn func(w Writer) error) error
}

// Store is the shared key-value store holding rooms and users.
type Store interface {
	Reader
	Writer

	// Watch watches keys and runs fn with a transaction bound to them.
	// Conflicts are never retried: ErrTxFailed is returned to the caller.
	Watch(ctx context.Context, fn func(tx Tx) error, keys ...string) error

	Close() error
}
