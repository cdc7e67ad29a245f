package rest

import (
	"go.uber.org/zap"

	"github.com/Icerzack/wordlobby/internal/auth"
	"github.com/Icerzack/wordlobby/internal/storage/redis"
)

type Config struct {
	// Port is the port where the server will listen
	Port int

	// Token holds the signing settings of the bearer tokens handed to joining users
	Token auth.Config

	// StorageType selects the shared room store, see storage.InMemoryStorageType
	StorageType string

	// Redis is used when StorageType is storage.RedisStorageType
	Redis redis.Config

	Logger *zap.Logger
}
