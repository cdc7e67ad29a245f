package rest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/Icerzack/wordlobby/internal/auth"
	"github.com/Icerzack/wordlobby/internal/broadcast"
	"github.com/Icerzack/wordlobby/internal/rest/ws"
	"github.com/Icerzack/wordlobby/internal/room"
	"github.com/Icerzack/wordlobby/internal/storage"
	"github.com/Icerzack/wordlobby/internal/storage/inmemory"
	"github.com/Icerzack/wordlobby/internal/storage/redis"
)

const readHeaderTimeout = 10 * time.Second

type Rest struct {
	config *Config

	store    storage.Store
	registry *broadcast.Registry
	tokens   *auth.Tokens
	rooms    *room.Service

	server *http.Server
}

// NewRest wires the store, the broadcast registry and the room service.
func NewRest(ctx context.Context, config *Config) (*Rest, error) {
	tokens, err := auth.NewTokens(config.Token)
	if err != nil {
		return nil, fmt.Errorf("error configuring tokens: %w", err)
	}
	store, err := defineStorage(ctx, config)
	if err != nil {
		return nil, err
	}

	registry := broadcast.NewRegistry(config.Logger)
	rooms := room.NewService(room.Config{
		Store:  store,
		Events: registry,
		Tokens: tokens,
		Logger: config.Logger,
	})

	rest := &Rest{
		config:   config,
		store:    store,
		registry: registry,
		tokens:   tokens,
		rooms:    rooms,
	}
	rest.server = &http.Server{
		Addr:              ":" + strconv.Itoa(config.Port),
		Handler:           rest.Router(),
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return rest, nil
}

// Router returns the HTTP handler of the lobby API.
func (rest *Rest) Router() http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)

	// Define the /ping endpoint
	router.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		_, err := w.Write([]byte("pong"))
		if err != nil {
			return
		}
	})

	router.Group(func(r chi.Router) {
		r.Use(rest.logRequests)
		r.Post("/room", rest.createRoom)
		r.Post("/user/{roomID}", rest.joinRoom)

		r.Group(func(r chi.Router) {
			r.Use(rest.bearerAuth)
			r.Get("/room/{roomID}", rest.getRoom)
			r.Patch("/room/{roomID}", rest.updateRoom)
		})
	})

	// Define the /room-ws endpoint
	wsServer := ws.NewWebSocketHandler(rest.rooms, rest.registry, rest.tokens, rest.config.Logger)
	router.Get("/room-ws/{roomID}", wsServer.Handle)

	return router
}

func (rest *Rest) Start() error {
	rest.config.Logger.Info("Listening", zap.String("addr", rest.server.Addr))
	if err := rest.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		rest.config.Logger.Error("server error", zap.Error(err))
		return err
	}
	return nil
}

// Stop shuts the server down and closes the store. Hijacked WebSocket connections
// are not tracked by the server and end with the process.
func (rest *Rest) Stop(ctx context.Context) error {
	err := rest.server.Shutdown(ctx)
	if err != nil {
		rest.config.Logger.Error("server error", zap.Error(err))
	}
	return errors.Join(err, rest.store.Close())
}

func defineStorage(ctx context.Context, config *Config) (storage.Store, error) {
	switch config.StorageType {
	case storage.RedisStorageType:
		config.Logger.Info("Using redis storage", zap.String("address", config.Redis.Address))
		store, err := redis.NewStorage(ctx, config.Redis, config.Logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	case storage.InMemoryStorageType:
		config.Logger.Info("Using in-memory storage")
		return inmemory.NewStorage(config.Logger), nil
	default:
		config.Logger.Info("Using in-memory storage")
		return inmemory.NewStorage(config.Logger), nil
	}
}
