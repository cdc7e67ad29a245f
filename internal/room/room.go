package room

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Icerzack/wordlobby/internal/models"
	"github.com/Icerzack/wordlobby/internal/storage"
)

const maxCreateAttempts = 32

// Publisher fans events out to the observers of a room.
type Publisher interface {
	Open(roomID string)
	Publish(roomID string, event models.Event)
}

// TokenIssuer issues the bearer credential handed to a joining user.
type TokenIssuer interface {
	Issue(userID string) (string, error)
}

type Config struct {
	Store  storage.Store
	Events Publisher
	Tokens TokenIssuer
	Logger *zap.Logger

	// Now is the clock used for the "since" field of started games
	Now func() time.Time

	// NewRoomID generates room id candidates
	NewRoomID func() string

	// NewUserID generates user ids
	NewUserID func() string
}

// Service owns room lifecycle transitions and membership. Every mutation is an optimistic
// transaction against the store; a caller-facing operation that loses a race reports
// ErrConflict instead of retrying.
type Service struct {
	store  storage.Store
	events Publisher
	tokens TokenIssuer
	logger *zap.Logger

	now       func() time.Time
	newRoomID func() string
	newUserID func() string

	seq *sequencer
}

func NewService(cfg Config) *Service {
	s := &Service{
		store:     cfg.Store,
		events:    cfg.Events,
		tokens:    cfg.Tokens,
		logger:    cfg.Logger,
		now:       cfg.Now,
		newRoomID: cfg.NewRoomID,
		newUserID: cfg.NewUserID,
		seq:       newSequencer(),
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newRoomID == nil {
		s.newRoomID = generateRandomID
	}
	if s.newUserID == nil {
		s.newUserID = uuid.NewString
	}
	return s
}

// Create allocates a fresh room id in the Open state with the default config.
func (s *Service) Create(ctx context.Context) (string, error) {
	config, err := json.Marshal(models.DefaultGameConfig())
	if err != nil {
		return "", err
	}

	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		roomID := s.newRoomID()
		created := false
		err := s.store.Watch(ctx, func(tx storage.Tx) error {
			exists, err := tx.Exists(ctx, roomKey(roomID))
			if err != nil || exists {
				return err
			}
			err = tx.Commit(ctx, func(w storage.Writer) error {
				// Leftovers of a reaped room must not leak into the new one.
				if err := w.Del(ctx, membersKey(roomID), usersKey(roomID)); err != nil {
					return err
				}
				return w.HSet(ctx, roomKey(roomID), map[string]string{
					fieldState:  models.RoomOpen.Encode(),
					fieldConfig: string(config),
				})
			})
			created = err == nil
			return err
		}, roomKey(roomID))
		if errors.Is(err, storage.ErrTxFailed) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("error creating room: %w", err)
		}
		if !created {
			continue
		}

		s.events.Open(roomID)
		s.logger.Info("Room created", zap.String("roomID", roomID))
		return roomID, nil
	}
	return "", fmt.Errorf("could not allocate a room id after %d attempts", maxCreateAttempts)
}

// CheckAuth reports whether userID is bound to roomID.
func (s *Service) CheckAuth(ctx context.Context, roomID, userID string) (bool, error) {
	return checkAuth(ctx, s.store, roomID, userID)
}

// HasStarted reports whether the room left the Open state.
func (s *Service) HasStarted(ctx context.Context, roomID string) (bool, error) {
	state, err := readState(ctx, s.store, roomID)
	if err != nil {
		return false, err
	}
	return state == models.RoomStarted, nil
}

// GetConfig returns the members and config of a room to one of its users.
func (s *Service) GetConfig(ctx context.Context, roomID, userID string) (*models.Lobby, error) {
	if !isRoomID(roomID) {
		return nil, fmt.Errorf("room %s: %w", roomID, ErrNotFound)
	}
	exists, err := s.store.Exists(ctx, roomKey(roomID))
	if err != nil {
		return nil, fmt.Errorf("error reading room %s: %w", roomID, err)
	}
	if !exists {
		return nil, fmt.Errorf("room %s: %w", roomID, ErrNotFound)
	}

	ok, err := s.CheckAuth(ctx, roomID, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("user is not in room %s: %w", roomID, ErrForbidden)
	}

	config, err := readConfig(ctx, s.store, roomID)
	if err != nil {
		return nil, err
	}
	members, err := s.store.SMembers(ctx, membersKey(roomID))
	if err != nil {
		return nil, fmt.Errorf("error reading members of room %s: %w", roomID, err)
	}
	sort.Strings(members)

	return &models.Lobby{Members: members, GameConfig: config}, nil
}

// UpdateConfig overwrites the config of an Open room and publishes ConfigUpdated.
func (s *Service) UpdateConfig(ctx context.Context, roomID, userID string, config models.GameConfig) (models.GameConfig, error) {
	raw, err := json.Marshal(config)
	if err != nil {
		return models.GameConfig{}, err
	}

	unlock := s.seq.lock(roomID)
	defer unlock()

	err = s.store.Watch(ctx, func(tx storage.Tx) error {
		ok, err := checkAuth(ctx, tx, roomID, userID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("user is not in room %s: %w", roomID, ErrForbidden)
		}
		state, err := readState(ctx, tx, roomID)
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("room %s: %w", roomID, ErrForbidden)
		}
		if err != nil {
			return err
		}
		if state == models.RoomStarted {
			return fmt.Errorf("the game has been started: %w", ErrForbidden)
		}

		return tx.Commit(ctx, func(w storage.Writer) error {
			return w.HSet(ctx, roomKey(roomID), map[string]string{fieldConfig: string(raw)})
		})
	}, roomKey(roomID), userKey(userID))
	if err != nil {
		return models.GameConfig{}, conflictOr(err, "update config")
	}

	s.events.Publish(roomID, models.ConfigUpdated{Config: config})
	s.logger.Info("Config updated", zap.String("roomID", roomID), zap.Int("initTime", config.InitTime))
	return config, nil
}

// maxReapAttempts bounds how often Reap re-reads a user set that keeps shrinking under it.
const maxReapAttempts = 8

// Reap deletes every key of the room, including the hashes of its users. It watches the
// user set: when a concurrent commit only removed users (a late Leave), the delete is
// retried against the fresh set; when a user joined in between, Reap fails with
// ErrConflict and leaves the room in place for the newcomer.
func (s *Service) Reap(ctx context.Context, roomID string) error {
	if !isRoomID(roomID) {
		return fmt.Errorf("room %s: %w", roomID, ErrNotFound)
	}

	for attempt := 1; attempt <= maxReapAttempts; attempt++ {
		var seen []string
		err := s.store.Watch(ctx, func(tx storage.Tx) error {
			users, err := tx.SMembers(ctx, usersKey(roomID))
			if err != nil {
				return fmt.Errorf("error reading users of room %s: %w", roomID, err)
			}
			seen = users

			keys := []string{roomKey(roomID), membersKey(roomID), usersKey(roomID)}
			for _, u := range users {
				keys = append(keys, userKey(u))
			}
			return tx.Commit(ctx, func(w storage.Writer) error {
				return w.Del(ctx, keys...)
			})
		}, usersKey(roomID))
		if err == nil {
			return nil
		}
		if !errors.Is(err, storage.ErrTxFailed) {
			return fmt.Errorf("error reaping room %s: %w", roomID, err)
		}

		joined, err := s.joinedSince(ctx, roomID, seen)
		if err != nil {
			return fmt.Errorf("error reaping room %s: %w", roomID, err)
		}
		if joined {
			return fmt.Errorf("error reaping room %s: %w", roomID, conflictOr(storage.ErrTxFailed, "reap"))
		}
		s.logger.Debug("Reap raced with a leave, retrying",
			zap.String("roomID", roomID), zap.Int("attempt", attempt))
	}
	return fmt.Errorf("error reaping room %s: %w", roomID, conflictOr(storage.ErrTxFailed, "reap"))
}

// joinedSince reports whether the user set of the room holds anyone missing from seen.
func (s *Service) joinedSince(ctx context.Context, roomID string, seen []string) (bool, error) {
	users, err := s.store.SMembers(ctx, usersKey(roomID))
	if err != nil {
		return false, fmt.Errorf("error reading users of room %s: %w", roomID, err)
	}

	known := make(map[string]struct{}, len(seen))
	for _, u := range seen {
		known[u] = struct{}{}
	}
	for _, u := range users {
		if _, ok := known[u]; !ok {
			return true, nil
		}
	}
	return false, nil
}

func checkAuth(ctx context.Context, r storage.Reader, roomID, userID string) (bool, error) {
	if !isRoomID(roomID) {
		return false, nil
	}
	bound, err := r.HGet(ctx, userKey(userID), fieldUserRoom)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("error reading user: %w", err)
	}
	return bound == roomID, nil
}

func readState(ctx context.Context, r storage.Reader, roomID string) (models.RoomState, error) {
	if !isRoomID(roomID) {
		return 0, fmt.Errorf("room %s: %w", roomID, ErrNotFound)
	}
	raw, err := r.HGet(ctx, roomKey(roomID), fieldState)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, fmt.Errorf("room %s: %w", roomID, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("error reading room %s: %w", roomID, err)
	}
	state, err := models.ParseRoomState(raw)
	if err != nil {
		return 0, fmt.Errorf("room %s has invalid state %q: %w", roomID, raw, err)
	}
	return state, nil
}

func readConfig(ctx context.Context, r storage.Reader, roomID string) (models.GameConfig, error) {
	raw, err := r.HGet(ctx, roomKey(roomID), fieldConfig)
	if errors.Is(err, storage.ErrNotFound) {
		return models.GameConfig{}, fmt.Errorf("room %s: %w", roomID, ErrNotFound)
	}
	if err != nil {
		return models.GameConfig{}, fmt.Errorf("error reading room %s: %w", roomID, err)
	}
	config := models.DefaultGameConfig()
	if err := json.Unmarshal([]byte(raw), &config); err != nil {
		return models.GameConfig{}, fmt.Errorf("room %s has invalid config: %w", roomID, err)
	}
	return config, nil
}

// conflictOr turns a lost optimistic transaction into ErrConflict.
func conflictOr(err error, op string) error {
	if errors.Is(err, storage.ErrTxFailed) {
		return fmt.Errorf("%s: room changed concurrently, please retry: %w", op, ErrConflict)
	}
	return err
}

// generateRandomID generates a random numeric ID for the room.
func generateRandomID() string {
	b := make([]byte, roomIDLength)
	_, err := rand.Read(b)
	if err != nil {
		panic(err)
	}

	for i := 0; i < roomIDLength; i++ {
		b[i] = roomIDChars[int(b[i])%len(roomIDChars)]
	}

	return string(b)
}
