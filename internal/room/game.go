package room

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/Icerzack/wordlobby/internal/models"
	"github.com/Icerzack/wordlobby/internal/storage"
)

// Start moves an Open room to Started, initialises every user's game state and hands the
// first turn to a random user. It reports whether this call performed the transition;
// starting an already started room is a no-op.
func (s *Service) Start(ctx context.Context, roomID string) (bool, error) {
	unlock := s.seq.lock(roomID)
	defer unlock()

	var (
		started bool
		first   string
	)
	err := s.store.Watch(ctx, func(tx storage.Tx) error {
		state, err := readState(ctx, tx, roomID)
		if err != nil {
			return err
		}
		if state == models.RoomStarted {
			return nil
		}
		config, err := readConfig(ctx, tx, roomID)
		if err != nil {
			return err
		}
		users, err := tx.SMembers(ctx, usersKey(roomID))
		if err != nil {
			return fmt.Errorf("error reading users of room %s: %w", roomID, err)
		}
		rand.Shuffle(len(users), func(i, j int) { users[i], users[j] = users[j], users[i] })
		since := s.now().UTC().Format(time.RFC3339)

		err = tx.Commit(ctx, func(w storage.Writer) error {
			fields := map[string]string{fieldState: models.RoomStarted.Encode()}
			if len(users) > 0 {
				fields[fieldTurn] = users[0]
			}
			if err := w.HSet(ctx, roomKey(roomID), fields); err != nil {
				return err
			}
			for i, u := range users {
				if err := w.HSet(ctx, userKey(u), map[string]string{
					fieldUserState: "0",
					fieldUserTime:  strconv.Itoa(config.InitTime),
					fieldUserSince: since,
					fieldUserOrder: strconv.Itoa(i),
				}); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
		started = true
		if len(users) > 0 {
			first = users[0]
		}
		return nil
	}, roomKey(roomID), usersKey(roomID))
	if err != nil {
		return false, conflictOr(err, "start")
	}
	if !started {
		return false, nil
	}

	s.events.Publish(roomID, models.GameStarted{FirstTurn: first})
	s.logger.Info("Game started", zap.String("roomID", roomID), zap.String("firstTurn", first))
	return true, nil
}

// Turn returns the user holding the current turn of a started room.
func (s *Service) Turn(ctx context.Context, roomID string) (string, error) {
	if !isRoomID(roomID) {
		return "", fmt.Errorf("room %s: %w", roomID, ErrNotFound)
	}
	turn, err := s.store.HGet(ctx, roomKey(roomID), fieldTurn)
	if err != nil {
		return "", fmt.Errorf("room %s has no turn: %w", roomID, ErrNotFound)
	}
	return turn, nil
}

// GameState returns the per-user state initialised by Start.
func (s *Service) GameState(ctx context.Context, userID string) (*models.PersonalGameState, error) {
	fields, err := s.store.HGetAll(ctx, userKey(userID))
	if err != nil {
		return nil, fmt.Errorf("error reading user: %w", err)
	}
	if _, ok := fields[fieldUserTime]; !ok {
		return nil, fmt.Errorf("user %s has no game state: %w", userID, ErrNotFound)
	}

	var gs models.PersonalGameState
	if gs.RemainTime, err = strconv.Atoi(fields[fieldUserTime]); err != nil {
		return nil, fmt.Errorf("invalid time of user %s: %w", userID, err)
	}
	if gs.Order, err = strconv.Atoi(fields[fieldUserOrder]); err != nil {
		return nil, fmt.Errorf("invalid order of user %s: %w", userID, err)
	}
	if gs.UsedCharFlag, err = strconv.ParseUint(fields[fieldUserState], 10, 64); err != nil {
		return nil, fmt.Errorf("invalid state of user %s: %w", userID, err)
	}
	if gs.Since, err = time.Parse(time.RFC3339, fields[fieldUserSince]); err != nil {
		return nil, fmt.Errorf("invalid since of user %s: %w", userID, err)
	}
	return &gs, nil
}
