package room

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Icerzack/wordlobby/internal/models"
	"github.com/Icerzack/wordlobby/internal/storage"
)

// Join claims name in an Open room. The name check and every write (member name,
// user hash, user set) happen in one transaction watching the room and its members,
// so two joins with the same name can never both commit and no join lands after start.
func (s *Service) Join(ctx context.Context, roomID, name string) (*models.User, string, error) {
	user := &models.User{
		ID:     s.newUserID(),
		RoomID: roomID,
		Name:   name,
	}
	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, "", err
	}

	unlock := s.seq.lock(roomID)
	defer unlock()

	err = s.store.Watch(ctx, func(tx storage.Tx) error {
		state, err := readState(ctx, tx, roomID)
		if err != nil {
			return err
		}
		if state == models.RoomStarted {
			return fmt.Errorf("the game has been started: %w", ErrForbidden)
		}
		taken, err := tx.SIsMember(ctx, membersKey(roomID), name)
		if err != nil {
			return fmt.Errorf("error reading members of room %s: %w", roomID, err)
		}
		if taken {
			return fmt.Errorf("name %q is already used in the room: %w", name, ErrConflict)
		}

		return tx.Commit(ctx, func(w storage.Writer) error {
			if err := w.SAdd(ctx, membersKey(roomID), name); err != nil {
				return err
			}
			if err := w.HSet(ctx, userKey(user.ID), map[string]string{
				fieldUserRoom: roomID,
				fieldUserName: name,
			}); err != nil {
				return err
			}
			return w.SAdd(ctx, usersKey(roomID), user.ID)
		})
	}, roomKey(roomID), membersKey(roomID))
	if err != nil {
		return nil, "", conflictOr(err, "join")
	}

	s.events.Publish(roomID, models.MemberAdded{UserID: user.ID, UserName: name})
	s.logger.Info("User joined", zap.String("roomID", roomID), zap.String("userID", user.ID))
	return user, token, nil
}

// Leave removes a user from an Open room and publishes MemberRemoved. It reports whether
// the user was removed: leaving a started room, or leaving twice, is a no-op.
func (s *Service) Leave(ctx context.Context, roomID, userID string) (bool, error) {
	unlock := s.seq.lock(roomID)
	defer unlock()

	removed := false
	err := s.store.Watch(ctx, func(tx storage.Tx) error {
		state, err := readState(ctx, tx, roomID)
		if err != nil {
			return err
		}
		if state == models.RoomStarted {
			return nil
		}
		user, err := readUser(ctx, tx, userID)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if user.RoomID != roomID {
			return fmt.Errorf("user is not in room %s: %w", roomID, ErrForbidden)
		}

		err = tx.Commit(ctx, func(w storage.Writer) error {
			if err := w.SRem(ctx, membersKey(roomID), user.Name); err != nil {
				return err
			}
			if err := w.SRem(ctx, usersKey(roomID), userID); err != nil {
				return err
			}
			return w.Del(ctx, userKey(userID))
		})
		removed = err == nil
		return err
	}, roomKey(roomID), userKey(userID))
	if err != nil {
		return false, conflictOr(err, "leave")
	}
	if !removed {
		return false, nil
	}

	s.events.Publish(roomID, models.MemberRemoved{UserID: userID})
	s.logger.Info("User left", zap.String("roomID", roomID), zap.String("userID", userID))
	return true, nil
}

func readUser(ctx context.Context, r storage.Reader, userID string) (*models.User, error) {
	fields, err := r.HGetAll(ctx, userKey(userID))
	if err != nil {
		return nil, fmt.Errorf("error reading user: %w", err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	return &models.User{
		ID:     userID,
		RoomID: fields[fieldUserRoom],
		Name:   fields[fieldUserName],
	}, nil
}
