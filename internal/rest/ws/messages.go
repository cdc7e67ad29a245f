package ws

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Icerzack/wordlobby/internal/models"
)

var ErrInvalidMessage = errors.New("invalid message")

const (
	OpStart        = "start"
	OpAddMember    = "add_member"
	OpDeleteMember = "delete_member"
	OpConfig       = "config"
	OpError        = "error"
)

type Message struct {
	Op string `json:"op"`
}

type MessageAddMember struct {
	Message
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
}

type MessageDeleteMember struct {
	Message
	UserID string `json:"user_id"`
}

type MessageConfig struct {
	Message
	Config models.GameConfig `json:"config"`
}

type MessageStart struct {
	Message
}

// MessageError is sent only to the client whose request failed.
type MessageError struct {
	Message
	Detail string `json:"detail"`
}

// encodeEvent renders a room event in its wire form.
func encodeEvent(event models.Event) ([]byte, error) {
	var msg interface{}
	switch ev := event.(type) {
	case models.MemberAdded:
		msg = MessageAddMember{Message: Message{Op: OpAddMember}, UserID: ev.UserID, UserName: ev.UserName}
	case models.MemberRemoved:
		msg = MessageDeleteMember{Message: Message{Op: OpDeleteMember}, UserID: ev.UserID}
	case models.ConfigUpdated:
		msg = MessageConfig{Message: Message{Op: OpConfig}, Config: ev.Config}
	case models.GameStarted:
		msg = MessageStart{Message: Message{Op: OpStart}}
	default:
		return nil, fmt.Errorf("unknown event %T: %w", event, ErrInvalidMessage)
	}
	return json.Marshal(msg)
}

// messageDefiner extracts the op of an inbound message.
func messageDefiner(msg []byte) (string, error) {
	var message Message
	if err := json.Unmarshal(msg, &message); err != nil {
		return "", fmt.Errorf("error unmarshaling message: %w", ErrInvalidMessage)
	}
	if message.Op == "" {
		return "", fmt.Errorf("missing op: %w", ErrInvalidMessage)
	}
	return message.Op, nil
}

func encodeError(detail string) ([]byte, error) {
	return json.Marshal(MessageError{Message: Message{Op: OpError}, Detail: detail})
}
