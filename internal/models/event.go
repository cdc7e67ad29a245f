package models

// Event is a room lifecycle notification fanned out to every observer of a room.
// The set of events is closed: only types in this package implement it.
type Event interface {
	isEvent()
}

// MemberAdded is published after a join commits.
type MemberAdded struct {
	UserID   string
	UserName string
}

// MemberRemoved is published after a pre-start leave commits.
type MemberRemoved struct {
	UserID string
}

// ConfigUpdated is published after a config edit commits.
type ConfigUpdated struct {
	Config GameConfig
}

// GameStarted is published once, when the Open to Started transition commits.
type GameStarted struct {
	// FirstTurn is the user holding the first turn
	FirstTurn string
}

func (MemberAdded) isEvent()   {}
func (MemberRemoved) isEvent() {}
func (ConfigUpdated) isEvent() {}
func (GameStarted) isEvent()   {}
