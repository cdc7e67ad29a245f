package models

import "time"

// User is a struct that represents a joined participant.
type User struct {
	// ID is the unique identifier of the user.
	ID string

	// RoomID is the unique identifier of the room that the user belongs to.
	RoomID string

	// Name is the display name claimed by the user in the room.
	Name string
}

// PersonalGameState is the per-user state initialised when a game starts.
type PersonalGameState struct {
	// RemainTime is the remaining time budget in seconds
	RemainTime int

	// Order is the position of the user in the turn order, starting at 0
	Order int

	// UsedCharFlag is a 45-bit mask with one bit per syllable group
	UsedCharFlag uint64

	// Since is when the current budget started being counted
	Since time.Time
}
