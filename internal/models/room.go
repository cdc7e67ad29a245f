package models

import "strconv"

// RoomState is the lifecycle state of a room as persisted in the store.
type RoomState int

const (
	// RoomOpen accepts joins and config edits.
	RoomOpen RoomState = iota
	// RoomStarted is terminal: the game is running and membership is frozen.
	RoomStarted
)

func (s RoomState) String() string {
	switch s {
	case RoomOpen:
		return "open"
	case RoomStarted:
		return "started"
	default:
		return "unknown(" + strconv.Itoa(int(s)) + ")"
	}
}

// ParseRoomState decodes the persisted "state" field ("0" or "1").
func ParseRoomState(raw string) (RoomState, error) {
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	s := RoomState(v)
	if s != RoomOpen && s != RoomStarted {
		return 0, strconv.ErrRange
	}
	return s, nil
}

// Encode returns the persisted form of the state.
func (s RoomState) Encode() string {
	return strconv.Itoa(int(s))
}

// DefaultInitTime is the default per-player time budget in seconds.
const DefaultInitTime = 300

// GameConfig holds the shared settings players can edit before the game starts.
type GameConfig struct {
	// InitTime is the initial time budget of every player, in seconds
	InitTime int `json:"init_time"`
}

// DefaultGameConfig returns the configuration of a freshly created room.
func DefaultGameConfig() GameConfig {
	return GameConfig{
		InitTime: DefaultInitTime,
	}
}

// Lobby is the view of a room returned to its members.
type Lobby struct {
	Members    []string   `json:"members"`
	GameConfig GameConfig `json:"game_config"`
}
