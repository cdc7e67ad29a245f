package room

import "strings"

// Store layout, per room id R and user id U:
//
//	hash R          state (0/1), config (JSON GameConfig), turn (user id, after start)
//	set  R:members  display names
//	set  R:users    user ids
//	hash U          id (room id), name, and after start: state, time, since, order
const (
	fieldState  = "state"
	fieldConfig = "config"
	fieldTurn   = "turn"

	fieldUserRoom  = "id"
	fieldUserName  = "name"
	fieldUserState = "state"
	fieldUserTime  = "time"
	fieldUserSince = "since"
	fieldUserOrder = "order"
)

// Room ids share the key space with user ids, so only ids of the generated shape address a room.
const (
	roomIDLength = 6
	roomIDChars  = "123456789"
)

func isRoomID(id string) bool {
	if len(id) != roomIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		if strings.IndexByte(roomIDChars, id[i]) < 0 {
			return false
		}
	}
	return true
}

func roomKey(roomID string) string {
	return roomID
}

func membersKey(roomID string) string {
	return roomID + ":members"
}

func usersKey(roomID string) string {
	return roomID + ":users"
}

func userKey(userID string) string {
	return userID
}
