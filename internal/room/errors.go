// internal/room/errors.go
package room

import "errors"

var (
	// ErrRoomNotFound is returned when neither a room ID nor an access code
	// resolves to a live room.
	ErrRoomNotFound = errors.New("room: not found")

	// ErrInvalidAccessCode is returned for lookups by a code that is
	// malformed or not currently issued.
	ErrInvalidAccessCode = errors.New("room: invalid access code")

	// ErrGameInProgress rejects joins and session starts while a session is
	// already running in the room.
	ErrGameInProgress = errors.New("room: game already in progress")

	// ErrNotHost rejects host-only operations from non-host members.
	ErrNotHost = errors.New("room: requires host privilege")

	// ErrNotMember rejects operations from users not present in the room.
	ErrNotMember = errors.New("room: user is not a member")

	// ErrNoSession rejects game operations while the room has no running
	// session.
	ErrNoSession = errors.New("room: no game in progress")
)
