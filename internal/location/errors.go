package location

import "errors"

var (
	// ErrRoomNotFound is returned when a room ID does not exist.
	ErrRoomNotFound = errors.New("room not found")

	// ErrRoomExists is returned when creating a room with an ID that is taken.
	ErrRoomExists = errors.New("room already exists")

	// ErrInvalidRoom is returned when room validation fails.
	ErrInvalidRoom = errors.New("invalid room")
)
