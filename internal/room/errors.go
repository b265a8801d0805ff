package room

import "errors"

var (
	// ErrRoomFull is returned when admitting one more member would exceed the
	// room's capacity. The room is left untouched.
	ErrRoomFull = errors.New("room full")

	// ErrTooManyRooms is returned when creating one more room would exceed the
	// process-wide room cap.
	ErrTooManyRooms = errors.New("too many rooms")

	// ErrRegistryClosed is returned for any mutation after Close. Admission
	// stops during shutdown; draining connections observe their own closure.
	ErrRegistryClosed = errors.New("registry closed")
)
