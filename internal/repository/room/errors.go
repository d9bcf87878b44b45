package room

import "errors"

var (
	ErrRoomNotFound = errors.New("room not found")
	// ErrVersionConflict signals a stale snapshot write: another writer
	// committed since this snapshot was loaded.
	ErrVersionConflict = errors.New("room version conflict")
)
