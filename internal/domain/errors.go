package domain

import "errors"

var (
	ErrChannelNotFound = errors.New("channel not found")
	ErrChannelDisabled = errors.New("channel is disabled")
	ErrAlreadyLive     = errors.New("channel already has a live session")
	ErrNoActiveSession = errors.New("no active session")
	ErrRoomNotFound    = errors.New("room not found")

	// ErrRoomProvider wraps failures of the external room provider.
	ErrRoomProvider = errors.New("room provider error")

	// ErrOrphanedRoom is returned when a room was created at the provider, the
	// session commit failed, and the compensating deletion failed too. The
	// room leaks until the sweeper or an operator reconciles it.
	ErrOrphanedRoom = errors.New("orphaned room")
)
