package core

import "errors"

// Every validation failure maps to one of these and is returned to the caller
// as an error payload; none of them terminates the session or the process.
var (
	ErrRoomNotFound      = errors.New("room not found")
	ErrRoomExists        = errors.New("room already exists")
	ErrNotInRoom         = errors.New("not in a room")
	ErrTransportNotFound = errors.New("transport not found")
	ErrConsumerNotFound  = errors.New("consumer not found")
	ErrRouterNotReady    = errors.New("router not ready")
	ErrRoomClosed        = errors.New("room closed")

	// ErrGatewayFailure wraps a rejection from the media engine, including
	// consume capability mismatches.
	ErrGatewayFailure = errors.New("gateway failure")
)
