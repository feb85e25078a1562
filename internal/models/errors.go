// internal/models/errors.go
package models

import "errors"

// Sentinel errors shared across the registry and HTTP layer. Handlers map
// these onto response codes with errors.Is; everything else is a 500.
var (
	ErrRoomNotFound    = errors.New("room not found")
	ErrRoomFull        = errors.New("room is full")
	ErrSelfJoin        = errors.New("host cannot join their own room as opponent")
	ErrGameInProgress  = errors.New("game already in progress")
	ErrMissingHost     = errors.New("host name is required")
	ErrMissingUsername = errors.New("username is required")
	ErrInvalidStatus   = errors.New("unknown room status")
)
