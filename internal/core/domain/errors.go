package domain

import "errors"

var (
	ErrRoomNotFound      = errors.New("room not found")
	ErrClientNotFound    = errors.New("client not found")
	ErrNotInRoom         = errors.New("not in a room")
	ErrAlreadyRecording  = errors.New("recording already in progress for this room")
	ErrNoActiveRecording = errors.New("no active recording")
	ErrMergeFailed       = errors.New("merge failed")
)
