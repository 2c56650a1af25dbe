package ports

import (
	"context"

	"huddle/internal/core/domain"
)

type RecordingService interface {
	// Start flags the room as recording. domain.ErrAlreadyRecording on a
	// duplicate start.
	Start(roomID domain.RoomID, initiatorID domain.ClientID) error
	// AddChunk appends audio bytes to the client's sink, opening it lazily on
	// the first chunk. False when the room has no active recording.
	AddChunk(roomID domain.RoomID, clientID domain.ClientID, chunk []byte) bool
	// Stop closes every open sink and returns one file name per session that
	// received at least one chunk. Empty when no recording was active.
	Stop(ctx context.Context, roomID domain.RoomID) []string
	// HandleClientLeft closes only that client's session; the room's recording
	// flag is untouched.
	HandleClientLeft(roomID domain.RoomID, clientID domain.ClientID)
	IsRecording(roomID domain.RoomID) bool
	RecordingInfo(roomID domain.RoomID) (domain.RecordingInfo, bool)
}

// Mixer combines per-participant tracks into one mixed artifact.
type Mixer interface {
	// Merge returns the merged file name, or an error when no merge was
	// produced. Inputs are file names relative to the room's directory.
	Merge(ctx context.Context, roomID domain.RoomID, inputs []string) (string, error)
}
