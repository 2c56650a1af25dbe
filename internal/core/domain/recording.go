package domain

import "time"

// RecordingInfo is a point-in-time snapshot of a room's recording state.
type RecordingInfo struct {
	RoomID       RoomID        `json:"roomId"`
	Active       bool          `json:"active"`
	StartedBy    ClientID      `json:"startedBy"`
	StartedAt    time.Time     `json:"startedAt"`
	Duration     time.Duration `json:"duration"`
	Participants int           `json:"participants"`
}
