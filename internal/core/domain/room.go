package domain

// RoomID is a short human-shareable room code, upper-case alphanumeric.
type RoomID string

// RoomCodeLength is the fixed length of generated room codes.
const RoomCodeLength = 6

type RoomInfo struct {
	RoomID           RoomID `json:"roomId"`
	ParticipantCount int    `json:"participantCount"`
}
