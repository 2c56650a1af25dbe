package signal

import (
	"encoding/json"

	"huddle/internal/core/domain"
)

// Inbound message kinds.
const (
	MsgCreateRoom     = "create-room"
	MsgJoinRoom       = "join-room"
	MsgLeaveRoom      = "leave-room"
	MsgOffer          = "offer"
	MsgAnswer         = "answer"
	MsgICECandidate   = "ice-candidate"
	MsgStartRecording = "start-recording"
	MsgStopRecording  = "stop-recording"
	MsgGetActiveRooms = "get-active-rooms"
)

// Outbound-only message kinds.
const (
	MsgConnected         = "connected"
	MsgRoomCreated       = "room-created"
	MsgRoomJoined        = "room-joined"
	MsgPeerJoined        = "peer-joined"
	MsgPeerLeft          = "peer-left"
	MsgRoomEnded         = "room-ended"
	MsgRecordingStarted  = "recording-started"
	MsgRecordingStopped  = "recording-stopped"
	MsgActiveRoomsUpdate = "active-rooms-update"
	MsgError             = "error"
)

// Envelope is the one structured message shape used in both directions. The
// payload is opaque handshake data: the server forwards it, never reads it.
type Envelope struct {
	Type           string            `json:"type"`
	RoomID         string            `json:"roomId,omitempty"`
	TargetClientID string            `json:"targetClientId,omitempty"`
	SenderID       string            `json:"senderId,omitempty"`
	ClientID       string            `json:"clientId,omitempty"`
	Participants   []string          `json:"participants,omitempty"`
	Rooms          []domain.RoomInfo `json:"rooms,omitempty"`
	Files          []string          `json:"files,omitempty"`
	StartedBy      string            `json:"startedBy,omitempty"`
	StoppedBy      string            `json:"stoppedBy,omitempty"`
	Message        string            `json:"message,omitempty"`
	Payload        json.RawMessage   `json:"payload,omitempty"`
}

func clientIDs(ids []domain.ClientID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, string(id))
	}
	return out
}
