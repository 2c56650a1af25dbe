package signal

import (
	"context"
	"encoding/json"
	"strings"

	"huddle/internal/core/domain"
	"huddle/internal/core/ports"
	"huddle/pkg/validation"
)

// handleInbound interprets one inbound unit. Binary frames are audio for the
// recorder; everything else is a structured signaling message. Malformed input
// is logged and dropped; the connection stays open either way.
func (s *WebSocketServer) handleInbound(clientID domain.ClientID, data []byte, isBinary bool) {
	if isBinary {
		roomID, ok := s.clients.RoomOf(clientID)
		if !ok {
			return
		}
		s.recorder.AddChunk(roomID, clientID, data)
		return
	}

	var msg Envelope
	if err := json.Unmarshal(data, &msg); err != nil {
		s.logger.Warnw("failed to parse message", "client_id", clientID, "error", err)
		return
	}

	if s.metrics != nil {
		s.metrics.RecordMessage(msg.Type)
	}

	switch msg.Type {
	case MsgCreateRoom:
		s.handleCreateRoom(clientID)
	case MsgJoinRoom:
		s.handleJoinRoom(clientID, msg.RoomID)
	case MsgLeaveRoom:
		s.handleLeaveRoom(clientID)
	case MsgOffer, MsgAnswer, MsgICECandidate:
		s.handleForward(clientID, &msg)
	case MsgStartRecording:
		s.handleStartRecording(clientID)
	case MsgStopRecording:
		s.handleStopRecording(clientID)
	case MsgGetActiveRooms:
		s.sendActiveRooms(clientID)
	default:
		s.logger.Warnw("unknown message type", "client_id", clientID, "type", msg.Type)
	}
}

func (s *WebSocketServer) handleCreateRoom(clientID domain.ClientID) {
	// Creating while in a room implicitly leaves the old one, so a client's
	// room field always matches exactly one membership set.
	s.leaveCurrentRoom(clientID)

	roomID := s.rooms.CreateRoom(clientID)

	s.send(clientID, &Envelope{
		Type:         MsgRoomCreated,
		RoomID:       string(roomID),
		Participants: []string{string(clientID)},
	})
	s.broadcastActiveRooms()

	if s.metrics != nil {
		s.metrics.RecordRoomCreated()
	}
	if s.events != nil {
		if err := s.events.PublishRoomCreated(context.Background(), roomID, clientID); err != nil {
			s.logger.Warnw("failed to publish room created", "room_id", roomID, "error", err)
		}
	}
}

func (s *WebSocketServer) handleJoinRoom(clientID domain.ClientID, rawRoomID string) {
	code := strings.ToUpper(strings.TrimSpace(rawRoomID))
	if err := validation.ValidateRoomCode(code, domain.RoomCodeLength); err != nil {
		s.send(clientID, &Envelope{Type: MsgError, Message: domain.ErrRoomNotFound.Error()})
		return
	}
	roomID := domain.RoomID(code)

	s.leaveCurrentRoom(clientID)

	existing, err := s.rooms.JoinRoom(clientID, roomID)
	if err != nil {
		s.send(clientID, &Envelope{Type: MsgError, Message: err.Error()})
		return
	}

	// Own acknowledgment first, then the peer notifications it causes.
	s.send(clientID, &Envelope{
		Type:         MsgRoomJoined,
		RoomID:       string(roomID),
		Participants: clientIDs(existing),
	})
	for _, member := range existing {
		s.send(member, &Envelope{Type: MsgPeerJoined, ClientID: string(clientID)})
	}
	s.broadcastActiveRooms()

	if s.events != nil {
		if err := s.events.PublishPeerJoined(context.Background(), roomID, clientID); err != nil {
			s.logger.Warnw("failed to publish peer joined", "room_id", roomID, "error", err)
		}
	}
}

func (s *WebSocketServer) handleLeaveRoom(clientID domain.ClientID) {
	s.leaveCurrentRoom(clientID)
}

// leaveCurrentRoom is the one leave path, shared by the leave-room message,
// disconnects, and implicit leaves before create/join. No-op when the client
// has no room.
func (s *WebSocketServer) leaveCurrentRoom(clientID domain.ClientID) {
	roomID, ok := s.clients.RoomOf(clientID)
	if !ok {
		return
	}

	s.recorder.HandleClientLeft(roomID, clientID)

	_, becameEmpty := s.rooms.LeaveRoom(clientID)
	if becameEmpty {
		files := s.recorder.Stop(context.Background(), roomID)
		if len(files) > 0 {
			s.logger.Infow("recording finalized with room", "room_id", roomID, "files", files)
		}
		if s.metrics != nil {
			s.metrics.RecordRoomEnded()
		}
		if s.events != nil {
			if err := s.events.PublishRoomEnded(context.Background(), roomID); err != nil {
				s.logger.Warnw("failed to publish room ended", "room_id", roomID, "error", err)
			}
		}
	} else {
		s.broadcastToRoom(roomID, &Envelope{
			Type:     MsgPeerLeft,
			ClientID: string(clientID),
		}, clientID)
		if s.events != nil {
			if err := s.events.PublishPeerLeft(context.Background(), roomID, clientID); err != nil {
				s.logger.Warnw("failed to publish peer left", "room_id", roomID, "error", err)
			}
		}
	}

	s.broadcastActiveRooms()
}

// handleForward relays a handshake message. An explicit target gets exactly
// one tagged copy; without a target every other room member gets one. Unknown
// targets are dropped silently: this is a best-effort channel.
func (s *WebSocketServer) handleForward(clientID domain.ClientID, msg *Envelope) {
	roomID, ok := s.clients.RoomOf(clientID)
	if !ok {
		s.logger.Warnw("handshake from client outside a room ignored",
			"client_id", clientID, "type", msg.Type)
		return
	}

	out := &Envelope{
		Type:     msg.Type,
		SenderID: string(clientID),
		Payload:  msg.Payload,
	}

	if msg.TargetClientID != "" {
		s.send(domain.ClientID(msg.TargetClientID), out)
		return
	}
	s.broadcastToRoom(roomID, out, clientID)
}

func (s *WebSocketServer) handleStartRecording(clientID domain.ClientID) {
	roomID, ok := s.clients.RoomOf(clientID)
	if !ok {
		s.send(clientID, &Envelope{Type: MsgError, Message: domain.ErrNotInRoom.Error()})
		return
	}

	if err := s.recorder.Start(roomID, clientID); err != nil {
		s.send(clientID, &Envelope{Type: MsgError, Message: err.Error()})
		return
	}

	s.broadcastToRoom(roomID, &Envelope{
		Type:      MsgRecordingStarted,
		RoomID:    string(roomID),
		StartedBy: string(clientID),
	}, "")

	if s.events != nil {
		if err := s.events.PublishRecordingStarted(context.Background(), roomID, clientID); err != nil {
			s.logger.Warnw("failed to publish recording started", "room_id", roomID, "error", err)
		}
	}
}

func (s *WebSocketServer) handleStopRecording(clientID domain.ClientID) {
	roomID, ok := s.clients.RoomOf(clientID)
	if !ok {
		s.send(clientID, &Envelope{Type: MsgError, Message: domain.ErrNotInRoom.Error()})
		return
	}

	files := s.recorder.Stop(context.Background(), roomID)

	s.broadcastToRoom(roomID, &Envelope{
		Type:      MsgRecordingStopped,
		RoomID:    string(roomID),
		StoppedBy: string(clientID),
		Files:     files,
	}, "")

	if s.events != nil {
		if err := s.events.PublishRecordingStopped(context.Background(), roomID, files); err != nil {
			s.logger.Warnw("failed to publish recording stopped", "room_id", roomID, "error", err)
		}
	}
}

func (s *WebSocketServer) sendActiveRooms(clientID domain.ClientID) {
	s.send(clientID, s.activeRoomsEnvelope())
}

func (s *WebSocketServer) broadcastActiveRooms() {
	message, err := json.Marshal(s.activeRoomsEnvelope())
	if err != nil {
		return
	}
	s.clients.BroadcastLobby(message)
}

func (s *WebSocketServer) activeRoomsEnvelope() *Envelope {
	rooms := s.rooms.ListActiveRooms()
	if rooms == nil {
		rooms = []domain.RoomInfo{}
	}
	return &Envelope{Type: MsgActiveRoomsUpdate, Rooms: rooms}
}

// send marshals and delivers to one client. Delivery failure is expected
// churn, never an error; it is only counted.
func (s *WebSocketServer) send(clientID domain.ClientID, env *Envelope) bool {
	message, err := json.Marshal(env)
	if err != nil {
		s.logger.Errorw("failed to marshal envelope", "type", env.Type, "error", err)
		return false
	}
	if !s.clients.Deliver(clientID, message) {
		if s.metrics != nil {
			s.metrics.RecordDeliveryFailure()
		}
		return false
	}
	return true
}

func (s *WebSocketServer) broadcastToRoom(roomID domain.RoomID, env *Envelope, exclude domain.ClientID) {
	message, err := json.Marshal(env)
	if err != nil {
		s.logger.Errorw("failed to marshal envelope", "type", env.Type, "error", err)
		return
	}
	s.rooms.BroadcastToRoom(roomID, message, exclude)
}

var _ ports.Sender = (*wsConn)(nil)
