package ports

import (
	"huddle/internal/core/domain"
)

// Sender is the delivery handle for one connection. TrySend must never block:
// it reports false when the transport cannot currently accept data.
type Sender interface {
	TrySend(message []byte) bool
	Close()
}

type ClientRegistry interface {
	// Register stores the handle and returns a fresh opaque client id.
	Register(sender Sender) domain.ClientID
	// Remove drops the handle. Idempotent.
	Remove(id domain.ClientID)
	// Deliver is a best-effort non-blocking send. False means the client is
	// gone or backpressured; callers must not treat that as fatal.
	Deliver(id domain.ClientID, message []byte) bool
	// BroadcastLobby delivers to every registered client not in any room.
	BroadcastLobby(message []byte)

	AttachIdentity(id domain.ClientID, identity domain.Identity)
	Identity(id domain.ClientID) (domain.Identity, bool)

	// RoomOf returns the client's current room, if any.
	RoomOf(id domain.ClientID) (domain.RoomID, bool)
	// SetRoom and ClearRoom mutate the client's room field. They exist for
	// the room directory; nothing else may call them.
	SetRoom(id domain.ClientID, roomID domain.RoomID)
	ClearRoom(id domain.ClientID)

	Count() int
}

type RoomDirectory interface {
	// CreateRoom makes a room containing only the creator and returns its code.
	CreateRoom(creatorID domain.ClientID) domain.RoomID
	// JoinRoom returns the membership as it existed before this join, or
	// domain.ErrRoomNotFound.
	JoinRoom(id domain.ClientID, roomID domain.RoomID) ([]domain.ClientID, error)
	// LeaveRoom removes the client from its current room. becameEmpty reports
	// whether the room was deleted because its membership emptied.
	LeaveRoom(id domain.ClientID) (roomID domain.RoomID, becameEmpty bool)
	Members(roomID domain.RoomID) []domain.ClientID
	RoomExists(roomID domain.RoomID) bool
	// BroadcastToRoom delivers to every member except exclude. No-op for an
	// unknown room.
	BroadcastToRoom(roomID domain.RoomID, message []byte, exclude domain.ClientID)
	ListActiveRooms() []domain.RoomInfo
}
