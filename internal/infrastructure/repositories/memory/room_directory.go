package memory

import (
	"sync"

	"huddle/internal/core/domain"
	"huddle/internal/core/ports"
	"huddle/pkg/utils"

	"go.uber.org/zap"
)

type room struct {
	id      domain.RoomID
	creator domain.ClientID
	members map[domain.ClientID]struct{}
}

// RoomDirectory owns the room-code to room mapping and all membership state.
// A room exists here iff its membership set is non-empty: leaving members
// dissolve the room when the last one goes.
type RoomDirectory struct {
	rooms map[domain.RoomID]*room
	mu    sync.RWMutex

	clients ports.ClientRegistry
	logger  *zap.SugaredLogger
}

func NewRoomDirectory(clients ports.ClientRegistry, logger *zap.SugaredLogger) *RoomDirectory {
	return &RoomDirectory{
		rooms:   make(map[domain.RoomID]*room),
		clients: clients,
		logger:  logger,
	}
}

func (d *RoomDirectory) CreateRoom(creatorID domain.ClientID) domain.RoomID {
	d.mu.Lock()

	var code domain.RoomID
	for {
		code = domain.RoomID(utils.GenerateRoomCode(domain.RoomCodeLength))
		if _, taken := d.rooms[code]; !taken {
			break
		}
	}

	d.rooms[code] = &room{
		id:      code,
		creator: creatorID,
		members: map[domain.ClientID]struct{}{creatorID: {}},
	}
	d.mu.Unlock()

	d.clients.SetRoom(creatorID, code)

	d.logger.Infow("room created", "room_id", code, "creator", creatorID)
	return code
}

func (d *RoomDirectory) JoinRoom(id domain.ClientID, roomID domain.RoomID) ([]domain.ClientID, error) {
	d.mu.Lock()

	rm, exists := d.rooms[roomID]
	if !exists {
		d.mu.Unlock()
		return nil, domain.ErrRoomNotFound
	}

	existing := make([]domain.ClientID, 0, len(rm.members))
	for member := range rm.members {
		existing = append(existing, member)
	}
	rm.members[id] = struct{}{}
	size := len(rm.members)
	d.mu.Unlock()

	d.clients.SetRoom(id, roomID)

	d.logger.Infow("client joined room", "room_id", roomID, "client_id", id, "participants", size)
	return existing, nil
}

func (d *RoomDirectory) LeaveRoom(id domain.ClientID) (domain.RoomID, bool) {
	roomID, ok := d.clients.RoomOf(id)
	if !ok {
		return "", false
	}

	d.mu.Lock()
	rm, exists := d.rooms[roomID]
	if !exists {
		d.mu.Unlock()
		d.clients.ClearRoom(id)
		d.logger.Errorw("client referenced a room absent from the directory",
			"room_id", roomID, "client_id", id)
		return "", false
	}

	delete(rm.members, id)
	becameEmpty := len(rm.members) == 0
	if becameEmpty {
		delete(d.rooms, roomID)
	}
	d.mu.Unlock()

	d.clients.ClearRoom(id)

	if becameEmpty {
		d.logger.Infow("room dissolved", "room_id", roomID)
	} else {
		d.logger.Infow("client left room", "room_id", roomID, "client_id", id)
	}
	return roomID, becameEmpty
}

func (d *RoomDirectory) Members(roomID domain.RoomID) []domain.ClientID {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rm, exists := d.rooms[roomID]
	if !exists {
		return nil
	}

	members := make([]domain.ClientID, 0, len(rm.members))
	for member := range rm.members {
		members = append(members, member)
	}
	return members
}

func (d *RoomDirectory) RoomExists(roomID domain.RoomID) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	_, exists := d.rooms[roomID]
	return exists
}

func (d *RoomDirectory) BroadcastToRoom(roomID domain.RoomID, message []byte, exclude domain.ClientID) {
	for _, member := range d.Members(roomID) {
		if member == exclude {
			continue
		}
		d.clients.Deliver(member, message)
	}
}

func (d *RoomDirectory) ListActiveRooms() []domain.RoomInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()

	infos := make([]domain.RoomInfo, 0, len(d.rooms))
	for id, rm := range d.rooms {
		infos = append(infos, domain.RoomInfo{
			RoomID:           id,
			ParticipantCount: len(rm.members),
		})
	}
	return infos
}
