package memory

import (
	"sync"

	"huddle/internal/core/domain"
	"huddle/internal/core/ports"
	"huddle/pkg/utils"

	"go.uber.org/zap"
)

type clientEntry struct {
	sender   ports.Sender
	roomID   domain.RoomID
	identity domain.Identity
}

// ClientRegistry owns the set of live connections and their delivery handles.
type ClientRegistry struct {
	clients map[domain.ClientID]*clientEntry
	mu      sync.RWMutex

	logger *zap.SugaredLogger
}

func NewClientRegistry(logger *zap.SugaredLogger) *ClientRegistry {
	return &ClientRegistry{
		clients: make(map[domain.ClientID]*clientEntry),
		logger:  logger,
	}
}

func (r *ClientRegistry) Register(sender ports.Sender) domain.ClientID {
	id := domain.ClientID(utils.GenerateClientID())

	r.mu.Lock()
	r.clients[id] = &clientEntry{sender: sender}
	r.mu.Unlock()

	r.logger.Infow("client connected", "client_id", id)
	return id
}

func (r *ClientRegistry) Remove(id domain.ClientID) {
	r.mu.Lock()
	_, existed := r.clients[id]
	delete(r.clients, id)
	r.mu.Unlock()

	if existed {
		r.logger.Infow("client disconnected", "client_id", id)
	}
}

func (r *ClientRegistry) Deliver(id domain.ClientID, message []byte) bool {
	r.mu.RLock()
	entry, exists := r.clients[id]
	r.mu.RUnlock()

	if !exists {
		return false
	}
	return entry.sender.TrySend(message)
}

func (r *ClientRegistry) BroadcastLobby(message []byte) {
	r.mu.RLock()
	senders := make([]ports.Sender, 0, len(r.clients))
	for _, entry := range r.clients {
		if entry.roomID == "" {
			senders = append(senders, entry.sender)
		}
	}
	r.mu.RUnlock()

	for _, s := range senders {
		s.TrySend(message)
	}
}

func (r *ClientRegistry) AttachIdentity(id domain.ClientID, identity domain.Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, exists := r.clients[id]; exists {
		entry.identity = identity
	}
}

func (r *ClientRegistry) Identity(id domain.ClientID) (domain.Identity, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, exists := r.clients[id]
	if !exists {
		return domain.Identity{}, false
	}
	return entry.identity, true
}

func (r *ClientRegistry) RoomOf(id domain.ClientID) (domain.RoomID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, exists := r.clients[id]
	if !exists || entry.roomID == "" {
		return "", false
	}
	return entry.roomID, true
}

func (r *ClientRegistry) SetRoom(id domain.ClientID, roomID domain.RoomID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, exists := r.clients[id]; exists {
		entry.roomID = roomID
	}
}

func (r *ClientRegistry) ClearRoom(id domain.ClientID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, exists := r.clients[id]; exists {
		entry.roomID = ""
	}
}

func (r *ClientRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}
