package signal

import (
	"net/http"
	"time"

	"huddle/internal/core/domain"
	"huddle/internal/core/ports"
	"huddle/internal/infrastructure/distributed"
	"huddle/internal/infrastructure/monitoring"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Should be configured properly for production
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Options tunes per-connection transport behavior.
type Options struct {
	PingInterval    time.Duration
	PongTimeout     time.Duration
	WriteTimeout    time.Duration
	MaxMessageBytes int64
	SendBuffer      int

	// Zero rate disables inbound message limiting.
	MessagesPerSecond float64
	Burst             int
}

// WebSocketServer accepts signaling connections, registers them, and feeds
// every inbound unit through the router.
type WebSocketServer struct {
	clients  ports.ClientRegistry
	rooms    ports.RoomDirectory
	recorder ports.RecordingService

	opts    Options
	events  *distributed.EventBus // optional
	metrics *monitoring.Collector // optional
	logger  *zap.SugaredLogger
}

func NewWebSocketServer(
	clients ports.ClientRegistry,
	rooms ports.RoomDirectory,
	recorder ports.RecordingService,
	opts Options,
	events *distributed.EventBus,
	metrics *monitoring.Collector,
	logger *zap.SugaredLogger,
) *WebSocketServer {
	return &WebSocketServer{
		clients:  clients,
		rooms:    rooms,
		recorder: recorder,
		opts:     opts,
		events:   events,
		metrics:  metrics,
		logger:   logger,
	}
}

// HandleWebSocket upgrades the request and runs the connection's read loop
// until disconnect. An identity placed in the gin context by the optional
// auth middleware is attached before the first message is processed.
func (s *WebSocketServer) HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}

	ws := newWSConn(conn, s.opts.SendBuffer, s.opts.WriteTimeout, s.opts.PingInterval)
	clientID := s.clients.Register(ws)

	if v, ok := c.Get("identity"); ok {
		if identity, ok := v.(domain.Identity); ok {
			s.clients.AttachIdentity(clientID, identity)
			s.logger.Infow("identity attached",
				"client_id", clientID, "user_id", identity.UserID, "role", identity.Role)
		}
	}

	if s.metrics != nil {
		s.metrics.RecordClientConnected()
	}

	go ws.writePump()

	if s.opts.MaxMessageBytes > 0 {
		conn.SetReadLimit(s.opts.MaxMessageBytes)
	}
	conn.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))
		return nil
	})

	// Offered on connect: the client's own id, then the current room list.
	s.send(clientID, &Envelope{Type: MsgConnected, ClientID: string(clientID)})
	s.sendActiveRooms(clientID)

	var limiter *rate.Limiter
	if s.opts.MessagesPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(s.opts.MessagesPerSecond), s.opts.Burst)
	}

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.logger.Infow("read error", "client_id", clientID, "error", err)
			}
			break
		}
		conn.SetReadDeadline(time.Now().Add(s.opts.PongTimeout))

		if limiter != nil && !limiter.Allow() {
			s.logger.Warnw("message rate exceeded, dropping", "client_id", clientID)
			continue
		}

		s.handleInbound(clientID, data, msgType == websocket.BinaryMessage)
	}

	s.handleDisconnect(clientID)
	ws.Close()
}

// handleDisconnect runs the fixed cleanup sequence: leave the current room,
// close the client's recording session, deregister.
func (s *WebSocketServer) handleDisconnect(clientID domain.ClientID) {
	s.leaveCurrentRoom(clientID)
	s.clients.Remove(clientID)
	if s.metrics != nil {
		s.metrics.RecordClientDisconnected()
	}
}

// Shutdown notifies every room member that the server is going away.
func (s *WebSocketServer) Shutdown() {
	for _, info := range s.rooms.ListActiveRooms() {
		s.broadcastToRoom(info.RoomID, &Envelope{
			Type:   MsgRoomEnded,
			RoomID: string(info.RoomID),
		}, "")
	}
}
