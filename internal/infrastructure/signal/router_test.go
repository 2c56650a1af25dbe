package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"huddle/internal/core/domain"
	"huddle/internal/infrastructure/repositories/memory"
)

type captureSender struct {
	mu       sync.Mutex
	messages [][]byte
}

func (c *captureSender) TrySend(message []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, message)
	return true
}

func (c *captureSender) Close() {}

func (c *captureSender) envelopes(t *testing.T) []Envelope {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Envelope, 0, len(c.messages))
	for _, raw := range c.messages {
		var env Envelope
		require.NoError(t, json.Unmarshal(raw, &env))
		out = append(out, env)
	}
	return out
}

func (c *captureSender) ofType(t *testing.T, msgType string) []Envelope {
	t.Helper()
	var out []Envelope
	for _, env := range c.envelopes(t) {
		if env.Type == msgType {
			out = append(out, env)
		}
	}
	return out
}

func (c *captureSender) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = nil
}

type stubRecorder struct {
	mu        sync.Mutex
	active    map[domain.RoomID]domain.ClientID
	chunks    map[domain.RoomID]int
	leftCalls []string
	stopFiles []string
}

func newStubRecorder() *stubRecorder {
	return &stubRecorder{
		active: make(map[domain.RoomID]domain.ClientID),
		chunks: make(map[domain.RoomID]int),
	}
}

func (r *stubRecorder) Start(roomID domain.RoomID, initiatorID domain.ClientID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.active[roomID]; exists {
		return domain.ErrAlreadyRecording
	}
	r.active[roomID] = initiatorID
	return nil
}

func (r *stubRecorder) AddChunk(roomID domain.RoomID, clientID domain.ClientID, chunk []byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.active[roomID]; !exists {
		return false
	}
	r.chunks[roomID]++
	return true
}

func (r *stubRecorder) Stop(ctx context.Context, roomID domain.RoomID) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.active[roomID]; !exists {
		return []string{}
	}
	delete(r.active, roomID)
	return r.stopFiles
}

func (r *stubRecorder) HandleClientLeft(roomID domain.RoomID, clientID domain.ClientID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leftCalls = append(r.leftCalls, fmt.Sprintf("%s/%s", roomID, clientID))
}

func (r *stubRecorder) IsRecording(roomID domain.RoomID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, exists := r.active[roomID]
	return exists
}

func (r *stubRecorder) RecordingInfo(roomID domain.RoomID) (domain.RecordingInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	initiator, exists := r.active[roomID]
	if !exists {
		return domain.RecordingInfo{}, false
	}
	return domain.RecordingInfo{RoomID: roomID, Active: true, StartedBy: initiator}, true
}

type routerFixture struct {
	server   *WebSocketServer
	clients  *memory.ClientRegistry
	rooms    *memory.RoomDirectory
	recorder *stubRecorder
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()
	log := zap.NewNop().Sugar()
	clients := memory.NewClientRegistry(log)
	rooms := memory.NewRoomDirectory(clients, log)
	recorder := newStubRecorder()
	server := NewWebSocketServer(clients, rooms, recorder, Options{}, nil, nil, log)
	return &routerFixture{server: server, clients: clients, rooms: rooms, recorder: recorder}
}

func (f *routerFixture) connect(t *testing.T) (domain.ClientID, *captureSender) {
	t.Helper()
	sender := &captureSender{}
	return f.clients.Register(sender), sender
}

func (f *routerFixture) dispatch(t *testing.T, clientID domain.ClientID, env Envelope) {
	t.Helper()
	raw, err := json.Marshal(env)
	require.NoError(t, err)
	f.server.handleInbound(clientID, raw, false)
}

func TestRouter_CreateRoom(t *testing.T) {
	f := newRouterFixture(t)
	id, sender := f.connect(t)

	f.dispatch(t, id, Envelope{Type: MsgCreateRoom})

	created := sender.ofType(t, MsgRoomCreated)
	require.Len(t, created, 1)
	assert.Len(t, created[0].RoomID, domain.RoomCodeLength)
	assert.Equal(t, []string{string(id)}, created[0].Participants)

	room, ok := f.clients.RoomOf(id)
	require.True(t, ok)
	assert.True(t, f.rooms.RoomExists(room))
}

func TestRouter_CreateRoomLeavesPreviousRoom(t *testing.T) {
	f := newRouterFixture(t)
	id, sender := f.connect(t)

	f.dispatch(t, id, Envelope{Type: MsgCreateRoom})
	first := sender.ofType(t, MsgRoomCreated)[0].RoomID

	f.dispatch(t, id, Envelope{Type: MsgCreateRoom})
	created := sender.ofType(t, MsgRoomCreated)
	require.Len(t, created, 2)
	second := created[1].RoomID

	assert.NotEqual(t, first, second)
	assert.False(t, f.rooms.RoomExists(domain.RoomID(first)), "abandoned empty room must dissolve")
	room, _ := f.clients.RoomOf(id)
	assert.Equal(t, domain.RoomID(second), room)
}

func TestRouter_JoinRoomNotifiesPeers(t *testing.T) {
	f := newRouterFixture(t)
	creator, creatorSender := f.connect(t)
	joiner, joinerSender := f.connect(t)

	f.dispatch(t, creator, Envelope{Type: MsgCreateRoom})
	code := creatorSender.ofType(t, MsgRoomCreated)[0].RoomID

	f.dispatch(t, joiner, Envelope{Type: MsgJoinRoom, RoomID: code})

	joined := joinerSender.ofType(t, MsgRoomJoined)
	require.Len(t, joined, 1)
	assert.Equal(t, code, joined[0].RoomID)
	assert.Equal(t, []string{string(creator)}, joined[0].Participants)

	peerJoined := creatorSender.ofType(t, MsgPeerJoined)
	require.Len(t, peerJoined, 1)
	assert.Equal(t, string(joiner), peerJoined[0].ClientID)
}

func TestRouter_JoinRoomNormalizesCode(t *testing.T) {
	f := newRouterFixture(t)
	creator, creatorSender := f.connect(t)
	joiner, joinerSender := f.connect(t)

	f.dispatch(t, creator, Envelope{Type: MsgCreateRoom})
	code := creatorSender.ofType(t, MsgRoomCreated)[0].RoomID

	f.dispatch(t, joiner, Envelope{Type: MsgJoinRoom, RoomID: "  " + strings.ToLower(code) + " "})

	joined := joinerSender.ofType(t, MsgRoomJoined)
	require.Len(t, joined, 1)
	assert.Equal(t, code, joined[0].RoomID)
}

func TestRouter_JoinUnknownRoom(t *testing.T) {
	f := newRouterFixture(t)
	id, sender := f.connect(t)

	f.dispatch(t, id, Envelope{Type: MsgJoinRoom, RoomID: "NOPE99"})

	errs := sender.ofType(t, MsgError)
	require.Len(t, errs, 1)
	assert.Equal(t, domain.ErrRoomNotFound.Error(), errs[0].Message)
	_, inRoom := f.clients.RoomOf(id)
	assert.False(t, inRoom)
}

func TestRouter_LeaveRoomBroadcastsPeerLeft(t *testing.T) {
	f := newRouterFixture(t)
	creator, creatorSender := f.connect(t)
	joiner, _ := f.connect(t)

	f.dispatch(t, creator, Envelope{Type: MsgCreateRoom})
	code := creatorSender.ofType(t, MsgRoomCreated)[0].RoomID
	f.dispatch(t, joiner, Envelope{Type: MsgJoinRoom, RoomID: code})

	f.dispatch(t, joiner, Envelope{Type: MsgLeaveRoom})

	left := creatorSender.ofType(t, MsgPeerLeft)
	require.Len(t, left, 1)
	assert.Equal(t, string(joiner), left[0].ClientID)
	assert.True(t, f.rooms.RoomExists(domain.RoomID(code)))
	_, inRoom := f.clients.RoomOf(joiner)
	assert.False(t, inRoom)
}

func TestRouter_LastLeaveStopsRecording(t *testing.T) {
	f := newRouterFixture(t)
	id, sender := f.connect(t)

	f.dispatch(t, id, Envelope{Type: MsgCreateRoom})
	code := sender.ofType(t, MsgRoomCreated)[0].RoomID
	f.dispatch(t, id, Envelope{Type: MsgStartRecording})
	require.True(t, f.recorder.IsRecording(domain.RoomID(code)))

	f.dispatch(t, id, Envelope{Type: MsgLeaveRoom})

	assert.False(t, f.rooms.RoomExists(domain.RoomID(code)))
	assert.False(t, f.recorder.IsRecording(domain.RoomID(code)))
	assert.Equal(t, []string{fmt.Sprintf("%s/%s", code, id)}, f.recorder.leftCalls,
		"the client's own session must close before the room-level stop")
}

func TestRouter_TargetedForward(t *testing.T) {
	f := newRouterFixture(t)
	caller, callerSender := f.connect(t)
	callee, calleeSender := f.connect(t)
	third, thirdSender := f.connect(t)

	f.dispatch(t, caller, Envelope{Type: MsgCreateRoom})
	code := callerSender.ofType(t, MsgRoomCreated)[0].RoomID
	f.dispatch(t, callee, Envelope{Type: MsgJoinRoom, RoomID: code})
	f.dispatch(t, third, Envelope{Type: MsgJoinRoom, RoomID: code})
	calleeSender.reset()
	thirdSender.reset()

	payload := json.RawMessage(`{"sdp":"v=0"}`)
	f.dispatch(t, caller, Envelope{Type: MsgOffer, TargetClientID: string(callee), Payload: payload})

	offers := calleeSender.ofType(t, MsgOffer)
	require.Len(t, offers, 1)
	assert.Equal(t, string(caller), offers[0].SenderID)
	assert.JSONEq(t, string(payload), string(offers[0].Payload))
	assert.Empty(t, thirdSender.ofType(t, MsgOffer))
}

func TestRouter_BroadcastForwardExcludesSender(t *testing.T) {
	f := newRouterFixture(t)
	caller, callerSender := f.connect(t)
	peerA, aSender := f.connect(t)
	peerB, bSender := f.connect(t)
	_, outsiderSender := f.connect(t)

	f.dispatch(t, caller, Envelope{Type: MsgCreateRoom})
	code := callerSender.ofType(t, MsgRoomCreated)[0].RoomID
	f.dispatch(t, peerA, Envelope{Type: MsgJoinRoom, RoomID: code})
	f.dispatch(t, peerB, Envelope{Type: MsgJoinRoom, RoomID: code})
	callerSender.reset()

	f.dispatch(t, caller, Envelope{Type: MsgICECandidate, Payload: json.RawMessage(`{"candidate":"x"}`)})

	assert.Len(t, aSender.ofType(t, MsgICECandidate), 1)
	assert.Len(t, bSender.ofType(t, MsgICECandidate), 1)
	assert.Empty(t, callerSender.ofType(t, MsgICECandidate))
	assert.Empty(t, outsiderSender.ofType(t, MsgICECandidate))
}

func TestRouter_ForwardToUnknownTargetIsSilent(t *testing.T) {
	f := newRouterFixture(t)
	caller, callerSender := f.connect(t)

	f.dispatch(t, caller, Envelope{Type: MsgCreateRoom})
	callerSender.reset()

	f.dispatch(t, caller, Envelope{Type: MsgAnswer, TargetClientID: "gone"})

	assert.Empty(t, callerSender.ofType(t, MsgError))
}

func TestRouter_ForwardOutsideRoomIgnored(t *testing.T) {
	f := newRouterFixture(t)
	_, memberSender := f.connect(t)
	outsider, _ := f.connect(t)

	f.dispatch(t, outsider, Envelope{Type: MsgOffer, Payload: json.RawMessage(`{}`)})

	assert.Empty(t, memberSender.ofType(t, MsgOffer))
}

func TestRouter_StartRecording(t *testing.T) {
	f := newRouterFixture(t)
	creator, creatorSender := f.connect(t)
	peer, peerSender := f.connect(t)

	f.dispatch(t, creator, Envelope{Type: MsgCreateRoom})
	code := creatorSender.ofType(t, MsgRoomCreated)[0].RoomID
	f.dispatch(t, peer, Envelope{Type: MsgJoinRoom, RoomID: code})

	f.dispatch(t, creator, Envelope{Type: MsgStartRecording})

	for _, s := range []*captureSender{creatorSender, peerSender} {
		started := s.ofType(t, MsgRecordingStarted)
		require.Len(t, started, 1)
		assert.Equal(t, code, started[0].RoomID)
		assert.Equal(t, string(creator), started[0].StartedBy)
	}
}

func TestRouter_StartRecordingOutsideRoom(t *testing.T) {
	f := newRouterFixture(t)
	id, sender := f.connect(t)

	f.dispatch(t, id, Envelope{Type: MsgStartRecording})

	errs := sender.ofType(t, MsgError)
	require.Len(t, errs, 1)
	assert.Equal(t, domain.ErrNotInRoom.Error(), errs[0].Message)
}

func TestRouter_DoubleStartRecording(t *testing.T) {
	f := newRouterFixture(t)
	id, sender := f.connect(t)

	f.dispatch(t, id, Envelope{Type: MsgCreateRoom})
	f.dispatch(t, id, Envelope{Type: MsgStartRecording})
	f.dispatch(t, id, Envelope{Type: MsgStartRecording})

	errs := sender.ofType(t, MsgError)
	require.Len(t, errs, 1)
	assert.Equal(t, domain.ErrAlreadyRecording.Error(), errs[0].Message)
}

func TestRouter_StopRecordingBroadcastsFiles(t *testing.T) {
	f := newRouterFixture(t)
	creator, creatorSender := f.connect(t)
	peer, peerSender := f.connect(t)

	f.dispatch(t, creator, Envelope{Type: MsgCreateRoom})
	code := creatorSender.ofType(t, MsgRoomCreated)[0].RoomID
	f.dispatch(t, peer, Envelope{Type: MsgJoinRoom, RoomID: code})
	f.dispatch(t, creator, Envelope{Type: MsgStartRecording})
	f.recorder.stopFiles = []string{"a.webm", "b.webm"}

	f.dispatch(t, peer, Envelope{Type: MsgStopRecording})

	for _, s := range []*captureSender{creatorSender, peerSender} {
		stopped := s.ofType(t, MsgRecordingStopped)
		require.Len(t, stopped, 1)
		assert.Equal(t, string(peer), stopped[0].StoppedBy)
		assert.Equal(t, []string{"a.webm", "b.webm"}, stopped[0].Files)
	}
}

func TestRouter_BinaryFramesFeedRecorder(t *testing.T) {
	f := newRouterFixture(t)
	id, sender := f.connect(t)

	f.dispatch(t, id, Envelope{Type: MsgCreateRoom})
	code := sender.ofType(t, MsgRoomCreated)[0].RoomID
	f.dispatch(t, id, Envelope{Type: MsgStartRecording})

	f.server.handleInbound(id, []byte{0x1a, 0x45, 0xdf, 0xa3}, true)
	f.server.handleInbound(id, []byte{0x00, 0x01}, true)

	assert.Equal(t, 2, f.recorder.chunks[domain.RoomID(code)])
}

func TestRouter_BinaryFramesOutsideRoomDropped(t *testing.T) {
	f := newRouterFixture(t)
	id, _ := f.connect(t)

	f.server.handleInbound(id, []byte{0x00}, true)

	assert.Empty(t, f.recorder.chunks)
}

func TestRouter_GetActiveRooms(t *testing.T) {
	f := newRouterFixture(t)
	creator, creatorSender := f.connect(t)
	observer, observerSender := f.connect(t)

	f.dispatch(t, creator, Envelope{Type: MsgCreateRoom})
	code := creatorSender.ofType(t, MsgRoomCreated)[0].RoomID
	observerSender.reset()

	f.dispatch(t, observer, Envelope{Type: MsgGetActiveRooms})

	updates := observerSender.ofType(t, MsgActiveRoomsUpdate)
	require.Len(t, updates, 1)
	require.Len(t, updates[0].Rooms, 1)
	assert.Equal(t, domain.RoomID(code), updates[0].Rooms[0].RoomID)
	assert.Equal(t, 1, updates[0].Rooms[0].ParticipantCount)
}

func TestRouter_LobbySeesRoomChanges(t *testing.T) {
	f := newRouterFixture(t)
	creator, _ := f.connect(t)
	_, lobbySender := f.connect(t)

	f.dispatch(t, creator, Envelope{Type: MsgCreateRoom})

	updates := lobbySender.ofType(t, MsgActiveRoomsUpdate)
	require.NotEmpty(t, updates)
	assert.Len(t, updates[len(updates)-1].Rooms, 1)
}

// Full two-client session: create, join, targeted offer, record, stop, leave.
func TestRouter_SessionLifecycle(t *testing.T) {
	f := newRouterFixture(t)
	a, aSender := f.connect(t)
	b, bSender := f.connect(t)

	f.dispatch(t, a, Envelope{Type: MsgCreateRoom})
	created := aSender.ofType(t, MsgRoomCreated)
	require.Len(t, created, 1)
	code := created[0].RoomID

	f.dispatch(t, b, Envelope{Type: MsgJoinRoom, RoomID: code})
	joined := bSender.ofType(t, MsgRoomJoined)
	require.Len(t, joined, 1)
	assert.Equal(t, []string{string(a)}, joined[0].Participants)
	require.Len(t, aSender.ofType(t, MsgPeerJoined), 1)

	f.dispatch(t, a, Envelope{Type: MsgOffer, TargetClientID: string(b), Payload: json.RawMessage(`{"sdp":"v=0"}`)})
	offers := bSender.ofType(t, MsgOffer)
	require.Len(t, offers, 1)
	assert.Equal(t, string(a), offers[0].SenderID)

	f.dispatch(t, a, Envelope{Type: MsgStartRecording})
	require.Len(t, aSender.ofType(t, MsgRecordingStarted), 1)
	require.Len(t, bSender.ofType(t, MsgRecordingStarted), 1)

	for i := 0; i < 3; i++ {
		f.server.handleInbound(b, []byte{0x01, 0x02}, true)
	}
	assert.Equal(t, 3, f.recorder.chunks[domain.RoomID(code)])

	f.recorder.stopFiles = []string{code + "_b_1.webm"}
	f.dispatch(t, a, Envelope{Type: MsgStopRecording})
	stopped := bSender.ofType(t, MsgRecordingStopped)
	require.Len(t, stopped, 1)
	assert.Equal(t, []string{code + "_b_1.webm"}, stopped[0].Files)

	f.dispatch(t, b, Envelope{Type: MsgLeaveRoom})
	left := aSender.ofType(t, MsgPeerLeft)
	require.Len(t, left, 1)
	assert.Equal(t, string(b), left[0].ClientID)

	f.dispatch(t, a, Envelope{Type: MsgLeaveRoom})
	assert.False(t, f.rooms.RoomExists(domain.RoomID(code)))

	aSender.reset()
	f.dispatch(t, a, Envelope{Type: MsgGetActiveRooms})
	updates := aSender.ofType(t, MsgActiveRoomsUpdate)
	require.Len(t, updates, 1)
	assert.Empty(t, updates[0].Rooms)
}

func TestRouter_MalformedMessageIgnored(t *testing.T) {
	f := newRouterFixture(t)
	id, sender := f.connect(t)

	f.server.handleInbound(id, []byte("not json"), false)
	f.dispatch(t, id, Envelope{Type: "bogus-type"})

	assert.Empty(t, sender.ofType(t, MsgError))
}
