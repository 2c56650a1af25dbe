package distributed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"huddle/internal/core/domain"
	"huddle/pkg/retry"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// EventType represents the type of event
type EventType string

const (
	EventRoomCreated      EventType = "room.created"
	EventRoomEnded        EventType = "room.ended"
	EventPeerJoined       EventType = "peer.joined"
	EventPeerLeft         EventType = "peer.left"
	EventRecordingStarted EventType = "recording.started"
	EventRecordingStopped EventType = "recording.stopped"
)

// Event is a room or recording lifecycle notification shared between
// instances. It carries no signaling state; the in-memory registries stay
// authoritative on each instance.
type Event struct {
	Type       EventType       `json:"type"`
	InstanceID string          `json:"instance_id"`
	Timestamp  time.Time       `json:"timestamp"`
	RoomID     domain.RoomID   `json:"room_id,omitempty"`
	ClientID   domain.ClientID `json:"client_id,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// EventBus provides event publishing and subscription for coordination
type EventBus struct {
	client     *redis.Client
	instanceID string
	logger     *zap.SugaredLogger
	pubsub     *redis.PubSub
	channel    string
	retryCfg   retry.Config
}

func NewEventBus(client *redis.Client, instanceID string, logger *zap.SugaredLogger) *EventBus {
	return &EventBus{
		client:     client,
		instanceID: instanceID,
		logger:     logger,
		channel:    "huddle:events",
		retryCfg:   retry.DefaultConfig(),
	}
}

// Publish publishes an event, retrying transient redis failures with backoff.
func (eb *EventBus) Publish(ctx context.Context, event *Event) error {
	event.InstanceID = eb.instanceID
	event.Timestamp = time.Now()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = retry.Retry(ctx, eb.retryCfg, func() error {
		return eb.client.Publish(ctx, eb.channel, data).Err()
	})
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	eb.logger.Debugw("published event",
		"type", event.Type,
		"room_id", event.RoomID,
		"client_id", event.ClientID,
	)
	return nil
}

// Subscribe subscribes to events and calls handler for each event originating
// from other instances. Blocks until ctx is cancelled.
func (eb *EventBus) Subscribe(ctx context.Context, handler func(*Event) error) error {
	if eb.pubsub != nil {
		return fmt.Errorf("already subscribed")
	}

	eb.pubsub = eb.client.Subscribe(ctx, eb.channel)
	defer eb.pubsub.Close()

	ch := eb.pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg := <-ch:
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				eb.logger.Warnw("failed to unmarshal event", "error", err, "payload", msg.Payload)
				continue
			}

			if event.InstanceID == eb.instanceID {
				continue
			}

			if err := handler(&event); err != nil {
				eb.logger.Warnw("error handling event", "type", event.Type, "error", err)
			}
		}
	}
}

func (eb *EventBus) PublishRoomCreated(ctx context.Context, roomID domain.RoomID, creatorID domain.ClientID) error {
	return eb.Publish(ctx, &Event{Type: EventRoomCreated, RoomID: roomID, ClientID: creatorID})
}

func (eb *EventBus) PublishRoomEnded(ctx context.Context, roomID domain.RoomID) error {
	return eb.Publish(ctx, &Event{Type: EventRoomEnded, RoomID: roomID})
}

func (eb *EventBus) PublishPeerJoined(ctx context.Context, roomID domain.RoomID, clientID domain.ClientID) error {
	return eb.Publish(ctx, &Event{Type: EventPeerJoined, RoomID: roomID, ClientID: clientID})
}

func (eb *EventBus) PublishPeerLeft(ctx context.Context, roomID domain.RoomID, clientID domain.ClientID) error {
	return eb.Publish(ctx, &Event{Type: EventPeerLeft, RoomID: roomID, ClientID: clientID})
}

func (eb *EventBus) PublishRecordingStarted(ctx context.Context, roomID domain.RoomID, initiatorID domain.ClientID) error {
	return eb.Publish(ctx, &Event{Type: EventRecordingStarted, RoomID: roomID, ClientID: initiatorID})
}

func (eb *EventBus) PublishRecordingStopped(ctx context.Context, roomID domain.RoomID, files []string) error {
	payload, _ := json.Marshal(map[string]interface{}{"files": files})
	return eb.Publish(ctx, &Event{Type: EventRecordingStopped, RoomID: roomID, Payload: payload})
}
