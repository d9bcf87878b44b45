package domain

import (
	"encoding/json"
	"fmt"
)

// Event is the closed set of broadcast payloads. Scheduling events carry a
// per-room sequence so receivers can discard superseded ones.
type Event interface {
	EventType() string
}

const (
	EventTypeRoomUpdate    = "room:update"
	EventTypeUserJoined    = "user:joined"
	EventTypeUserLeft      = "user:left"
	EventTypeSyncPong      = "sync:pong"
	EventTypePlayScheduled = "play:scheduled"
	EventTypePauseSync     = "pause:sync"
	EventTypeSeekSync      = "seek:sync"
)

type RoomUpdateEvent struct {
	Room RoomState `json:"room"`
}

func (RoomUpdateEvent) EventType() string { return EventTypeRoomUpdate }

type UserJoinedEvent struct {
	User User `json:"user"`
}

func (UserJoinedEvent) EventType() string { return EventTypeUserJoined }

type UserLeftEvent struct {
	UserId string `json:"user_id"`
}

func (UserLeftEvent) EventType() string { return EventTypeUserLeft }

type SyncPongEvent struct {
	ClientSendTime    int64 `json:"client_send_time"`
	ServerReceiveTime int64 `json:"server_receive_time"`
	ServerReplyTime   int64 `json:"server_reply_time"`
}

func (SyncPongEvent) EventType() string { return EventTypeSyncPong }

type PlayScheduledEvent struct {
	TrackId            string  `json:"track_id"`
	PlayAt             int64   `json:"play_at"`
	StartOffsetSeconds float64 `json:"start_offset_seconds"`
	Seq                int64   `json:"seq"`
}

func (PlayScheduledEvent) EventType() string { return EventTypePlayScheduled }

type PauseSyncEvent struct {
	PauseAt         int64   `json:"pause_at"`
	PositionSeconds float64 `json:"position_seconds"`
	Seq             int64   `json:"seq"`
}

func (PauseSyncEvent) EventType() string { return EventTypePauseSync }

type SeekSyncEvent struct {
	PositionSeconds float64 `json:"position_seconds"`
	At              int64   `json:"at"`
	Seq             int64   `json:"seq"`
}

func (SeekSyncEvent) EventType() string { return EventTypeSeekSync }

type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func EncodeEvent(ev Event) ([]byte, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event payload: %w", err)
	}

	return json.Marshal(Envelope{Type: ev.EventType(), Payload: payload})
}

func DecodeEvent(data []byte) (Event, error) {
	var envelope Envelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("failed to unmarshal event envelope: %w", err)
	}

	decode := func(ev Event) (Event, error) {
		if err := json.Unmarshal(envelope.Payload, ev); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s payload: %w", envelope.Type, err)
		}
		return ev, nil
	}

	switch envelope.Type {
	case EventTypeRoomUpdate:
		return decode(&RoomUpdateEvent{})
	case EventTypeUserJoined:
		return decode(&UserJoinedEvent{})
	case EventTypeUserLeft:
		return decode(&UserLeftEvent{})
	case EventTypeSyncPong:
		return decode(&SyncPongEvent{})
	case EventTypePlayScheduled:
		return decode(&PlayScheduledEvent{})
	case EventTypePauseSync:
		return decode(&PauseSyncEvent{})
	case EventTypeSeekSync:
		return decode(&SeekSyncEvent{})
	default:
		return nil, fmt.Errorf("unknown event type %q", envelope.Type)
	}
}
