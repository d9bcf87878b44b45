package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"github.com/tunesync/server/internal/domain"
	"github.com/tunesync/server/pkg/wsrouter"
)

const (
	pumpBuffer = 256
	subBuffer  = 64
)

type iSender interface {
	GetConnsByRoomId(roomId string) []*wsrouter.Conn
}

// wireMessage travels over redis pub/sub so other instances attached to the
// same room can fan the event out to their own sessions.
type wireMessage struct {
	InstanceId string          `json:"instance_id"`
	Event      json.RawMessage `json:"event"`
}

type queued struct {
	roomId string
	event  domain.Event
	data   []byte
}

// Bus fans events out to in-process subscribers, to this instance's websocket
// sessions and to other instances via redis pub/sub. Delivery is best-effort
// and asynchronous; a per-room pump preserves commit order for same-process
// observers.
type Bus struct {
	instanceId string
	rdb        *redis.Client
	sender     iSender
	logger     *slog.Logger

	mu     sync.Mutex
	pumps  map[string]chan queued
	subs   map[string]map[int]chan domain.Event
	nextId int
	closed chan struct{}
	once   sync.Once
}

func NewBus(rdb *redis.Client, sender iSender, logger *slog.Logger) *Bus {
	return &Bus{
		instanceId: uuid.NewString(),
		rdb:        rdb,
		sender:     sender,
		logger:     logger,
		pumps:      make(map[string]chan queued),
		subs:       make(map[string]map[int]chan domain.Event),
		closed:     make(chan struct{}),
	}
}

func eventsChannel(roomId string) string {
	return "room:" + roomId + ":events"
}

// Publish enqueues the event for asynchronous fan-out. Calls made in commit
// order (under the room lock) are observed in the same order by in-process
// subscribers. There is no acknowledgment and no retry.
func (b *Bus) Publish(ctx context.Context, roomId string, ev domain.Event) error {
	data, err := domain.EncodeEvent(ev)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	b.mu.Lock()
	pump, ok := b.pumps[roomId]
	if !ok {
		pump = make(chan queued, pumpBuffer)
		b.pumps[roomId] = pump
		go b.runPump(pump)
	}
	b.mu.Unlock()

	select {
	case pump <- queued{roomId: roomId, event: ev, data: data}:
	default:
		b.logger.WarnContext(ctx, "event dropped, pump full", "room_id", roomId, "type", ev.EventType())
	}

	return nil
}

func (b *Bus) runPump(pump chan queued) {
	for {
		select {
		case <-b.closed:
			return
		case q := <-pump:
			b.deliverLocal(q.roomId, q.event)
			b.deliverConns(q.roomId, q.data)
			b.deliverRemote(q.roomId, q.data)
		}
	}
}

func (b *Bus) deliverLocal(roomId string, ev domain.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.subs[roomId] {
		select {
		case ch <- ev:
		default:
			// slow consumer, drop
		}
	}
}

func (b *Bus) deliverConns(roomId string, data []byte) {
	if b.sender == nil {
		return
	}

	for _, conn := range b.sender.GetConnsByRoomId(roomId) {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			b.logger.Debug("failed to write event to conn", "room_id", roomId, "error", err)
		}
	}
}

func (b *Bus) deliverRemote(roomId string, data []byte) {
	if b.rdb == nil {
		return
	}

	wire, err := json.Marshal(wireMessage{InstanceId: b.instanceId, Event: data})
	if err != nil {
		b.logger.Warn("failed to marshal wire message", "error", err)
		return
	}

	if err := b.rdb.Publish(context.Background(), eventsChannel(roomId), wire).Err(); err != nil {
		b.logger.Warn("failed to publish event", "room_id", roomId, "error", err)
	}
}

// Subscribe registers an in-process listener for one room. The returned
// cancel func must be called to release the subscription.
func (b *Bus) Subscribe(roomId string) (<-chan domain.Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan domain.Event, subBuffer)
	if b.subs[roomId] == nil {
		b.subs[roomId] = make(map[int]chan domain.Event)
	}
	id := b.nextId
	b.nextId++
	b.subs[roomId][id] = ch

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[roomId], id)
	}
}

// RunRelay forwards events published by other instances to this instance's
// websocket sessions and local subscribers. Blocks until ctx is done.
func (b *Bus) RunRelay(ctx context.Context) error {
	if b.rdb == nil {
		return nil
	}

	ps := b.rdb.PSubscribe(ctx, eventsChannel("*"))
	defer ps.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ps.Channel():
			if !ok {
				return nil
			}

			var wire wireMessage
			if err := json.Unmarshal([]byte(msg.Payload), &wire); err != nil {
				b.logger.Warn("failed to unmarshal wire message", "error", err)
				continue
			}
			if wire.InstanceId == b.instanceId {
				continue
			}

			roomId := strings.TrimSuffix(strings.TrimPrefix(msg.Channel, "room:"), ":events")
			ev, err := domain.DecodeEvent(wire.Event)
			if err != nil {
				b.logger.Warn("failed to decode relayed event", "error", err)
				continue
			}

			b.deliverLocal(roomId, ev)
			b.deliverConns(roomId, wire.Event)
		}
	}
}

func (b *Bus) Close() {
	b.once.Do(func() { close(b.closed) })
}
