package broadcast

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunesync/server/internal/domain"
)

func newTestBus(t *testing.T) *Bus {
	t.Helper()

	s := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { rc.Close() })

	b := NewBus(rc, nil, slog.Default())
	t.Cleanup(b.Close)

	return b
}

func collect(t *testing.T, ch <-chan domain.Event, n int) []domain.Event {
	t.Helper()

	out := make([]domain.Event, 0, n)
	for range n {
		select {
		case ev := <-ch:
			out = append(out, ev)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for event %d of %d", len(out)+1, n)
		}
	}

	return out
}

func TestPublishPreservesCommitOrder(t *testing.T) {
	b := newTestBus(t)

	ch, cancel := b.Subscribe("r1")
	defer cancel()

	ctx := context.Background()
	require.NoError(t, b.Publish(ctx, "r1", domain.RoomUpdateEvent{Room: *domain.NewRoomState("r1", "Room r1")}))
	require.NoError(t, b.Publish(ctx, "r1", domain.PlayScheduledEvent{TrackId: "t1", PlayAt: 100, Seq: 1}))
	require.NoError(t, b.Publish(ctx, "r1", domain.PauseSyncEvent{PauseAt: 200, PositionSeconds: 3, Seq: 2}))

	events := collect(t, ch, 3)
	assert.Equal(t, domain.EventTypeRoomUpdate, events[0].EventType())
	assert.Equal(t, domain.EventTypePlayScheduled, events[1].EventType())
	assert.Equal(t, domain.EventTypePauseSync, events[2].EventType())
}

func TestSubscribersAreRoomScoped(t *testing.T) {
	b := newTestBus(t)

	chR1, cancel1 := b.Subscribe("r1")
	defer cancel1()
	chR2, cancel2 := b.Subscribe("r2")
	defer cancel2()

	require.NoError(t, b.Publish(context.Background(), "r1", domain.UserLeftEvent{UserId: "u1"}))

	events := collect(t, chR1, 1)
	assert.Equal(t, domain.EventTypeUserLeft, events[0].EventType())

	select {
	case ev := <-chR2:
		t.Fatalf("unexpected event on r2: %v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestCancelStopsDelivery(t *testing.T) {
	b := newTestBus(t)

	ch, cancel := b.Subscribe("r1")
	cancel()

	require.NoError(t, b.Publish(context.Background(), "r1", domain.UserLeftEvent{UserId: "u1"}))

	select {
	case ev := <-ch:
		t.Fatalf("unexpected event after cancel: %v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestEventEnvelopeRoundTrip(t *testing.T) {
	ev := domain.PlayScheduledEvent{TrackId: "t1", PlayAt: 12345, StartOffsetSeconds: 10, Seq: 7}
	data, err := domain.EncodeEvent(ev)
	require.NoError(t, err)

	decoded, err := domain.DecodeEvent(data)
	require.NoError(t, err)

	scheduled, ok := decoded.(*domain.PlayScheduledEvent)
	require.True(t, ok)
	assert.Equal(t, ev, *scheduled)
}
