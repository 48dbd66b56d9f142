package application

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EthanQC/roadcast/services/delivery_service/internal/adapters/out/memory"
	"github.com/EthanQC/roadcast/services/delivery_service/internal/domain/entity"
	"github.com/EthanQC/roadcast/services/delivery_service/internal/ports/out"
)

// instance 共享 KV 和中继总线的一个服务实例
type instance struct {
	conns      *fakeConnManager
	registry   *PresenceRegistryImpl
	dispatcher *DispatcherImpl
	relay      *RelayFanout
}

func newInstance(t *testing.T, id string, kv out.KVStore, bus out.RelayBus, push out.PushService) *instance {
	t.Helper()
	conns := newFakeConnManager()
	reg := NewPresenceRegistry(kv)
	d := NewDispatcher(reg, conns, push).(*DispatcherImpl)
	relay := NewRelayFanout(bus, conns, d, id)
	require.NoError(t, relay.Start(context.Background()))
	return &instance{conns: conns, registry: reg, dispatcher: d, relay: relay}
}

func TestRelayFanout_PayloadUnchanged(t *testing.T) {
	kv := memory.NewKVStore()
	bus := memory.NewRelayBus()
	a := newInstance(t, "A", kv, bus, new(mockPushService))
	b := newInstance(t, "B", kv, bus, new(mockPushService))

	connA := newFakeConn("conn-a", userA)
	connB := newFakeConn("conn-b", userB)
	a.conns.Register(connA)
	b.conns.Register(connB)

	payload := []byte(`{"userId":"u","latitude":40.7128,"longitude":-74.006}`)
	a.relay.Publish(context.Background(), entity.ChannelLocation, "", payload)

	for _, c := range []*fakeConn{connA, connB} {
		got := c.named(entity.EventLocationUpdate)
		require.Len(t, got, 1)
		assert.Equal(t, payload, got[0].Payload)
	}
}

func TestRelayFanout_PresenceSkipsOrigin(t *testing.T) {
	kv := memory.NewKVStore()
	bus := memory.NewRelayBus()
	a := newInstance(t, "A", kv, bus, new(mockPushService))
	b := newInstance(t, "B", kv, bus, new(mockPushService))

	connA := newFakeConn("conn-a", userA)
	connB := newFakeConn("conn-b", userB)
	a.conns.Register(connA)
	b.conns.Register(connB)

	a.relay.Publish(context.Background(), entity.ChannelPresence, "", []byte(`{"userId":"x","status":"online"}`))

	assert.Empty(t, connA.named(entity.EventUserStatusUpdate))
	assert.Len(t, connB.named(entity.EventUserStatusUpdate), 1)
}

func TestRelayFanout_TargetedDirectEvent(t *testing.T) {
	ctx := context.Background()
	kv := memory.NewKVStore()
	bus := memory.NewRelayBus()
	a := newInstance(t, "A", kv, bus, new(mockPushService))
	b := newInstance(t, "B", kv, bus, new(mockPushService))

	connB := newFakeConn("conn-b", userB)
	b.conns.Register(connB)
	require.NoError(t, b.registry.Register(ctx, userB, "conn-b"))
	connA := newFakeConn("conn-a", userA)
	a.conns.Register(connA)

	a.relay.Publish(ctx, entity.ChannelChat, userB, []byte(`{"_id":"m1"}`))

	assert.Len(t, connB.named(entity.EventChat), 1)
	assert.Len(t, connB.named(entity.EventNewMessage), 1)
	// 发出实例只广播，不做定向投递
	assert.Len(t, connA.named(entity.EventChat), 1)
	assert.Empty(t, connA.named(entity.EventNewMessage))
}

func TestRelayFanout_DropsMalformed(t *testing.T) {
	conns := newFakeConnManager()
	conn := newFakeConn("conn-a", userA)
	conns.Register(conn)
	f := NewRelayFanout(memory.NewRelayBus(), conns, nil, "A")

	f.handle(context.Background(), entity.ChannelChat.Name, []byte("not json"))
	f.handle(context.Background(), "unknown_channel", []byte(`{"origin":"B","payload":{}}`))

	f.handle(context.Background(), entity.ChannelChat.Name, []byte(`{"origin":"B"}`))

	assert.Empty(t, conn.events)
}
