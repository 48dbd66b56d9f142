package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EthanQC/roadcast/services/delivery_service/internal/ports/out"
)

func TestKVStore_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewKVStore()
	s.now = func() time.Time { return now }

	require.NoError(t, s.Set(ctx, "a", "1", time.Minute))
	require.NoError(t, s.Set(ctx, "b", "2", 0))

	now = now.Add(2 * time.Minute)
	_, ok, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)

	v, ok, err := s.Get(ctx, "b")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "2", v)

	require.NoError(t, s.Expire(ctx, "b", time.Second))
	ttl, ok := s.TTL("b")
	assert.True(t, ok)
	assert.Equal(t, time.Second, ttl)
}

func TestKVStore_MultiSetGuards(t *testing.T) {
	ctx := context.Background()
	s := NewKVStore()
	require.NoError(t, s.Set(ctx, "owner", "c1", 0))

	err := s.MultiSet(ctx, []out.KVWrite{
		{Key: "owner", Delete: true},
		{Key: "status", Value: "offline"},
	}, out.KVGuard{Key: "owner", Value: "c2"})
	assert.ErrorIs(t, err, out.ErrKVConflict)

	// 冲突时不写入任何 key
	_, ok, _ := s.Get(ctx, "status")
	assert.False(t, ok)

	err = s.MultiSet(ctx, []out.KVWrite{
		{Key: "owner", Delete: true},
		{Key: "status", Value: "offline"},
	}, out.KVGuard{Key: "owner", Value: "c1"})
	require.NoError(t, err)

	_, ok, _ = s.Get(ctx, "owner")
	assert.False(t, ok)
	v, _, _ := s.Get(ctx, "status")
	assert.Equal(t, "offline", v)

	assert.ErrorIs(t, s.MultiSet(ctx, nil, out.KVGuard{Key: "status", Absent: true}), out.ErrKVConflict)
	assert.NoError(t, s.MultiSet(ctx, nil, out.KVGuard{Key: "owner", Absent: true}))
}

func TestRelayBus(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	b := NewRelayBus()

	var got []string
	require.NoError(t, b.Subscribe(ctx, []string{"chat_channel"}, func(_ context.Context, channel string, payload []byte) {
		got = append(got, channel+":"+string(payload))
		payload[0] = 'X'
	}))
	var other []string
	require.NoError(t, b.Subscribe(context.Background(), []string{"chat_channel", "report_channel"}, func(_ context.Context, _ string, payload []byte) {
		other = append(other, string(payload))
	}))

	require.NoError(t, b.Publish(ctx, "chat_channel", []byte("hi")))
	require.NoError(t, b.Publish(ctx, "report_channel", []byte("r1")))
	assert.Equal(t, []string{"chat_channel:hi"}, got)
	assert.Equal(t, []string{"hi", "r1"}, other)

	// 取消后不再收到
	cancel()
	require.NoError(t, b.Publish(context.Background(), "chat_channel", []byte("again")))
	assert.Len(t, got, 1)

	require.NoError(t, b.Close())
	assert.Error(t, b.Publish(context.Background(), "chat_channel", []byte("x")))
}
