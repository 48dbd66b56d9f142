package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/EthanQC/roadcast/services/delivery_service/internal/adapters/out/memory"
	"github.com/EthanQC/roadcast/services/delivery_service/internal/domain/entity"
	"github.com/EthanQC/roadcast/services/delivery_service/internal/ports/out"
)

const (
	userA = "2f1c6a52-5d7e-4a53-9b0e-8f1a3e2d4c10"
	userB = "7b9d2c41-0e6f-4f18-a2c3-5d6e7f8a9b01"
	userC = "c3d4e5f6-a7b8-4c9d-8e0f-1a2b3c4d5e6f"
)

func TestPresenceRegistry_RegisterAndRemove(t *testing.T) {
	ctx := context.Background()
	kv := memory.NewKVStore()
	reg := NewPresenceRegistry(kv)

	require.NoError(t, reg.Register(ctx, userA, "conn-1"))

	connID, err := reg.Lookup(ctx, userA)
	require.NoError(t, err)
	assert.Equal(t, "conn-1", connID)

	status, err := reg.Status(ctx, userA)
	require.NoError(t, err)
	assert.Equal(t, entity.PresenceStatusOnline, status)

	ttl, ok := kv.TTL("user_status:" + userA)
	require.True(t, ok)
	assert.InDelta(t, (24 * time.Hour).Seconds(), ttl.Seconds(), 5)

	uid, offline, err := reg.Remove(ctx, "conn-1")
	require.NoError(t, err)
	assert.Equal(t, userA, uid)
	assert.True(t, offline)

	connID, err = reg.Lookup(ctx, userA)
	require.NoError(t, err)
	assert.Empty(t, connID)

	status, err = reg.Status(ctx, userA)
	require.NoError(t, err)
	assert.Equal(t, entity.PresenceStatusOffline, status)

	_, found, _ := kv.Get(ctx, "online_users_reverse:conn-1")
	assert.False(t, found)
}

func TestPresenceRegistry_RemoveUnknownConnection(t *testing.T) {
	reg := NewPresenceRegistry(memory.NewKVStore())

	uid, offline, err := reg.Remove(context.Background(), "never-registered")
	require.NoError(t, err)
	assert.Empty(t, uid)
	assert.False(t, offline)
}

func TestPresenceRegistry_ReconnectLastWriterWins(t *testing.T) {
	ctx := context.Background()
	kv := memory.NewKVStore()
	reg := NewPresenceRegistry(kv)

	require.NoError(t, reg.Register(ctx, userA, "conn-1"))
	require.NoError(t, reg.Register(ctx, userA, "conn-2"))

	connID, err := reg.Lookup(ctx, userA)
	require.NoError(t, err)
	assert.Equal(t, "conn-2", connID)

	// 旧连接的反向映射仍然保留
	stale, found, err := kv.Get(ctx, "online_users_reverse:conn-1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, userA, stale)

	// 旧连接断开不会把用户标记为离线
	uid, offline, err := reg.Remove(ctx, "conn-1")
	require.NoError(t, err)
	assert.Equal(t, userA, uid)
	assert.False(t, offline)

	connID, err = reg.Lookup(ctx, userA)
	require.NoError(t, err)
	assert.Equal(t, "conn-2", connID)

	status, err := reg.Status(ctx, userA)
	require.NoError(t, err)
	assert.Equal(t, entity.PresenceStatusOnline, status)

	_, found, _ = kv.Get(ctx, "online_users_reverse:conn-1")
	assert.False(t, found)
}

func TestPresenceRegistry_PushToken(t *testing.T) {
	ctx := context.Background()
	reg := NewPresenceRegistry(memory.NewKVStore())

	token, err := reg.GetPushToken(ctx, userA)
	require.NoError(t, err)
	assert.Empty(t, token)

	require.NoError(t, reg.SetPushToken(ctx, userA, "token-1"))
	require.NoError(t, reg.SetPushToken(ctx, userA, "token-2"))

	token, err = reg.GetPushToken(ctx, userA)
	require.NoError(t, err)
	assert.Equal(t, "token-2", token)
}

func TestPresenceRegistry_GetPresence(t *testing.T) {
	ctx := context.Background()
	reg := NewPresenceRegistry(memory.NewKVStore())
	require.NoError(t, reg.Register(ctx, userA, "conn-1"))

	view, err := reg.GetPresence(ctx, userA)
	require.NoError(t, err)
	assert.True(t, view.Online)
	assert.Equal(t, entity.PresenceStatusOnline, view.Status)

	view, err = reg.GetPresence(ctx, userB)
	require.NoError(t, err)
	assert.False(t, view.Online)
	assert.Equal(t, entity.PresenceStatusOffline, view.Status)

	_, err = reg.GetPresence(ctx, "not-a-uuid")
	assert.ErrorIs(t, err, entity.ErrValidation)
}

// mockKV 用于构造守卫冲突
type mockKV struct {
	mock.Mock
}

func (m *mockKV) Get(ctx context.Context, key string) (string, bool, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *mockKV) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return m.Called(ctx, key, value, ttl).Error(0)
}

func (m *mockKV) MultiSet(ctx context.Context, writes []out.KVWrite, guards ...out.KVGuard) error {
	return m.Called(ctx, writes, guards).Error(0)
}

func (m *mockKV) Delete(ctx context.Context, keys ...string) error {
	return m.Called(ctx, keys).Error(0)
}

func (m *mockKV) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return m.Called(ctx, key, ttl).Error(0)
}

func TestPresenceRegistry_RemoveRetriesOnConflict(t *testing.T) {
	ctx := context.Background()
	kv := new(mockKV)
	kv.On("Get", ctx, "online_users_reverse:conn-1").Return(userA, true, nil)
	kv.On("Get", ctx, "online_users:"+userA).Return("conn-1", true, nil)
	kv.On("MultiSet", ctx, mock.Anything, mock.Anything).Return(out.ErrKVConflict).Once()
	kv.On("MultiSet", ctx, mock.Anything, mock.Anything).Return(nil).Once()

	reg := NewPresenceRegistry(kv)
	uid, offline, err := reg.Remove(ctx, "conn-1")
	require.NoError(t, err)
	assert.Equal(t, userA, uid)
	assert.True(t, offline)
	kv.AssertNumberOfCalls(t, "MultiSet", 2)
}

func TestPresenceRegistry_RemoveGivesUpAfterRetries(t *testing.T) {
	ctx := context.Background()
	kv := new(mockKV)
	kv.On("Get", ctx, "online_users_reverse:conn-1").Return(userA, true, nil)
	kv.On("Get", ctx, "online_users:"+userA).Return("conn-1", true, nil)
	kv.On("MultiSet", ctx, mock.Anything, mock.Anything).Return(out.ErrKVConflict)

	reg := NewPresenceRegistry(kv)
	_, offline, err := reg.Remove(ctx, "conn-1")
	assert.ErrorIs(t, err, out.ErrKVConflict)
	assert.False(t, offline)
	kv.AssertNumberOfCalls(t, "MultiSet", maxRemoveAttempts)
}
