package ws

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/EthanQC/roadcast/services/delivery_service/internal/metrics"
	"github.com/EthanQC/roadcast/services/delivery_service/internal/ports/out"
)

// ConnectionManager 本实例连接表，按连接ID索引
type ConnectionManager struct {
	connections map[string]out.Connection
	mu          sync.RWMutex

	// 统计
	totalConns int64
	totalMsgs  int64
	acceptedN  int64
}

func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{
		connections: make(map[string]out.Connection),
	}
}

var _ out.ConnectionManager = (*ConnectionManager)(nil)

func (m *ConnectionManager) Register(conn out.Connection) {
	m.mu.Lock()
	m.connections[conn.ID()] = conn
	m.mu.Unlock()

	atomic.AddInt64(&m.acceptedN, 1)
	n := atomic.AddInt64(&m.totalConns, 1)
	metrics.ActiveConnections.Set(float64(n))

	zap.L().Info("Connection registered",
		zap.String("connID", conn.ID()),
		zap.String("userID", conn.UserID()),
		zap.Int64("totalConns", n))
}

// Unregister 只移除，不关闭连接
func (m *ConnectionManager) Unregister(connID string) {
	m.mu.Lock()
	_, ok := m.connections[connID]
	delete(m.connections, connID)
	m.mu.Unlock()
	if !ok {
		return
	}

	n := atomic.AddInt64(&m.totalConns, -1)
	metrics.ActiveConnections.Set(float64(n))
	zap.L().Info("Connection unregistered", zap.String("connID", connID), zap.Int64("totalConns", n))
}

func (m *ConnectionManager) Get(connID string) (out.Connection, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	conn, ok := m.connections[connID]
	return conn, ok
}

// Broadcast 下发给本实例全部连接，单个连接失败不影响其他连接
func (m *ConnectionManager) Broadcast(event string, payload []byte) {
	m.mu.RLock()
	conns := make([]out.Connection, 0, len(m.connections))
	for _, c := range m.connections {
		conns = append(conns, c)
	}
	m.mu.RUnlock()

	for _, c := range conns {
		if err := c.Emit(event, payload); err != nil {
			zap.L().Debug("Broadcast to connection failed",
				zap.String("connID", c.ID()),
				zap.String("event", event),
				zap.Error(err))
		}
	}
	atomic.AddInt64(&m.totalMsgs, int64(len(conns)))
}

func (m *ConnectionManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.connections)
}

// CloseAll 关闭全部连接，停机时使用
func (m *ConnectionManager) CloseAll() {
	m.mu.RLock()
	conns := make([]out.Connection, 0, len(m.connections))
	for _, c := range m.connections {
		conns = append(conns, c)
	}
	m.mu.RUnlock()

	for _, c := range conns {
		_ = c.Close()
	}
}

// GetStats 获取统计信息
func (m *ConnectionManager) GetStats() map[string]int64 {
	m.mu.RLock()
	users := make(map[string]struct{}, len(m.connections))
	for _, c := range m.connections {
		users[c.UserID()] = struct{}{}
	}
	m.mu.RUnlock()

	return map[string]int64{
		"total_connections":    atomic.LoadInt64(&m.totalConns),
		"accepted_connections": atomic.LoadInt64(&m.acceptedN),
		"broadcast_messages":   atomic.LoadInt64(&m.totalMsgs),
		"online_users":         int64(len(users)),
	}
}
