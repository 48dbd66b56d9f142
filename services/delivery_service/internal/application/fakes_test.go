package application

import (
	"context"
	"errors"
	"sync"

	"github.com/stretchr/testify/mock"

	"github.com/EthanQC/roadcast/services/delivery_service/internal/domain/entity"
	"github.com/EthanQC/roadcast/services/delivery_service/internal/ports/out"
)

type emitted struct {
	Event   string
	Payload []byte
}

// fakeConn 记录下发的事件
type fakeConn struct {
	id     string
	userID string
	mu     sync.Mutex
	events []emitted
	err    error
}

func newFakeConn(id, userID string) *fakeConn {
	return &fakeConn{id: id, userID: userID}
}

func (c *fakeConn) ID() string     { return c.id }
func (c *fakeConn) UserID() string { return c.userID }
func (c *fakeConn) Close() error   { return nil }

func (c *fakeConn) Emit(event string, payload []byte) error {
	if c.err != nil {
		return c.err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, emitted{Event: event, Payload: append([]byte(nil), payload...)})
	return nil
}

func (c *fakeConn) named(event string) []emitted {
	c.mu.Lock()
	defer c.mu.Unlock()
	var res []emitted
	for _, e := range c.events {
		if e.Event == event {
			res = append(res, e)
		}
	}
	return res
}

// fakeConnManager 本实例连接表
type fakeConnManager struct {
	mu    sync.RWMutex
	conns map[string]out.Connection
}

func newFakeConnManager(conns ...out.Connection) *fakeConnManager {
	m := &fakeConnManager{conns: make(map[string]out.Connection)}
	for _, c := range conns {
		m.Register(c)
	}
	return m
}

func (m *fakeConnManager) Register(conn out.Connection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conns[conn.ID()] = conn
}

func (m *fakeConnManager) Unregister(connID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.conns, connID)
}

func (m *fakeConnManager) Get(connID string) (out.Connection, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.conns[connID]
	return c, ok
}

func (m *fakeConnManager) Broadcast(event string, payload []byte) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.conns {
		_ = c.Emit(event, payload)
	}
}

func (m *fakeConnManager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns)
}

// mockPushService testify mock
type mockPushService struct {
	mock.Mock
}

func (m *mockPushService) Push(ctx context.Context, token string, n *entity.PushNotification) error {
	args := m.Called(ctx, token, n)
	return args.Error(0)
}

// fakeStore 共享的持久化存储
type fakeStore struct {
	mu            sync.Mutex
	pins          map[string]*entity.LocationPin
	reports       map[string]*entity.HazardReport
	messages      []*entity.Message
	notifications []*entity.Notification
	nearReports   []*entity.HazardReport
	nearPins      []*entity.LocationPin
	failWrites    bool
	deleted       int64
}

var errStoreDown = errors.New("store unavailable")

func newFakeStore() *fakeStore {
	return &fakeStore{
		pins:    make(map[string]*entity.LocationPin),
		reports: make(map[string]*entity.HazardReport),
	}
}

func (s *fakeStore) Upsert(_ context.Context, pin *entity.LocationPin) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrites {
		return errStoreDown
	}
	cp := *pin
	s.pins[pin.UserID] = &cp
	return nil
}

func (s *fakeStore) GetByUserID(_ context.Context, userID string) (*entity.LocationPin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pins[userID], nil
}

func (s *fakeStore) GetByID(_ context.Context, id string) (*entity.HazardReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reports[id], nil
}

func (s *fakeStore) DeleteInaccurate(_ context.Context, threshold int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrites {
		return 0, errStoreDown
	}
	var n int64
	for id, r := range s.reports {
		if r.Inaccuracies > threshold {
			delete(s.reports, id)
			n++
		}
	}
	s.deleted += n
	return n, nil
}

func (s *fakeStore) Create(_ context.Context, msg *entity.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrites {
		return errStoreDown
	}
	s.messages = append(s.messages, msg)
	return nil
}

func (s *fakeStore) FindReportsNear(_ context.Context, _ entity.GeoPoint, _ float64, limit int) ([]*entity.HazardReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit > 0 && len(s.nearReports) > limit {
		return s.nearReports[:limit], nil
	}
	return s.nearReports, nil
}

func (s *fakeStore) FindPinsNear(_ context.Context, _ entity.GeoPoint, _ float64, limit int) ([]*entity.LocationPin, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit > 0 && len(s.nearPins) > limit {
		return s.nearPins[:limit], nil
	}
	return s.nearPins, nil
}

func (s *fakeStore) messageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// fakeNotificationStore 通知仓储
type fakeNotificationStore struct {
	store *fakeStore
}

func (n fakeNotificationStore) Create(_ context.Context, item *entity.Notification) error {
	n.store.mu.Lock()
	defer n.store.mu.Unlock()
	if n.store.failWrites {
		return errStoreDown
	}
	n.store.notifications = append(n.store.notifications, item)
	return nil
}

// fakePresencePublisher 记录在线状态事件
type fakePresencePublisher struct {
	mu     sync.Mutex
	events []*entity.PresenceEvent
}

func (p *fakePresencePublisher) PublishPresenceChange(_ context.Context, e *entity.PresenceEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *fakePresencePublisher) Close() error { return nil }
