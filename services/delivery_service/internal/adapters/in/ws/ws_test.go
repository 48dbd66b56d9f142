package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EthanQC/roadcast/services/delivery_service/internal/adapters/out/auth"
	"github.com/EthanQC/roadcast/services/delivery_service/internal/domain/entity"
	"github.com/EthanQC/roadcast/services/delivery_service/internal/domain/event"
	"github.com/EthanQC/roadcast/services/delivery_service/internal/ports/in"
	"github.com/EthanQC/roadcast/services/delivery_service/internal/ports/out"
)

const (
	testSecret = "ws-secret"
	testUser   = "2f1c6a52-5d7e-4a53-9b0e-8f1a3e2d4c10"
	otherUser  = "7b9d2c41-0e6f-4f18-a2c3-5d6e7f8a9b01"
)

// fakeGateway 记录收到的事件
type fakeGateway struct {
	mu           sync.Mutex
	handled      []event.Inbound
	disconnected []string
}

func (g *fakeGateway) Handle(_ context.Context, conn out.Connection, ev event.Inbound) *in.Ack {
	g.mu.Lock()
	g.handled = append(g.handled, ev)
	g.mu.Unlock()

	switch e := ev.(type) {
	case event.SendMessage:
		return in.AckOK(map[string]string{"content": e.Content})
	case event.RegisterUser:
		_ = conn.Emit(entity.EventUserStatusUpdate, []byte(`{"userId":"`+e.UserID+`","status":"online"}`))
	}
	return nil
}

func (g *fakeGateway) Disconnect(_ context.Context, conn out.Connection) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.disconnected = append(g.disconnected, conn.ID())
}

func (g *fakeGateway) handledCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.handled)
}

func (g *fakeGateway) disconnectedCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.disconnected)
}

type testServer struct {
	*httptest.Server
	gateway  *fakeGateway
	manager  *ConnectionManager
	verifier *auth.JWTVerifier
}

func newTestServer(t *testing.T, rl RateLimitConfig) *testServer {
	t.Helper()
	gw := &fakeGateway{}
	manager := NewConnectionManager()
	verifier := auth.NewJWTVerifier(testSecret)
	srv := NewWSServer(manager, gw, verifier, rl)
	ts := httptest.NewServer(http.HandlerFunc(srv.HandleConnection))
	t.Cleanup(ts.Close)
	return &testServer{Server: ts, gateway: gw, manager: manager, verifier: verifier}
}

func (s *testServer) wsURL() string {
	return "ws" + strings.TrimPrefix(s.URL, "http")
}

func (s *testServer) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	token, err := s.verifier.Issue(testUser, time.Hour)
	require.NoError(t, err)
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	conn, _, err := websocket.DefaultDialer.Dial(s.wsURL(), header)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, typ, id, data string) {
	t.Helper()
	msg := map[string]any{"type": typ, "id": id}
	if data != "" {
		msg["data"] = json.RawMessage(data)
	}
	require.NoError(t, conn.WriteJSON(msg))
}

func read(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg WSMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func readAck(t *testing.T, conn *websocket.Conn) (string, in.Ack) {
	t.Helper()
	msg := read(t, conn)
	require.Equal(t, MsgTypeAck, msg.Type)
	var ack in.Ack
	require.NoError(t, json.Unmarshal(msg.Data, &ack))
	return msg.ID, ack
}

func errorMessage(t *testing.T, msg WSMessage) string {
	t.Helper()
	require.Equal(t, WSMessageType(entity.EventError), msg.Type)
	var ev entity.ErrorEvent
	require.NoError(t, json.Unmarshal(msg.Data, &ev))
	return ev.Message
}

func TestHandshakeRejected(t *testing.T) {
	s := newTestServer(t, RateLimitConfig{})
	expired, err := s.verifier.Issue(testUser, -time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name   string
		url    string
		reason string
	}{
		{"missing", s.wsURL(), "missing-token"},
		{"invalid", s.wsURL() + "?token=garbage", "invalid-token"},
		{"expired", s.wsURL() + "?token=" + expired, "expired-token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, resp, err := websocket.DefaultDialer.Dial(tt.url, nil)
			require.Error(t, err)
			require.NotNil(t, resp)
			defer resp.Body.Close()
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

			var body map[string]string
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
			assert.Equal(t, tt.reason, body["error"])
		})
	}
	assert.Zero(t, s.manager.Count())
}

func TestHandshakeQueryToken(t *testing.T) {
	s := newTestServer(t, RateLimitConfig{})
	token, err := s.verifier.Issue(testUser, time.Hour)
	require.NoError(t, err)

	conn, _, err := websocket.DefaultDialer.Dial(s.wsURL()+"?token="+token, nil)
	require.NoError(t, err)
	defer conn.Close()

	assert.Eventually(t, func() bool { return s.manager.Count() == 1 }, time.Second, 10*time.Millisecond)
}

func TestConnection_Events(t *testing.T) {
	s := newTestServer(t, RateLimitConfig{})
	conn := s.dial(t)

	send(t, conn, "ping", "p1", "")
	pong := read(t, conn)
	assert.Equal(t, MsgTypePong, pong.Type)
	assert.Equal(t, "p1", pong.ID)

	send(t, conn, "register_user", "", `"`+testUser+`"`)
	status := read(t, conn)
	assert.Equal(t, WSMessageType(entity.EventUserStatusUpdate), status.Type)

	send(t, conn, "send_message", "m1", `{"sender":"`+testUser+`","receiver":"`+otherUser+`","content":"Hi"}`)
	id, ack := readAck(t, conn)
	assert.Equal(t, "m1", id)
	assert.Equal(t, in.AckSuccess, ack.Status)

	// 缺少字段：回失败回执，不进入网关
	send(t, conn, "send_message", "m2", `{"sender":"`+testUser+`","content":"Hi"}`)
	id, ack = readAck(t, conn)
	assert.Equal(t, "m2", id)
	assert.Equal(t, in.AckError, ack.Status)
	assert.Equal(t, "Missing message data.", ack.Message)

	send(t, conn, "update_location", "", `{"userId":"`+testUser+`","longitude":1}`)
	assert.Equal(t, "Missing location data.", errorMessage(t, read(t, conn)))

	send(t, conn, "join_room", "", `{}`)
	assert.Equal(t, "unknown event type", errorMessage(t, read(t, conn)))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	assert.Equal(t, "invalid message format", errorMessage(t, read(t, conn)))

	assert.Equal(t, 2, s.gateway.handledCount())
}

func TestConnection_RateLimit(t *testing.T) {
	s := newTestServer(t, RateLimitConfig{Rate: 0.001, Burst: 1})
	conn := s.dial(t)

	send(t, conn, "send_message", "m1", `{"sender":"`+testUser+`","receiver":"`+otherUser+`","content":"Hi"}`)
	_, ack := readAck(t, conn)
	assert.Equal(t, in.AckSuccess, ack.Status)

	send(t, conn, "send_message", "m2", `{"sender":"`+testUser+`","receiver":"`+otherUser+`","content":"Hi"}`)
	id, ack := readAck(t, conn)
	assert.Equal(t, "m2", id)
	assert.Equal(t, in.AckError, ack.Status)
	assert.Equal(t, "rate limit exceeded", ack.Message)

	send(t, conn, "new_report", "", `"`+otherUser+`"`)
	assert.Equal(t, "rate limit exceeded", errorMessage(t, read(t, conn)))

	// ping 不计入限流
	send(t, conn, "ping", "p1", "")
	assert.Equal(t, MsgTypePong, read(t, conn).Type)
}

func TestConnection_Disconnect(t *testing.T) {
	s := newTestServer(t, RateLimitConfig{})
	conn := s.dial(t)

	assert.Eventually(t, func() bool { return s.manager.Count() == 1 }, time.Second, 10*time.Millisecond)
	stats := s.manager.GetStats()
	assert.Equal(t, int64(1), stats["online_users"])

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool {
		return s.manager.Count() == 0 && s.gateway.disconnectedCount() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestTokenBucket(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tb := NewTokenBucket(2, 1)
	tb.now = func() time.Time { return now }
	tb.lastRefill = now

	assert.True(t, tb.Allow())
	assert.True(t, tb.Allow())
	assert.False(t, tb.Allow())

	now = now.Add(time.Second)
	assert.True(t, tb.Allow())
	assert.False(t, tb.Allow())

	// 长时间空闲也不超过容量
	now = now.Add(time.Hour)
	assert.True(t, tb.Allow())
	assert.True(t, tb.Allow())
	assert.False(t, tb.Allow())

	assert.Nil(t, RateLimitConfig{}.newBucket())
	assert.NotNil(t, DefaultRateLimitConfig().newBucket())
}

func TestExtractToken(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws?token=q", nil)
	assert.Equal(t, "q", extractToken(r))

	r.Header.Set("Authorization", "bearer  h ")
	assert.Equal(t, "h", extractToken(r))

	r.Header.Set("Authorization", "Basic abc")
	assert.Equal(t, "q", extractToken(r))
}
