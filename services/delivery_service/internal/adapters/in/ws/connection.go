package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/EthanQC/roadcast/pkg/zlog"
	"github.com/EthanQC/roadcast/services/delivery_service/internal/domain/entity"
	"github.com/EthanQC/roadcast/services/delivery_service/internal/domain/event"
	"github.com/EthanQC/roadcast/services/delivery_service/internal/metrics"
	"github.com/EthanQC/roadcast/services/delivery_service/internal/ports/in"
	"github.com/EthanQC/roadcast/services/delivery_service/internal/ports/out"
)

const (
	// 写超时
	writeWait = 10 * time.Second
	// Pong等待时间
	pongWait = 60 * time.Second
	// Ping周期（必须小于pongWait）
	pingPeriod = 30 * time.Second
	// 最大消息大小
	maxMessageSize = 64 * 1024
	// 发送缓冲
	sendBufferSize = 256
	// 待处理的上行事件
	inboxSize = 64
)

const (
	msgRateLimited   = "rate limit exceeded"
	msgServerBusy    = "server busy"
	msgInvalidFormat = "invalid message format"
	msgInternal      = "internal error"
)

var (
	ErrConnClosed = errors.New("connection closed")
	ErrSendFull   = errors.New("send buffer full")
)

// WSConnection 一个已认证的 WebSocket 连接
// 读协程只负责收包，事件由 serve 协程按到达顺序逐个处理，写协程串行写出
type WSConnection struct {
	conn        *websocket.Conn
	id          string
	userID      string
	connectedAt time.Time

	send   chan []byte
	inbox  chan WSMessage
	done   chan struct{}
	closed int32

	limiter     *TokenBucket
	gateway     in.GatewayUseCase
	connManager *ConnectionManager
}

func NewWSConnection(
	conn *websocket.Conn,
	connID, userID string,
	gateway in.GatewayUseCase,
	connManager *ConnectionManager,
	limiter *TokenBucket,
) *WSConnection {
	return &WSConnection{
		conn:        conn,
		id:          connID,
		userID:      userID,
		connectedAt: time.Now(),
		send:        make(chan []byte, sendBufferSize),
		inbox:       make(chan WSMessage, inboxSize),
		done:        make(chan struct{}),
		limiter:     limiter,
		gateway:     gateway,
		connManager: connManager,
	}
}

var _ out.Connection = (*WSConnection)(nil)

func (c *WSConnection) ID() string { return c.id }

func (c *WSConnection) UserID() string { return c.userID }

// Emit 下发服务端事件
func (c *WSConnection) Emit(event string, payload []byte) error {
	return c.sendJSON(newMessage(WSMessageType(event), "", payload))
}

func (c *WSConnection) Send(message []byte) error {
	if c.IsClosed() {
		return ErrConnClosed
	}
	select {
	case <-c.done:
		return ErrConnClosed
	case c.send <- message:
		return nil
	default:
		return ErrSendFull
	}
}

func (c *WSConnection) Close() error {
	if !atomic.CompareAndSwapInt32(&c.closed, 0, 1) {
		return nil
	}
	close(c.done)
	return c.conn.Close()
}

func (c *WSConnection) IsClosed() bool {
	return atomic.LoadInt32(&c.closed) == 1
}

// Start 启动读、写、处理三个协程
func (c *WSConnection) Start() {
	go c.WritePump()
	go c.serve()
	go c.ReadPump()
}

// ReadPump 读取消息放入 inbox，连接断开后关闭 inbox
func (c *WSConnection) ReadPump() {
	defer close(c.inbox)

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				zap.L().Warn("WebSocket error", zap.String("connID", c.id), zap.Error(err))
			}
			return
		}

		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.sendError(msgInvalidFormat)
			continue
		}

		if msg.Type == MsgTypePing {
			_ = c.sendJSON(newMessage(MsgTypePong, msg.ID, nil))
			continue
		}

		if c.limiter != nil && !c.limiter.Allow() {
			metrics.EventsTotal.WithLabelValues(string(msg.Type), "rate_limited").Inc()
			c.reject(msg, msgRateLimited)
			continue
		}

		select {
		case c.inbox <- msg:
		case <-c.done:
			return
		default:
			c.reject(msg, msgServerBusy)
		}
	}
}

// WritePump 写入消息并定时发送 ping
func (c *WSConnection) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				zap.L().Warn("Write error", zap.String("connID", c.id), zap.Error(err))
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// serve 顺序处理上行事件，inbox 关闭后清理
func (c *WSConnection) serve() {
	ctx := zlog.With(context.Background(),
		zlog.String("conn_id", c.id),
		zlog.String("auth_user_id", c.userID))

	for msg := range c.inbox {
		c.dispatch(ctx, msg)
	}
	c.cleanup(ctx)
}

func (c *WSConnection) dispatch(ctx context.Context, msg WSMessage) {
	t := event.Type(msg.Type)
	ev, err := event.Decode(t, msg.Data)
	if err != nil {
		metrics.EventsTotal.WithLabelValues(string(msg.Type), "invalid").Inc()
		c.reject(msg, entity.ClientMessage(err, event.MsgUnknownEvent))
		return
	}

	ack := c.gateway.Handle(ctx, c, ev)
	metrics.EventsTotal.WithLabelValues(string(msg.Type), "handled").Inc()
	if !t.NeedsAck() {
		return
	}
	if ack == nil {
		ack = in.AckFail(msgInternal)
	}
	c.writeAck(msg.ID, ack)
}

// reject 需要回执的事件回失败回执，其他事件回 error_event
func (c *WSConnection) reject(msg WSMessage, reason string) {
	if event.Type(msg.Type).NeedsAck() {
		c.writeAck(msg.ID, in.AckFail(reason))
		return
	}
	c.sendError(reason)
}

func (c *WSConnection) writeAck(id string, ack *in.Ack) {
	data, err := json.Marshal(ack)
	if err != nil {
		zap.L().Error("Marshal ack failed", zap.String("connID", c.id), zap.Error(err))
		return
	}
	if err := c.sendJSON(newMessage(MsgTypeAck, id, data)); err != nil {
		zap.L().Debug("Write ack failed", zap.String("connID", c.id), zap.Error(err))
	}
}

func (c *WSConnection) cleanup(ctx context.Context) {
	c.connManager.Unregister(c.id)
	c.gateway.Disconnect(ctx, c)
	_ = c.Close()

	zap.L().Info("Connection cleanup",
		zap.String("connID", c.id),
		zap.String("userID", c.userID),
		zap.Duration("duration", time.Since(c.connectedAt)))
}

func (c *WSConnection) sendJSON(msg WSMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return c.Send(data)
}

func (c *WSConnection) sendError(errMsg string) {
	data, _ := json.Marshal(entity.ErrorEvent{Message: errMsg})
	_ = c.sendJSON(newMessage(WSMessageType(entity.EventError), "", data))
}
