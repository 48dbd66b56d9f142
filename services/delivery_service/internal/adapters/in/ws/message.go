package ws

import (
	"encoding/json"
	"time"
)

// WSMessageType WebSocket消息类型
type WSMessageType string

const (
	// 客户端心跳
	MsgTypePing WSMessageType = "ping"

	// 服务端消息类型
	MsgTypePong WSMessageType = "pong"
	MsgTypeAck  WSMessageType = "ack" // 请求回执，ID 与请求相同
)

// WSMessage WebSocket消息，上下行共用
type WSMessage struct {
	Type WSMessageType   `json:"type"`
	ID   string          `json:"id,omitempty"` // 请求ID，用于回执
	Data json.RawMessage `json:"data,omitempty"`
	Ts   int64           `json:"ts,omitempty"` // 毫秒时间戳
}

func newMessage(t WSMessageType, id string, data []byte) WSMessage {
	return WSMessage{Type: t, ID: id, Data: data, Ts: time.Now().UnixMilli()}
}
