package entity

import "time"

// PresenceStatus 在线状态
type PresenceStatus string

const (
	PresenceStatusOnline  PresenceStatus = "online"
	PresenceStatusOffline PresenceStatus = "offline"
)

// StatusUpdate user_status_update 事件负载
type StatusUpdate struct {
	UserID string         `json:"userId"`
	Status PresenceStatus `json:"status"`
}

// PresenceEvent 在线状态变更事件，发往 Kafka
type PresenceEvent struct {
	UserID     string         `json:"user_id"`
	Status     PresenceStatus `json:"status"`
	ConnID     string         `json:"conn_id,omitempty"`
	InstanceID string         `json:"instance_id"`
	Timestamp  time.Time      `json:"timestamp"`
}

// PresenceView 在线状态查询结果
type PresenceView struct {
	UserID string         `json:"userId"`
	Online bool           `json:"online"`
	Status PresenceStatus `json:"status"`
}
