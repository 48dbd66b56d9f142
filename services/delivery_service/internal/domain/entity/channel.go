package entity

import "encoding/json"

// 服务端下发的事件名
const (
	EventUserStatusUpdate    = "user_status_update"
	EventNearbyReport        = "nearby_report"
	EventLocationUpdate      = "location_update"
	EventChat                = "chat"
	EventNewMessage          = "new_message"
	EventReceiveNotification = "receive_notification"
	EventError               = "error_event"
)

// Channel 中继频道
type Channel struct {
	Name string
	// Broadcast 收到中继消息后对本实例全部连接广播的事件名
	Broadcast string
	// Direct 定向投递给接收者的事件名，为空表示没有定向投递
	Direct string
	// SkipOrigin 发出实例不再重复广播
	SkipOrigin bool
}

var (
	ChannelLocation     = Channel{Name: "location_updates", Broadcast: EventLocationUpdate}
	ChannelChat         = Channel{Name: "chat_channel", Broadcast: EventChat, Direct: EventNewMessage}
	ChannelNotification = Channel{Name: "notification_channel", Broadcast: EventReceiveNotification, Direct: EventReceiveNotification}
	ChannelReport       = Channel{Name: "report_channel", Broadcast: EventNearbyReport, Direct: EventNearbyReport}
	ChannelPresence     = Channel{Name: "presence_channel", Broadcast: EventUserStatusUpdate, SkipOrigin: true}
)

// Channels 订阅的全部频道
func Channels() []Channel {
	return []Channel{ChannelLocation, ChannelChat, ChannelNotification, ChannelReport, ChannelPresence}
}

// ChannelByName 按名称查找频道
func ChannelByName(name string) (Channel, bool) {
	for _, ch := range Channels() {
		if ch.Name == name {
			return ch, true
		}
	}
	return Channel{}, false
}

// RelayEnvelope 中继消息外壳，Payload 原样下发给客户端
type RelayEnvelope struct {
	Origin  string          `json:"origin"`
	Target  string          `json:"target,omitempty"`
	Payload json.RawMessage `json:"payload"`
}

// ErrorEvent error_event 负载
type ErrorEvent struct {
	Message string `json:"message"`
}
