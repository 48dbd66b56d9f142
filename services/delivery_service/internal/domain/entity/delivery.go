package entity

// DeliveryKind 投递内容类型
type DeliveryKind string

const (
	DeliveryKindReport       DeliveryKind = "report"
	DeliveryKindMessage      DeliveryKind = "message"
	DeliveryKindNotification DeliveryKind = "notification"
)

// DeliveryOutcome 单个接收者的投递结果
type DeliveryOutcome string

const (
	DeliveryLocal   DeliveryOutcome = "local"   // 本实例直接下发
	DeliveryRemote  DeliveryOutcome = "remote"  // 连接在其他实例，由中继负责
	DeliveryPushed  DeliveryOutcome = "pushed"  // 离线推送成功
	DeliveryDropped DeliveryOutcome = "dropped" // 离线且无推送令牌
	DeliveryFailed  DeliveryOutcome = "failed"
)

// Delivery 待投递给某个用户的内容
type Delivery struct {
	Kind    DeliveryKind
	Event   string
	Payload []byte
	Push    *PushNotification
}

// PushNotification 推送通知
type PushNotification struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data"`
}
