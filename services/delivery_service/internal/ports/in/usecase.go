package in

import (
	"context"

	"github.com/EthanQC/roadcast/services/delivery_service/internal/domain/entity"
	"github.com/EthanQC/roadcast/services/delivery_service/internal/domain/event"
	"github.com/EthanQC/roadcast/services/delivery_service/internal/ports/out"
)

// PresenceRegistry 在线状态登记
type PresenceRegistry interface {
	// Register 原子写入正向、反向映射和在线状态，后写者覆盖
	Register(ctx context.Context, userID, connID string) error
	// Remove 移除连接，返回对应用户；offline 为 false 表示用户已被更新的连接接管
	Remove(ctx context.Context, connID string) (userID string, offline bool, err error)
	// Lookup 返回用户当前连接，不存在时为空
	Lookup(ctx context.Context, userID string) (string, error)
	Status(ctx context.Context, userID string) (entity.PresenceStatus, error)
	SetPushToken(ctx context.Context, userID, token string) error
	// GetPushToken 不存在时为空
	GetPushToken(ctx context.Context, userID string) (string, error)
}

// DispatcherUseCase 单个接收者的投递
type DispatcherUseCase interface {
	// Deliver 本地下发或离线推送，推送失败只记录日志
	Deliver(ctx context.Context, recipient string, d *entity.Delivery) entity.DeliveryOutcome
	// EmitLocal 接收者连接在本实例时直接下发，否则什么都不做
	EmitLocal(ctx context.Context, recipient, event string, payload []byte) bool
}

// AckStatus 回执状态
type AckStatus string

const (
	AckSuccess AckStatus = "success"
	AckError   AckStatus = "error"
)

// Ack 请求回执
type Ack struct {
	Status  AckStatus `json:"status"`
	Message any       `json:"message"`
}

func AckOK(message any) *Ack { return &Ack{Status: AckSuccess, Message: message} }

func AckFail(message string) *Ack { return &Ack{Status: AckError, Message: message} }

// GatewayUseCase 连接事件处理
type GatewayUseCase interface {
	// Handle 处理一个上行事件，需要回执的事件返回非 nil 的 Ack
	Handle(ctx context.Context, conn out.Connection, ev event.Inbound) *Ack
	// Disconnect 连接关闭后清理在线状态
	Disconnect(ctx context.Context, conn out.Connection)
}

// PresenceQuery 在线状态查询
type PresenceQuery interface {
	GetPresence(ctx context.Context, userID string) (*entity.PresenceView, error)
}
