package out

import (
	"context"

	"github.com/EthanQC/roadcast/services/delivery_service/internal/domain/entity"
)

// Connection 本实例持有的客户端连接
type Connection interface {
	// ID 连接ID
	ID() string
	// UserID 握手时认证的用户
	UserID() string
	// Emit 下发事件，payload 原样写入
	Emit(event string, payload []byte) error
	// Close 关闭连接
	Close() error
}

// ConnectionManager 本实例连接表
type ConnectionManager interface {
	Register(conn Connection)
	Unregister(connID string)
	Get(connID string) (Connection, bool)
	// Broadcast 下发给本实例全部连接
	Broadcast(event string, payload []byte)
	Count() int
}

// PushService 推送服务接口
type PushService interface {
	// Push 向设备令牌推送通知
	Push(ctx context.Context, token string, notification *entity.PushNotification) error
}

// TokenVerifier 握手令牌校验
type TokenVerifier interface {
	// Verify 返回 entity.ErrMissingToken / ErrInvalidToken / ErrExpiredToken
	Verify(token string) (*entity.Identity, error)
}

// PresenceEventPublisher 在线状态变更事件发布
type PresenceEventPublisher interface {
	PublishPresenceChange(ctx context.Context, event *entity.PresenceEvent) error
	Close() error
}
