package out

import "context"

// RelayHandler 处理收到的中继消息
type RelayHandler func(ctx context.Context, channel string, payload []byte)

// RelayBus 实例间的发布订阅总线，负载原样传递
type RelayBus interface {
	// Publish 发布，不等待投递结果
	Publish(ctx context.Context, channel string, payload []byte) error
	// Subscribe 订阅频道，返回后消息在后台交给 handler，直到 ctx 取消或 Close
	Subscribe(ctx context.Context, channels []string, handler RelayHandler) error
	// Close 关闭
	Close() error
}
