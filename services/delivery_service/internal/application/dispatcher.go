package application

import (
	"context"

	"github.com/EthanQC/roadcast/pkg/zlog"
	"github.com/EthanQC/roadcast/services/delivery_service/internal/domain/entity"
	"github.com/EthanQC/roadcast/services/delivery_service/internal/metrics"
	"github.com/EthanQC/roadcast/services/delivery_service/internal/ports/in"
	"github.com/EthanQC/roadcast/services/delivery_service/internal/ports/out"
)

// DispatcherImpl 单个接收者的投递：在线直发，离线推送
type DispatcherImpl struct {
	registry    in.PresenceRegistry
	connManager out.ConnectionManager
	pushService out.PushService
}

func NewDispatcher(
	registry in.PresenceRegistry,
	connManager out.ConnectionManager,
	pushService out.PushService,
) in.DispatcherUseCase {
	return &DispatcherImpl{
		registry:    registry,
		connManager: connManager,
		pushService: pushService,
	}
}

// Deliver 投递，任何失败都只记录日志
func (d *DispatcherImpl) Deliver(ctx context.Context, recipient string, dl *entity.Delivery) entity.DeliveryOutcome {
	outcome := d.deliver(ctx, recipient, dl)
	metrics.DispatchTotal.WithLabelValues(string(dl.Kind), string(outcome)).Inc()
	return outcome
}

func (d *DispatcherImpl) deliver(ctx context.Context, recipient string, dl *entity.Delivery) entity.DeliveryOutcome {
	log := zlog.C(ctx).With(zlog.String("recipient", recipient), zlog.String("kind", string(dl.Kind)))

	connID, err := d.registry.Lookup(ctx, recipient)
	if err != nil {
		log.Warn("lookup recipient failed", zlog.Err(err))
		return entity.DeliveryFailed
	}

	if connID != "" {
		conn, ok := d.connManager.Get(connID)
		if !ok {
			// 连接在其他实例，由中继负责
			return entity.DeliveryRemote
		}
		if err := conn.Emit(dl.Event, dl.Payload); err != nil {
			log.Warn("emit to local connection failed", zlog.String("conn_id", connID), zlog.Err(err))
			return entity.DeliveryFailed
		}
		return entity.DeliveryLocal
	}

	// 离线
	token, err := d.registry.GetPushToken(ctx, recipient)
	if err != nil {
		log.Warn("get push token failed", zlog.Err(err))
		return entity.DeliveryFailed
	}
	if token == "" || dl.Push == nil {
		log.Info("recipient offline without push token, dropped")
		return entity.DeliveryDropped
	}

	if err := d.pushService.Push(ctx, token, dl.Push); err != nil {
		log.Warn("send push notification failed", zlog.Err(err))
		return entity.DeliveryFailed
	}
	return entity.DeliveryPushed
}

// EmitLocal 中继收到定向消息时使用，不触发推送
func (d *DispatcherImpl) EmitLocal(ctx context.Context, recipient, event string, payload []byte) bool {
	connID, err := d.registry.Lookup(ctx, recipient)
	if err != nil || connID == "" {
		return false
	}
	conn, ok := d.connManager.Get(connID)
	if !ok {
		return false
	}
	if err := conn.Emit(event, payload); err != nil {
		zlog.C(ctx).Warn("emit relayed event failed",
			zlog.String("recipient", recipient), zlog.String("event", event), zlog.Err(err))
		return false
	}
	return true
}
