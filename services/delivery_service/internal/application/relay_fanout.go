package application

import (
	"context"
	"encoding/json"

	"github.com/EthanQC/roadcast/pkg/zlog"
	"github.com/EthanQC/roadcast/services/delivery_service/internal/domain/entity"
	"github.com/EthanQC/roadcast/services/delivery_service/internal/metrics"
	"github.com/EthanQC/roadcast/services/delivery_service/internal/ports/in"
	"github.com/EthanQC/roadcast/services/delivery_service/internal/ports/out"
)

// RelayFanout 跨实例中继：发布时套上外壳，收到后向本实例连接广播
type RelayFanout struct {
	bus         out.RelayBus
	connManager out.ConnectionManager
	dispatcher  in.DispatcherUseCase
	instanceID  string
}

func NewRelayFanout(
	bus out.RelayBus,
	connManager out.ConnectionManager,
	dispatcher in.DispatcherUseCase,
	instanceID string,
) *RelayFanout {
	return &RelayFanout{
		bus:         bus,
		connManager: connManager,
		dispatcher:  dispatcher,
		instanceID:  instanceID,
	}
}

// InstanceID 本实例标识
func (f *RelayFanout) InstanceID() string { return f.instanceID }

// Start 订阅全部频道
func (f *RelayFanout) Start(ctx context.Context) error {
	channels := entity.Channels()
	names := make([]string, 0, len(channels))
	for _, ch := range channels {
		names = append(names, ch.Name)
	}
	return f.bus.Subscribe(ctx, names, f.handle)
}

// Publish 发布到频道，target 非空时接收实例会定向投递；失败只记录日志
func (f *RelayFanout) Publish(ctx context.Context, ch entity.Channel, target string, payload []byte) {
	data, err := json.Marshal(entity.RelayEnvelope{
		Origin:  f.instanceID,
		Target:  target,
		Payload: payload,
	})
	if err != nil {
		zlog.C(ctx).Error("marshal relay envelope failed", zlog.String("channel", ch.Name), zlog.Err(err))
		return
	}

	if err := f.bus.Publish(ctx, ch.Name, data); err != nil {
		metrics.RelayPublished.WithLabelValues(ch.Name, "error").Inc()
		zlog.C(ctx).Warn("relay publish failed", zlog.String("channel", ch.Name), zlog.Err(err))
		return
	}
	metrics.RelayPublished.WithLabelValues(ch.Name, "ok").Inc()
}

func (f *RelayFanout) handle(ctx context.Context, channel string, data []byte) {
	ch, ok := entity.ChannelByName(channel)
	if !ok {
		zlog.C(ctx).Debug("relay message on unknown channel", zlog.String("channel", channel))
		return
	}

	var env entity.RelayEnvelope
	if err := json.Unmarshal(data, &env); err != nil || len(env.Payload) == 0 {
		zlog.C(ctx).Warn("drop malformed relay message", zlog.String("channel", channel), zlog.Err(err))
		return
	}
	metrics.RelayReceived.WithLabelValues(channel).Inc()

	fromSelf := env.Origin == f.instanceID
	if !(ch.SkipOrigin && fromSelf) {
		f.connManager.Broadcast(ch.Broadcast, env.Payload)
	}

	// 接收者在本实例时补发定向事件
	if env.Target != "" && !fromSelf && ch.Direct != "" && ch.Direct != ch.Broadcast {
		f.dispatcher.EmitLocal(ctx, env.Target, ch.Direct, env.Payload)
	}
}
