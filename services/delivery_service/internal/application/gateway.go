package application

import (
	"context"
	"encoding/json"
	"time"

	"github.com/EthanQC/roadcast/pkg/zlog"
	"github.com/EthanQC/roadcast/services/delivery_service/internal/domain/entity"
	"github.com/EthanQC/roadcast/services/delivery_service/internal/domain/event"
	"github.com/EthanQC/roadcast/services/delivery_service/internal/ports/in"
	"github.com/EthanQC/roadcast/services/delivery_service/internal/ports/out"
)

// 处理失败时返回给客户端的信息
const (
	msgRegisterFailed     = "Failed to register user."
	msgFCMTokenFailed     = "Failed to register FCM token."
	msgLocationFailed     = "Failed to update location."
	msgReportNotFound     = "Report not found."
	msgReportFailed       = "Failed to broadcast report."
	msgMessageFailed      = "Failed to send message."
	msgNotificationFailed = "Failed to send notification."
	msgNotificationSent   = "Notification sent."
)

// GatewayConfig 地理查询参数
type GatewayConfig struct {
	NearbyRadius   float64 // 上线/上报位置时推送附近路况的半径（米）
	NearbyLimit    int
	AudienceRadius float64 // 新路况的受众半径（米）
	AudienceLimit  int     // 0 表示不限
}

func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		NearbyRadius:   5000,
		NearbyLimit:    10,
		AudienceRadius: 5000,
		AudienceLimit:  0,
	}
}

// GatewayDeps 网关依赖
type GatewayDeps struct {
	Registry         in.PresenceRegistry
	Dispatcher       in.DispatcherUseCase
	Relay            *RelayFanout
	ConnManager      out.ConnectionManager
	Matcher          out.GeoMatcher
	LocationRepo     out.LocationRepository
	ReportRepo       out.ReportRepository
	MessageRepo      out.MessageRepository
	NotificationRepo out.NotificationRepository

	// PresencePublisher 可选
	PresencePublisher out.PresenceEventPublisher
}

// GatewayImpl 连接事件处理
type GatewayImpl struct {
	GatewayDeps
	config GatewayConfig
	now    func() time.Time
}

func NewGateway(deps GatewayDeps, config GatewayConfig) *GatewayImpl {
	return &GatewayImpl{GatewayDeps: deps, config: config, now: time.Now}
}

var _ in.GatewayUseCase = (*GatewayImpl)(nil)

// Handle 按事件类型分发
func (g *GatewayImpl) Handle(ctx context.Context, conn out.Connection, ev event.Inbound) *in.Ack {
	switch e := ev.(type) {
	case event.RegisterUser:
		g.registerUser(ctx, conn, e)
	case event.RegisterFCMToken:
		g.registerFCMToken(ctx, conn, e)
	case event.UpdateLocation:
		g.updateLocation(ctx, conn, e)
	case event.NewReport:
		g.newReport(ctx, conn, e)
	case event.SendMessage:
		return g.sendMessage(ctx, e)
	case event.SendNotification:
		return g.sendNotification(ctx, e)
	default:
		g.emitError(ctx, conn, event.MsgUnknownEvent)
	}
	return nil
}

// registerUser 上线
func (g *GatewayImpl) registerUser(ctx context.Context, conn out.Connection, e event.RegisterUser) {
	if err := g.Registry.Register(ctx, e.UserID, conn.ID()); err != nil {
		zlog.C(ctx).Error("register user failed", zlog.String("user_id", e.UserID), zlog.Err(err))
		g.emitError(ctx, conn, msgRegisterFailed)
		return
	}
	zlog.C(ctx).Info("user registered", zlog.String("user_id", e.UserID))

	g.announce(ctx, e.UserID, conn.ID(), entity.PresenceStatusOnline)

	pin, err := g.LocationRepo.GetByUserID(ctx, e.UserID)
	if err != nil {
		zlog.C(ctx).Warn("load last location failed", zlog.String("user_id", e.UserID), zlog.Err(err))
		return
	}
	if pin == nil {
		return
	}
	if err := g.emitNearby(ctx, conn, pin.Point); err != nil {
		zlog.C(ctx).Warn("emit nearby reports failed", zlog.String("user_id", e.UserID), zlog.Err(err))
	}
}

func (g *GatewayImpl) registerFCMToken(ctx context.Context, conn out.Connection, e event.RegisterFCMToken) {
	if err := g.Registry.SetPushToken(ctx, e.UserID, e.Token); err != nil {
		zlog.C(ctx).Error("register push token failed", zlog.String("user_id", e.UserID), zlog.Err(err))
		g.emitError(ctx, conn, msgFCMTokenFailed)
		return
	}
	zlog.C(ctx).Debug("push token registered", zlog.String("user_id", e.UserID))
}

// updateLocation 保存位置，广播给其他用户，并推送附近路况给本人
func (g *GatewayImpl) updateLocation(ctx context.Context, conn out.Connection, e event.UpdateLocation) {
	pin := &entity.LocationPin{UserID: e.UserID, Point: e.Point, UpdatedAt: g.now()}
	if err := g.LocationRepo.Upsert(ctx, pin); err != nil {
		zlog.C(ctx).Error("save location failed", zlog.String("user_id", e.UserID), zlog.Err(err))
		g.emitError(ctx, conn, msgLocationFailed)
		return
	}

	payload, err := json.Marshal(entity.LocationUpdate{
		UserID:    e.UserID,
		Latitude:  e.Point.Lat,
		Longitude: e.Point.Lng,
	})
	if err == nil {
		g.Relay.Publish(ctx, entity.ChannelLocation, "", payload)
	}

	if err := g.emitNearby(ctx, conn, e.Point); err != nil {
		zlog.C(ctx).Error("find nearby reports failed", zlog.String("user_id", e.UserID), zlog.Err(err))
		g.emitError(ctx, conn, msgLocationFailed)
	}
}

// newReport 把路况推送给附近的用户
func (g *GatewayImpl) newReport(ctx context.Context, conn out.Connection, e event.NewReport) {
	log := zlog.C(ctx).With(zlog.String("report_id", e.ReportID))

	report, err := g.ReportRepo.GetByID(ctx, e.ReportID)
	if err != nil {
		log.Error("load report failed", zlog.Err(err))
		g.emitError(ctx, conn, msgReportFailed)
		return
	}
	if report == nil {
		g.emitError(ctx, conn, msgReportNotFound)
		return
	}

	audience, err := g.Matcher.FindPinsNear(ctx, report.Point, g.config.AudienceRadius, g.config.AudienceLimit)
	if err != nil {
		log.Error("find report audience failed", zlog.Err(err))
		g.emitError(ctx, conn, msgReportFailed)
		return
	}

	payload, err := json.Marshal(report.View())
	if err != nil {
		log.Error("marshal report failed", zlog.Err(err))
		g.emitError(ctx, conn, msgReportFailed)
		return
	}
	g.Relay.Publish(ctx, entity.ChannelReport, "", payload)

	delivery := &entity.Delivery{
		Kind:    entity.DeliveryKindReport,
		Event:   entity.EventNearbyReport,
		Payload: payload,
		Push:    report.PushNotification(),
	}
	for _, pin := range audience {
		g.Dispatcher.Deliver(ctx, pin.UserID, delivery)
	}
	log.Info("report dispatched", zlog.Int("audience", len(audience)))
}

// sendMessage 私信，需要回执
func (g *GatewayImpl) sendMessage(ctx context.Context, e event.SendMessage) *in.Ack {
	msg := &entity.Message{
		ID:        entity.NewID(),
		Sender:    e.Sender,
		Receiver:  e.Receiver,
		Content:   e.Content,
		MediaURL:  e.MediaURL,
		CreatedAt: g.now().UTC(),
	}
	if err := g.MessageRepo.Create(ctx, msg); err != nil {
		zlog.C(ctx).Error("save message failed", zlog.String("sender", e.Sender), zlog.Err(err))
		return in.AckFail(msgMessageFailed)
	}

	view := msg.Payload()
	payload, err := json.Marshal(view)
	if err != nil {
		return in.AckFail(msgMessageFailed)
	}
	g.Relay.Publish(ctx, entity.ChannelChat, msg.Receiver, payload)
	g.Dispatcher.Deliver(ctx, msg.Receiver, &entity.Delivery{
		Kind:    entity.DeliveryKindMessage,
		Event:   entity.EventNewMessage,
		Payload: payload,
		Push:    msg.PushNotification(),
	})
	return in.AckOK(view)
}

// sendNotification 通知，需要回执
func (g *GatewayImpl) sendNotification(ctx context.Context, e event.SendNotification) *in.Ack {
	n := &entity.Notification{
		ID:        entity.NewID(),
		UserID:    e.UserID,
		Title:     e.Title,
		Body:      e.Message,
		CreatedAt: g.now().UTC(),
	}
	if err := g.NotificationRepo.Create(ctx, n); err != nil {
		zlog.C(ctx).Error("save notification failed", zlog.String("user_id", e.UserID), zlog.Err(err))
		return in.AckFail(msgNotificationFailed)
	}

	payload, err := json.Marshal(n.Payload())
	if err != nil {
		return in.AckFail(msgNotificationFailed)
	}
	g.Relay.Publish(ctx, entity.ChannelNotification, n.UserID, payload)
	g.Dispatcher.Deliver(ctx, n.UserID, &entity.Delivery{
		Kind:    entity.DeliveryKindNotification,
		Event:   entity.EventReceiveNotification,
		Payload: payload,
		Push:    n.PushNotification(),
	})
	return in.AckOK(msgNotificationSent)
}

// Disconnect 清理在线状态，已被新连接接管时不广播离线
func (g *GatewayImpl) Disconnect(ctx context.Context, conn out.Connection) {
	userID, offline, err := g.Registry.Remove(ctx, conn.ID())
	if err != nil {
		zlog.C(ctx).Error("remove presence failed", zlog.String("conn_id", conn.ID()), zlog.Err(err))
		return
	}
	if userID == "" {
		return
	}
	if !offline {
		zlog.C(ctx).Debug("connection superseded, skip offline", zlog.String("user_id", userID))
		return
	}
	zlog.C(ctx).Info("user offline", zlog.String("user_id", userID))
	g.announce(ctx, userID, conn.ID(), entity.PresenceStatusOffline)
}

// announce 本实例广播 + 中继 + 可选的 Kafka 事件
func (g *GatewayImpl) announce(ctx context.Context, userID, connID string, status entity.PresenceStatus) {
	payload, err := json.Marshal(entity.StatusUpdate{UserID: userID, Status: status})
	if err != nil {
		return
	}
	g.ConnManager.Broadcast(entity.EventUserStatusUpdate, payload)
	g.Relay.Publish(ctx, entity.ChannelPresence, "", payload)

	if g.PresencePublisher == nil {
		return
	}
	err = g.PresencePublisher.PublishPresenceChange(ctx, &entity.PresenceEvent{
		UserID:     userID,
		Status:     status,
		ConnID:     connID,
		InstanceID: g.Relay.InstanceID(),
		Timestamp:  g.now(),
	})
	if err != nil {
		zlog.C(ctx).Warn("publish presence event failed", zlog.String("user_id", userID), zlog.Err(err))
	}
}

// emitNearby 附近路况只发给当前连接
func (g *GatewayImpl) emitNearby(ctx context.Context, conn out.Connection, point entity.GeoPoint) error {
	reports, err := g.Matcher.FindReportsNear(ctx, point, g.config.NearbyRadius, g.config.NearbyLimit)
	if err != nil {
		return err
	}
	for _, r := range reports {
		payload, err := json.Marshal(r.View())
		if err != nil {
			continue
		}
		if err := conn.Emit(entity.EventNearbyReport, payload); err != nil {
			return err
		}
	}
	return nil
}

func (g *GatewayImpl) emitError(ctx context.Context, conn out.Connection, msg string) {
	payload, _ := json.Marshal(entity.ErrorEvent{Message: msg})
	if err := conn.Emit(entity.EventError, payload); err != nil {
		zlog.C(ctx).Debug("emit error event failed", zlog.String("conn_id", conn.ID()), zlog.Err(err))
	}
}
