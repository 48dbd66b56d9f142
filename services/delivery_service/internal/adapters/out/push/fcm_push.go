package push

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/EthanQC/roadcast/services/delivery_service/internal/domain/entity"
	"github.com/EthanQC/roadcast/services/delivery_service/internal/ports/out"
)

// messageSender messaging.Client 的子集，测试时替换
type messageSender interface {
	Send(ctx context.Context, message *messaging.Message) (string, error)
}

// FCMPushService Firebase Cloud Messaging 推送
type FCMPushService struct {
	client messageSender
}

// NewFCMPushService credentialsFile 为服务账号 JSON 路径
func NewFCMPushService(ctx context.Context, credentialsFile string) (*FCMPushService, error) {
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("init firebase app failed: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("init firebase messaging failed: %w", err)
	}
	return &FCMPushService{client: client}, nil
}

var _ out.PushService = (*FCMPushService)(nil)

func (s *FCMPushService) Push(ctx context.Context, token string, n *entity.PushNotification) error {
	id, err := s.client.Send(ctx, &messaging.Message{
		Token: token,
		Notification: &messaging.Notification{
			Title: n.Title,
			Body:  n.Body,
		},
		Data: n.Data,
	})
	if err != nil {
		return fmt.Errorf("fcm send failed: %w", err)
	}
	zap.L().Debug("FCM notification sent", zap.String("message_id", id), zap.String("title", n.Title))
	return nil
}

// LogPushService 未配置 FCM 时使用，只记录日志
type LogPushService struct{}

func NewLogPushService() *LogPushService { return &LogPushService{} }

var _ out.PushService = (*LogPushService)(nil)

func (LogPushService) Push(_ context.Context, token string, n *entity.PushNotification) error {
	zap.L().Info("Push notification (log only)",
		zap.String("title", n.Title),
		zap.String("body", n.Body),
		zap.Any("data", n.Data),
		zap.Int("token_len", len(token)))
	return nil
}
