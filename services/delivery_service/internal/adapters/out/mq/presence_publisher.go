package mq

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/EthanQC/roadcast/services/delivery_service/internal/domain/entity"
	"github.com/EthanQC/roadcast/services/delivery_service/internal/ports/out"
)

// TopicPresenceChanged 默认的在线状态变更 topic
const TopicPresenceChanged = "roadcast.presence.changed"

// messageWriter kafka.Writer 的子集
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// PresencePublisherKafka 使用 segmentio/kafka-go 发布在线状态变更
type PresencePublisherKafka struct {
	writer messageWriter
}

func NewPresenceWriter(brokers []string, topic string) *kafka.Writer {
	if topic == "" {
		topic = TopicPresenceChanged
	}
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		// 异步写入
		Async: true,
	}
}

func NewPresencePublisherKafka(w *kafka.Writer) *PresencePublisherKafka {
	return &PresencePublisherKafka{writer: w}
}

var _ out.PresenceEventPublisher = (*PresencePublisherKafka)(nil)

// PublishPresenceChange 以 user_id 为 key，同一用户的事件落在同一分区
func (p *PresencePublisherKafka) PublishPresenceChange(ctx context.Context, event *entity.PresenceEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal presence event failed: %w", err)
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.UserID),
		Value: data,
	})
}

func (p *PresencePublisherKafka) Close() error {
	return p.writer.Close()
}
