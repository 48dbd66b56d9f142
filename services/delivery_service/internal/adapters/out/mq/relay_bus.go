package mq

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/EthanQC/roadcast/services/delivery_service/internal/ports/out"
)

const subscribeTimeout = 30 * time.Second

// KafkaRelayConfig Kafka 中继配置
type KafkaRelayConfig struct {
	Brokers     []string
	TopicPrefix string // 频道名加前缀即为 topic
	GroupPrefix string // 每个实例一个消费组：GroupPrefix + "." + InstanceID
	InstanceID  string
}

// KafkaRelayBus 基于 Kafka 的中继，每个实例独立消费组，保证每条消息各实例都能收到
type KafkaRelayBus struct {
	config   KafkaRelayConfig
	producer sarama.SyncProducer
	saramaCf *sarama.Config

	mu     sync.Mutex
	groups []sarama.ConsumerGroup
	cancel []context.CancelFunc
	wg     sync.WaitGroup
}

func newSaramaConfig() *sarama.Config {
	config := sarama.NewConfig()
	config.Version = sarama.V2_8_0_0
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Retry.Max = 3
	config.Consumer.Group.Rebalance.Strategy = sarama.NewBalanceStrategyRoundRobin()
	// 中继只关心订阅之后的消息
	config.Consumer.Offsets.Initial = sarama.OffsetNewest
	config.Consumer.Return.Errors = true
	return config
}

func NewKafkaRelayBus(config KafkaRelayConfig) (*KafkaRelayBus, error) {
	saramaCf := newSaramaConfig()
	producer, err := sarama.NewSyncProducer(config.Brokers, saramaCf)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer failed: %w", err)
	}
	return &KafkaRelayBus{config: config, producer: producer, saramaCf: saramaCf}, nil
}

var _ out.RelayBus = (*KafkaRelayBus)(nil)

func (b *KafkaRelayBus) topic(channel string) string { return b.config.TopicPrefix + channel }

func (b *KafkaRelayBus) channel(topic string) string {
	return strings.TrimPrefix(topic, b.config.TopicPrefix)
}

// Publish 来源实例由信封携带
func (b *KafkaRelayBus) Publish(_ context.Context, channel string, payload []byte) error {
	_, _, err := b.producer.SendMessage(&sarama.ProducerMessage{
		Topic:     b.topic(channel),
		Value:     sarama.ByteEncoder(payload),
		Timestamp: time.Now(),
	})
	return err
}

// Subscribe 消费组就绪后返回
func (b *KafkaRelayBus) Subscribe(ctx context.Context, channels []string, handler out.RelayHandler) error {
	groupID := b.config.GroupPrefix + "." + b.config.InstanceID
	group, err := sarama.NewConsumerGroup(b.config.Brokers, groupID, b.saramaCf)
	if err != nil {
		return fmt.Errorf("create consumer group failed: %w", err)
	}

	topics := make([]string, len(channels))
	for i, c := range channels {
		topics[i] = b.topic(c)
	}

	ctx, cancel := context.WithCancel(ctx)
	b.mu.Lock()
	b.groups = append(b.groups, group)
	b.cancel = append(b.cancel, cancel)
	b.mu.Unlock()

	h := &relayGroupHandler{bus: b, handler: handler, ready: make(chan struct{})}

	b.wg.Add(2)
	go func() {
		defer b.wg.Done()
		for err := range group.Errors() {
			zap.L().Warn("Kafka relay consumer error", zap.Error(err))
		}
	}()
	go func() {
		defer b.wg.Done()
		for {
			if err := group.Consume(ctx, topics, h); err != nil {
				zap.L().Warn("Kafka relay consume failed", zap.Error(err))
			}
			if ctx.Err() != nil {
				return
			}
			h.reset()
		}
	}()

	select {
	case <-h.readyC():
	case <-time.After(subscribeTimeout):
		return fmt.Errorf("kafka relay group %s not ready after %s", groupID, subscribeTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
	zap.L().Info("Kafka relay subscribed", zap.String("group", groupID), zap.Strings("topics", topics))
	return nil
}

func (b *KafkaRelayBus) Close() error {
	b.mu.Lock()
	groups, cancels := b.groups, b.cancel
	b.groups, b.cancel = nil, nil
	b.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	var firstErr error
	for _, g := range groups {
		if err := g.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	b.wg.Wait()
	if err := b.producer.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// relayGroupHandler 消费组处理器
type relayGroupHandler struct {
	bus     *KafkaRelayBus
	handler out.RelayHandler

	mu     sync.Mutex
	ready  chan struct{}
	closed bool
}

func (h *relayGroupHandler) readyC() <-chan struct{} {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.ready
}

// reset rebalance 之后重新等待 Setup
func (h *relayGroupHandler) reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		h.ready = make(chan struct{})
		h.closed = false
	}
}

func (h *relayGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.closed {
		close(h.ready)
		h.closed = true
	}
	return nil
}

func (h *relayGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

func (h *relayGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			h.handler(session.Context(), h.bus.channel(message.Topic), message.Value)
			session.MarkMessage(message, "")
		case <-session.Context().Done():
			return nil
		}
	}
}
