package redis

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/EthanQC/roadcast/services/delivery_service/internal/ports/out"
)

// RelayBusRedis 基于 Redis PUBLISH/SUBSCRIBE 的中继
type RelayBusRedis struct {
	client *redis.Client
	mu     sync.Mutex
	subs   []*redis.PubSub
	wg     sync.WaitGroup
}

func NewRelayBusRedis(client *redis.Client) *RelayBusRedis {
	return &RelayBusRedis{client: client}
}

var _ out.RelayBus = (*RelayBusRedis)(nil)

func (b *RelayBusRedis) Publish(ctx context.Context, channel string, payload []byte) error {
	return b.client.Publish(ctx, channel, payload).Err()
}

// Subscribe 等到订阅确认后返回
func (b *RelayBusRedis) Subscribe(ctx context.Context, channels []string, handler out.RelayHandler) error {
	ps := b.client.Subscribe(ctx, channels...)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return fmt.Errorf("subscribe %v failed: %w", channels, err)
	}

	b.mu.Lock()
	b.subs = append(b.subs, ps)
	b.mu.Unlock()

	ch := ps.Channel()
	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				handler(ctx, msg.Channel, []byte(msg.Payload))
			}
		}
	}()

	zap.L().Info("Redis relay subscribed", zap.Strings("channels", channels))
	return nil
}

func (b *RelayBusRedis) Close() error {
	b.mu.Lock()
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()

	var firstErr error
	for _, ps := range subs {
		if err := ps.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	b.wg.Wait()
	return firstErr
}
