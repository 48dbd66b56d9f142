package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/EthanQC/roadcast/services/delivery_service/internal/ports/out"
)

var errBusClosed = errors.New("relay bus closed")

type subscription struct {
	ctx      context.Context
	channels map[string]struct{}
	handler  out.RelayHandler
}

// RelayBus 进程内中继，发布时同步调用全部订阅者
type RelayBus struct {
	mu     sync.RWMutex
	subs   []*subscription
	closed bool
}

func NewRelayBus() *RelayBus {
	return &RelayBus{}
}

var _ out.RelayBus = (*RelayBus)(nil)

func (b *RelayBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return errBusClosed
	}
	subs := make([]*subscription, 0, len(b.subs))
	for _, s := range b.subs {
		if _, ok := s.channels[channel]; ok && s.ctx.Err() == nil {
			subs = append(subs, s)
		}
	}
	b.mu.RUnlock()

	for _, s := range subs {
		// 每个订阅者拿到独立的副本
		data := make([]byte, len(payload))
		copy(data, payload)
		s.handler(s.ctx, channel, data)
	}
	return nil
}

func (b *RelayBus) Subscribe(ctx context.Context, channels []string, handler out.RelayHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return errBusClosed
	}
	set := make(map[string]struct{}, len(channels))
	for _, c := range channels {
		set[c] = struct{}{}
	}
	b.subs = append(b.subs, &subscription{ctx: ctx, channels: set, handler: handler})
	return nil
}

func (b *RelayBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subs = nil
	return nil
}
