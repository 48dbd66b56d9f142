package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/EthanQC/roadcast/services/delivery_service/internal/ports/out"
)

// KVStoreRedis Redis 实现，MultiSet 使用 MULTI/EXEC，守卫使用 WATCH
type KVStoreRedis struct {
	client *redis.Client
	prefix string
}

// NewKVStoreRedis prefix 为全部 key 的命名空间，可为空
func NewKVStoreRedis(client *redis.Client, prefix string) *KVStoreRedis {
	return &KVStoreRedis{client: client, prefix: prefix}
}

var _ out.KVStore = (*KVStoreRedis)(nil)

func (s *KVStoreRedis) key(k string) string { return s.prefix + k }

func (s *KVStoreRedis) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := s.client.Get(ctx, s.key(key)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *KVStoreRedis) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.client.Set(ctx, s.key(key), value, ttl).Err()
}

func (s *KVStoreRedis) MultiSet(ctx context.Context, writes []out.KVWrite, guards ...out.KVGuard) error {
	if len(guards) == 0 {
		_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			s.queue(ctx, pipe, writes)
			return nil
		})
		return err
	}

	keys := make([]string, 0, len(guards))
	for _, g := range guards {
		keys = append(keys, s.key(g.Key))
	}

	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		for _, g := range guards {
			v, err := tx.Get(ctx, s.key(g.Key)).Result()
			switch {
			case err == redis.Nil:
				if !g.Absent {
					return out.ErrKVConflict
				}
			case err != nil:
				return err
			case g.Absent || v != g.Value:
				return out.ErrKVConflict
			}
		}

		_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			s.queue(ctx, pipe, writes)
			return nil
		})
		return err
	}, keys...)

	// 被 WATCH 的 key 在提交前被修改
	if errors.Is(err, redis.TxFailedErr) {
		return out.ErrKVConflict
	}
	return err
}

func (s *KVStoreRedis) queue(ctx context.Context, pipe redis.Pipeliner, writes []out.KVWrite) {
	for _, w := range writes {
		if w.Delete {
			pipe.Del(ctx, s.key(w.Key))
			continue
		}
		pipe.Set(ctx, s.key(w.Key), w.Value, w.TTL)
	}
}

func (s *KVStoreRedis) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = s.key(k)
	}
	return s.client.Del(ctx, full...).Err()
}

func (s *KVStoreRedis) Expire(ctx context.Context, key string, ttl time.Duration) error {
	return s.client.Expire(ctx, s.key(key), ttl).Err()
}
