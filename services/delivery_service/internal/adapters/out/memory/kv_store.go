package memory

import (
	"context"
	"sync"
	"time"

	"github.com/EthanQC/roadcast/services/delivery_service/internal/ports/out"
)

type kvEntry struct {
	value    string
	expireAt time.Time // 零值表示不过期
}

// KVStore 单进程内存实现，用于本地开发和测试；多个网关共享同一个实例即可模拟多实例
type KVStore struct {
	mu   sync.Mutex
	data map[string]kvEntry
	now  func() time.Time
}

func NewKVStore() *KVStore {
	return &KVStore{data: make(map[string]kvEntry), now: time.Now}
}

var _ out.KVStore = (*KVStore)(nil)

// get 调用方持有锁
func (s *KVStore) get(key string) (string, bool) {
	e, ok := s.data[key]
	if !ok {
		return "", false
	}
	if !e.expireAt.IsZero() && !s.now().Before(e.expireAt) {
		delete(s.data, key)
		return "", false
	}
	return e.value, true
}

func (s *KVStore) set(key, value string, ttl time.Duration) {
	e := kvEntry{value: value}
	if ttl > 0 {
		e.expireAt = s.now().Add(ttl)
	}
	s.data[key] = e
}

func (s *KVStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.get(key)
	return v, ok, nil
}

func (s *KVStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set(key, value, ttl)
	return nil
}

func (s *KVStore) MultiSet(_ context.Context, writes []out.KVWrite, guards ...out.KVGuard) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, g := range guards {
		v, ok := s.get(g.Key)
		if g.Absent {
			if ok {
				return out.ErrKVConflict
			}
			continue
		}
		if !ok || v != g.Value {
			return out.ErrKVConflict
		}
	}

	for _, w := range writes {
		if w.Delete {
			delete(s.data, w.Key)
			continue
		}
		s.set(w.Key, w.Value, w.TTL)
	}
	return nil
}

func (s *KVStore) Delete(_ context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.data, k)
	}
	return nil
}

func (s *KVStore) Expire(_ context.Context, key string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.get(key); ok {
		s.set(key, v, ttl)
	}
	return nil
}

// TTL 剩余过期时间，测试用
func (s *KVStore) TTL(key string) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.data[key]
	if !ok || e.expireAt.IsZero() {
		return 0, ok
	}
	return e.expireAt.Sub(s.now()), true
}
