package out

import (
	"context"
	"errors"
	"time"
)

// ErrKVConflict 守卫条件在提交时不成立
var ErrKVConflict = errors.New("kv guard conflict")

// KVWrite 一次写入，Delete 为 true 时删除 Key
type KVWrite struct {
	Key    string
	Value  string
	TTL    time.Duration // 0 表示不过期
	Delete bool
}

// KVGuard 提交前检查 Key 的当前值，Absent 为 true 时要求 Key 不存在
type KVGuard struct {
	Key    string
	Value  string
	Absent bool
}

// KVStore 实例间共享的键值存储
type KVStore interface {
	// Get 读取，不存在时 found 为 false
	Get(ctx context.Context, key string) (value string, found bool, err error)
	// Set 写入，ttl 为 0 表示不过期
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// MultiSet 原子地执行一组写入，任一守卫不成立时返回 ErrKVConflict 且不写入
	MultiSet(ctx context.Context, writes []KVWrite, guards ...KVGuard) error
	// Delete 删除
	Delete(ctx context.Context, keys ...string) error
	// Expire 重设过期时间
	Expire(ctx context.Context, key string, ttl time.Duration) error
}
