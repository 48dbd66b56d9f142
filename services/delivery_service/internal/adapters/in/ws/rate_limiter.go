package ws

import (
	"sync"
	"time"
)

// RateLimitConfig 单连接限流配置，Rate <= 0 表示不限流
type RateLimitConfig struct {
	Rate  float64 // 每秒产生令牌数
	Burst float64 // 桶容量
}

func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{Rate: 20, Burst: 40}
}

// TokenBucket 令牌桶
type TokenBucket struct {
	capacity   float64
	tokens     float64
	rate       float64
	lastRefill time.Time
	mu         sync.Mutex
	now        func() time.Time
}

// NewTokenBucket 初始为满桶
func NewTokenBucket(capacity, rate float64) *TokenBucket {
	return &TokenBucket{
		capacity:   capacity,
		tokens:     capacity,
		rate:       rate,
		lastRefill: time.Now(),
		now:        time.Now,
	}
}

// Allow 尝试获取一个令牌
func (tb *TokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	now := tb.now()
	tb.tokens += now.Sub(tb.lastRefill).Seconds() * tb.rate
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	tb.lastRefill = now

	if tb.tokens >= 1 {
		tb.tokens--
		return true
	}
	return false
}

func (c RateLimitConfig) newBucket() *TokenBucket {
	if c.Rate <= 0 {
		return nil
	}
	burst := c.Burst
	if burst < 1 {
		burst = c.Rate
	}
	return NewTokenBucket(burst, c.Rate)
}
