package ratelimiter

import (
	"context"
	"sync"
	"time"
)

// RateLimiter 判断以 key 标识的调用方的一次请求是否放行。
// key 通常是调用方应用名或客户端地址；不需要区分调用方时传入固定值即可。
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// bucket 是单个调用方的令牌桶。
type bucket struct {
	tokens   float64
	lastFill time.Time
}

// TokenBucket 是进程内的令牌桶限流器，按 key 独立计数。
// 只适用于单实例部署；多副本部署请使用 RedisSlidingWindow。
type TokenBucket struct {
	rate     float64 // 每秒补充的令牌数
	capacity float64 // 桶容量（突发上限）

	mu      sync.Mutex
	buckets map[string]*bucket
}

// NewTokenBucket 创建一个令牌桶限流器。
// rate: 每秒补充的令牌数。capacity: 桶容量。
func NewTokenBucket(rate float64, capacity int) *TokenBucket {
	return &TokenBucket{
		rate:     rate,
		capacity: float64(capacity),
		buckets:  make(map[string]*bucket),
	}
}

// Allow 尝试从 key 对应的桶中取出一个令牌。
func (t *TokenBucket) Allow(_ context.Context, key string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	b, ok := t.buckets[key]
	if !ok {
		b = &bucket{tokens: t.capacity, lastFill: now}
		t.buckets[key] = b
	}

	// 按经过的时间补充令牌，不超过桶容量。
	elapsed := now.Sub(b.lastFill).Seconds()
	b.tokens += elapsed * t.rate
	if b.tokens > t.capacity {
		b.tokens = t.capacity
	}
	b.lastFill = now

	if b.tokens < 1 {
		return false, nil
	}
	b.tokens--
	return true, nil
}
