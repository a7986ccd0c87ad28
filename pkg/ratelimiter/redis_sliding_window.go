package ratelimiter

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// RedisSlidingWindow 是基于 Redis 有序集合的滑动窗口限流器，
// 多个服务副本共享同一份计数。
type RedisSlidingWindow struct {
	client *redis.Client
	limit  int64         // 窗口内允许的最大请求数
	window time.Duration // 窗口长度
	prefix string        // Redis key 前缀
}

// NewRedisSlidingWindow 创建一个滑动窗口限流器。
// limit: 窗口内允许的最大请求数。window: 窗口长度。
func NewRedisSlidingWindow(client *redis.Client, limit int, window time.Duration) *RedisSlidingWindow {
	return &RedisSlidingWindow{
		client: client,
		limit:  int64(limit),
		window: window,
		prefix: "ratelimit:",
	}
}

// Allow 在 key 的滑动窗口中登记一次请求并判断是否超限。
// 实现方式：把请求以当前时间为分值写入有序集合，删掉窗口外的旧记录，
// 再统计窗口内的数量。整个过程在一个 pipeline 中完成。
func (r *RedisSlidingWindow) Allow(ctx context.Context, key string) (bool, error) {
	now := time.Now()
	windowStart := now.Add(-r.window)
	redisKey := r.prefix + key

	pipe := r.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "0", fmt.Sprintf("%d", windowStart.UnixNano()))
	pipe.ZAdd(ctx, redisKey, &redis.Z{
		Score:  float64(now.UnixNano()),
		Member: uuid.New().String(),
	})
	count := pipe.ZCard(ctx, redisKey)
	pipe.Expire(ctx, redisKey, r.window)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("滑动窗口限流器执行 Redis pipeline 失败: %w", err)
	}

	return count.Val() <= r.limit, nil
}
