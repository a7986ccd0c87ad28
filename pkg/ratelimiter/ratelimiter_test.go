package ratelimiter

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenBucketBurstThenRefill(t *testing.T) {
	tb := NewTokenBucket(10, 2)
	ctx := context.Background()

	ok, err := tb.Allow(ctx, "client-a")
	require.NoError(t, err)
	assert.True(t, ok)
	ok, _ = tb.Allow(ctx, "client-a")
	assert.True(t, ok)

	// Bucket drained.
	ok, _ = tb.Allow(ctx, "client-a")
	assert.False(t, ok)

	// A different key has its own bucket.
	ok, _ = tb.Allow(ctx, "client-b")
	assert.True(t, ok)

	// 10 tokens/s means one token back after ~100ms.
	time.Sleep(150 * time.Millisecond)
	ok, _ = tb.Allow(ctx, "client-a")
	assert.True(t, ok)
}

func TestRedisSlidingWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	rl := NewRedisSlidingWindow(client, 3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := rl.Allow(ctx, "app-1")
		require.NoError(t, err)
		assert.True(t, ok, "request %d should pass", i)
	}

	ok, err := rl.Allow(ctx, "app-1")
	require.NoError(t, err)
	assert.False(t, ok)

	// Separate keys count independently.
	ok, err = rl.Allow(ctx, "app-2")
	require.NoError(t, err)
	assert.True(t, ok)

	// After the window passes, the count resets.
	mr.FastForward(2 * time.Minute)
	ok, err = rl.Allow(ctx, "app-1")
	require.NoError(t, err)
	assert.True(t, ok)
}
