package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smallbiznis/placementpay/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeBucket struct {
	keys   []string
	result *RateLimitResult
	err    error
}

func (f *fakeBucket) Allow(_ context.Context, key string, _ float64, _ int) (*RateLimitResult, error) {
	f.keys = append(f.keys, key)
	return f.result, f.err
}

var limits = config.RateLimitConfig{PromoLookupRate: 1, PromoLookupBurst: 5}

func TestPromoLookupLimiterWithoutRedisAllows(t *testing.T) {
	l := NewPromoLookupLimiter(nil, config.Config{Limits: limits}, zaptest.NewLogger(t))
	assert.False(t, l.Enabled())
	assert.True(t, l.Allow(context.Background(), "user-1").Allowed)

	var nilLimiter *PromoLookupLimiter
	assert.True(t, nilLimiter.Allow(context.Background(), "user-1").Allowed)
}

func TestPromoLookupLimiterKeysByCaller(t *testing.T) {
	bucket := &fakeBucket{result: &RateLimitResult{Allowed: false, RetryAfter: 2 * time.Second}}
	l := NewPromoLookupLimiterWithBucket(bucket, limits, zaptest.NewLogger(t))

	res := l.Allow(context.Background(), " user-1 ")
	assert.False(t, res.Allowed)
	assert.Equal(t, 2*time.Second, res.RetryAfter)
	require.Len(t, bucket.keys, 1)
	assert.Equal(t, "placementpay:ratelimit:promo_lookup:user-1", bucket.keys[0])
}

func TestPromoLookupLimiterFailsOpen(t *testing.T) {
	bucket := &fakeBucket{err: errors.New("connection refused")}
	l := NewPromoLookupLimiterWithBucket(bucket, limits, zaptest.NewLogger(t))
	assert.True(t, l.Allow(context.Background(), "user-1").Allowed)
}

func TestBucketResult(t *testing.T) {
	denied := bucketResult([]interface{}{int64(0), int64(0), int64(1_700_000_000_000)}, 0.5, 10)
	assert.False(t, denied.Allowed)
	assert.Equal(t, 2*time.Second, denied.RetryAfter)
	assert.Equal(t, 10, denied.Limit)

	allowed := bucketResult([]interface{}{int64(1), "4.5", int64(1_700_000_000_000)}, 1, 5)
	assert.True(t, allowed.Allowed)
	assert.Equal(t, 4, allowed.Remaining)
	assert.Zero(t, allowed.RetryAfter)
}

func TestTokenBucketRejectsBadInput(t *testing.T) {
	var tb *TokenBucket
	_, err := tb.Allow(context.Background(), "k", 1, 1)
	assert.Error(t, err)
	assert.Nil(t, NewTokenBucket(nil))
}
