package ratelimit

import (
	"context"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/placementpay/internal/config"
	"go.uber.org/zap"
)

const promoLookupKeyPrefix = "placementpay:ratelimit:promo_lookup:"

// Allower decides whether a caller may proceed.
type Allower interface {
	Allow(ctx context.Context, key string, rate float64, burst int) (*RateLimitResult, error)
}

// PromoLookupLimiter bounds promo-code validation per caller so codes cannot
// be enumerated. Without Redis every request is allowed.
type PromoLookupLimiter struct {
	bucket Allower
	rate   float64
	burst  int
	log    *zap.Logger
}

func NewPromoLookupLimiter(client redis.UniversalClient, cfg config.Config, log *zap.Logger) *PromoLookupLimiter {
	var bucket Allower
	if tb := NewTokenBucket(client); tb != nil {
		bucket = tb
	}
	return NewPromoLookupLimiterWithBucket(bucket, cfg.Limits, log)
}

// NewPromoLookupLimiterWithBucket builds a limiter over any bucket implementation.
func NewPromoLookupLimiterWithBucket(bucket Allower, cfg config.RateLimitConfig, log *zap.Logger) *PromoLookupLimiter {
	if log == nil {
		log = zap.NewNop()
	}
	return &PromoLookupLimiter{
		bucket: bucket,
		rate:   cfg.PromoLookupRate,
		burst:  cfg.PromoLookupBurst,
		log:    log.Named("ratelimit.promo_lookup"),
	}
}

func (l *PromoLookupLimiter) Enabled() bool {
	return l != nil && l.bucket != nil && l.rate > 0 && l.burst > 0
}

// Allow fails open when the bucket errors; promo lookups are read-only.
func (l *PromoLookupLimiter) Allow(ctx context.Context, caller string) *RateLimitResult {
	caller = strings.TrimSpace(caller)
	if !l.Enabled() || caller == "" {
		return &RateLimitResult{Allowed: true}
	}
	res, err := l.bucket.Allow(ctx, promoLookupKeyPrefix+caller, l.rate, l.burst)
	if err != nil {
		l.log.Warn("promo lookup limiter unavailable", zap.String("caller", caller), zap.Error(err))
		return &RateLimitResult{Allowed: true}
	}
	return res
}
