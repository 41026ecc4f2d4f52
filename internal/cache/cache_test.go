package cache

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/placementpay/internal/clock"
	"github.com/stretchr/testify/assert"
)

func TestTTLCacheExpiresEntries(t *testing.T) {
	ctx := context.Background()
	clk := clock.NewFakeClock(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC))
	c := NewTTLCache[string, int](clk)

	c.Set(ctx, "a", 1, time.Minute)
	v, ok := c.Get(ctx, "a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	clk.Advance(59 * time.Second)
	_, ok = c.Get(ctx, "a")
	assert.True(t, ok)

	clk.Advance(time.Second)
	_, ok = c.Get(ctx, "a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestTTLCacheIgnoresNonPositiveTTL(t *testing.T) {
	ctx := context.Background()
	c := NewTTLCache[string, string](nil)

	c.Set(ctx, "k", "v", 0)
	_, ok := c.Get(ctx, "k")
	assert.False(t, ok)

	c.Set(ctx, "k", "v", time.Hour)
	c.Delete(ctx, "k")
	_, ok = c.Get(ctx, "k")
	assert.False(t, ok)
}

func TestKey(t *testing.T) {
	assert.Equal(t, "promo|summer25", Key("promo", " SUMMER25 ", ""))
}
