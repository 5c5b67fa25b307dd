package rates

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"scadenze/internal/cache"
	"scadenze/internal/core"
)

const ratesCacheKey = "latest"

// CachedConverter serves conversions from a TTL-cached rate table,
// refetching the feed on expiry. The daily reference feed publishes only
// the latest table, so the asOf argument selects nothing here; callers
// needing strict historical rates plug in a different Converter.
type CachedConverter struct {
	feed  *FeedClient
	cache *cache.LRUCache[Rates]
}

var _ Converter = (*CachedConverter)(nil)

// NewCachedConverter wraps a feed client with a rate-table cache.
func NewCachedConverter(feed *FeedClient, ttl time.Duration) *CachedConverter {
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}
	return &CachedConverter{
		feed:  feed,
		cache: cache.NewLRUCache[Rates](4, ttl),
	}
}

func (c *CachedConverter) Convert(ctx context.Context, amount decimal.Decimal, from, to string, _ time.Time) (decimal.Decimal, error) {
	if strings.EqualFold(strings.TrimSpace(from), strings.TrimSpace(to)) {
		return amount, nil
	}

	table, err := c.table(ctx)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %v", core.ErrConversionUnavailable, err)
	}
	return crossConvert(amount, from, to, table.Base, table.Pairs)
}

func (c *CachedConverter) table(ctx context.Context) (Rates, error) {
	if cached, ok := c.cache.Get(ratesCacheKey); ok {
		return cached, nil
	}
	fetched, err := c.feed.Fetch(ctx)
	if err != nil {
		return Rates{}, err
	}
	c.cache.Set(ratesCacheKey, fetched)
	return fetched, nil
}
